package eventstore

import (
	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = errors.EventStoreError("could not open history database").Build()

	// ErrInitializeSchemaFailed indicates the database schema could not be initialized.
	ErrInitializeSchemaFailed = errors.EventStoreError("failed to initialize history schema").Build()

	// ErrEventAppendFailed indicates appending an event failed.
	ErrEventAppendFailed = errors.EventStoreError("failed to append event to history").Build()

	// ErrEventQueryFailed indicates querying events failed.
	ErrEventQueryFailed = errors.EventStoreError("failed to query history events").Build()
)

// wrap attaches cause to a copy of the sentinel so errors.Is still matches it.
func wrap(cause error, sentinel *errors.ClassifiedError) *errors.ErrorBuilder {
	return errors.WrapError(cause, sentinel.Category(), sentinel.Message())
}
