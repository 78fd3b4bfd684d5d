package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "stylesync.builds"

// FlushTimeout bounds the server round trip when the caller's context has no
// deadline of its own.
const FlushTimeout = 5 * time.Second

// NATSNotifier publishes JSON summaries on a NATS subject.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSNotifier connects to url and returns a notifier publishing on subject.
func NewNATSNotifier(url, subject string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("stylesync"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNotify, "failed to connect to NATS").
			WithContext("url", url).
			Build()
	}

	logger.Info("NATS notifier connected", logfields.URL(url), slog.String("subject", subject))
	return &NATSNotifier{conn: conn, subject: subject, logger: logger}, nil
}

// Notify publishes the summary and flushes so delivery errors surface here.
func (n *NATSNotifier) Notify(ctx context.Context, summary Summary) error {
	if summary.Timestamp.IsZero() {
		summary.Timestamp = time.Now()
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to marshal build summary").Build()
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to publish build summary").
			WithContext("subject", n.subject).
			Build()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, FlushTimeout)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to flush build summary").
			WithContext("subject", n.subject).
			Build()
	}

	n.logger.Debug("Published build summary", logfields.RunID(summary.RunID), slog.String("subject", n.subject))
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
