package build

import "errors"

// Sentinel errors identifying which stage of a run failed.
// They are wrapped together with the underlying classified error.
var (
	ErrSync    = errors.New("stylesync: sync error")
	ErrCompile = errors.New("stylesync: compile error")
)
