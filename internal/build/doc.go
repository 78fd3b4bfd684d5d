// Package build provides the canonical run pipeline for stylesync.
//
// A run synchronizes the configured remote sources into the download
// directory and then compiles the build directory into the output directory.
// All execution paths (the build and sync commands, the watcher, tests) go
// through Service so that metrics, run history and notifications are recorded
// the same way everywhere.
package build
