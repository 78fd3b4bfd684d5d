// Package workspace manages the short-lived staging directories a build writes
// into before publishing, and the copy/move helpers used to populate and
// promote them.
//
// A staging directory is created as a hidden sibling of the directory it will
// be published into (e.g. ".css.staging-20251214-122336-4183") so that the
// final moves stay on one filesystem. Directories left behind by a crashed run
// are removed by Sweep at the start of the next build.
package workspace
