// Package watch keeps the output directory current while files change.
//
// Two fsnotify streams are watched: the configuration file and the build
// directory. A change to the configuration reloads it and runs a full sync
// and build; any other change rebuilds without touching the network. Bursts
// of events are coalesced by a short debounce. When refresh_interval is
// configured a gocron job additionally re-runs the sync periodically.
package watch
