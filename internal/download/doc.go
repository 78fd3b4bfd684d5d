// Package download keeps the local download directory in step with the
// configured remote sources.
//
// A sync round consults the lock file, fetches only sources whose recorded
// files are missing or modified, writes single files or extracts zip archive
// entries according to ordered rules, and finally rewrites the lock file and
// deletes files no active source produced.
package download
