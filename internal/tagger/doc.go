// Package tagger fills in ID3 metadata for MP3 files.
//
// For each file the Updater guesses a title from the file name, searches
// MusicBrainz for it, picks a match (automatically when there is a single
// hit or auto mode is on, otherwise through a Selector) and writes artist,
// title, album, year and the front cover into the file's ID3v2 tag.
// Files recorded in the history store are skipped unless Force is set.
//
// Updater.Jobs turns a list of files into worker.Job values so a library
// can be processed by a worker.Pool.
package tagger
