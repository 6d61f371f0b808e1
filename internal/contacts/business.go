// Package contacts loads the campaign job list from a spreadsheet and keeps
// its order stable across runs, which resume correctness depends on.
package contacts

import "strings"

// Business is one row of the input sheet. Immutable once loaded.
type Business struct {
	Name        string
	Phone       string // E.164 after normalization
	Description string
	Website     string
	MapsLink    string
}

func (b Business) HasWebsite() bool {
	return strings.TrimSpace(b.Website) != ""
}

// Job is one unit of outbound work. SkipReason is non-empty for rows that
// failed validation; they stay in the sequence so indexes remain stable, and
// the runner records them as skipped without invoking the sender.
type Job struct {
	Index      int
	Business   Business
	SkipReason string
}

// Source is a finite, index-stable, ordered job sequence.
//
// Fingerprint identifies the loaded content; progress persisted under a
// different fingerprint is never reused.
type Source interface {
	Len() int
	At(i int) Job
	Fingerprint() string
}
