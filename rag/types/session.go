package types

import "time"

// Session is the state kept for one uploaded document.
type Session struct {
	ID string

	// Fragments are the trimmed, non-empty lines of the document, in document order.
	// A fragment is addressed by its index in this slice.
	Fragments []string

	// TermFrequency counts lowercase whitespace-delimited tokens across all fragments.
	TermFrequency map[string]int

	MediaType string
	CreatedAt time.Time
}
