package rekor

import "rekorcheck/internal/domain"

// Decoder exposes the body and note parsers as a value.
type Decoder struct{}

func (Decoder) ParseEntryBody(body []byte) (domain.EntrySignature, error) {
	return ParseEntryBody(body)
}

func (Decoder) CheckNoteMatches(note string, size uint64, root []byte) (string, error) {
	return CheckNoteMatches(note, size, root)
}
