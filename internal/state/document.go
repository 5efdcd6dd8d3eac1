package state

import (
	"github.com/shinyvision/i18nlens/internal/analyzer"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Document represents an open document in the state.
type Document struct {
	URI        protocol.DocumentUri
	Path       string
	Text       string
	LanguageID string
	Version    int32
	Analyzer   analyzer.Analyzer
}

// ApplyChanges applies LSP content changes to the document text.
func (d *Document) ApplyChanges(changes []any) {
	text := d.Text
	for _, c := range changes {
		switch ch := c.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			text = ch.Text
		case protocol.TextDocumentContentChangeEvent:
			start := ch.Range.Start.IndexIn(text)
			end := ch.Range.End.IndexIn(text)
			if start >= 0 && end >= start && end <= len(text) {
				text = text[:start] + ch.Text + text[end:]
			}
		}
	}
	d.Text = text
}
