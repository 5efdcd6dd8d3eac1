package server

import (
	"github.com/shinyvision/i18nlens/internal/analyzer"
	"github.com/shinyvision/i18nlens/internal/decorate"
	"github.com/shinyvision/i18nlens/internal/state"
	"github.com/shinyvision/i18nlens/internal/utils"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) didOpen(_ *glsp.Context, p *protocol.DidOpenTextDocumentParams) error {
	doc := &state.Document{
		URI:        p.TextDocument.URI,
		Path:       utils.URIToPath(p.TextDocument.URI),
		Text:       p.TextDocument.Text,
		LanguageID: p.TextDocument.LanguageID,
		Version:    p.TextDocument.Version,
	}
	if s.config.IsSupportedLanguage(doc.LanguageID) {
		doc.Analyzer = analyzer.NewLocaleAnalyzer(s.index)
	}
	s.state.OpenDocument(doc)
	s.refreshDecorations()
	return nil
}

func (s *Server) didChange(_ *glsp.Context, p *protocol.DidChangeTextDocumentParams) error {
	if _, ok := s.state.ChangeDocument(p.TextDocument.URI, p.TextDocument.Version, p.ContentChanges); !ok {
		return nil
	}
	if s.state.IsActive(p.TextDocument.URI) {
		if d := s.currentDecorator(); d != nil {
			d.TextChanged()
		}
	}
	return nil
}

func (s *Server) didClose(_ *glsp.Context, p *protocol.DidCloseTextDocumentParams) error {
	s.state.DeleteDocument(p.TextDocument.URI)
	s.refreshDecorations()
	return nil
}

// editors lists the visible documents the decorator may draw on.
func (s *Server) editors() []decorate.Editor {
	var out []decorate.Editor
	for _, doc := range s.state.Visible() {
		if !s.config.IsSupportedLanguage(doc.LanguageID) {
			continue
		}
		out = append(out, decorate.Editor{
			URI:     doc.URI,
			Path:    doc.Path,
			Version: doc.Version,
			Text:    doc.Text,
		})
	}
	return out
}

func (s *Server) currentDecorator() *decorate.Decorator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decorator
}

func (s *Server) refreshDecorations() {
	if d := s.currentDecorator(); d != nil {
		d.Refresh()
	}
}
