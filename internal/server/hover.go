package server

import (
	"github.com/shinyvision/i18nlens/internal/analyzer"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) onHover(_ *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.state.GetDocument(params.TextDocument.URI)
	if !ok || doc.Analyzer == nil {
		return nil, nil
	}

	if provider, ok := doc.Analyzer.(analyzer.HoverProvider); ok {
		return provider.OnHover(params.Position)
	}
	return nil, nil
}
