package server

import (
	"github.com/shinyvision/i18nlens/internal/analyzer"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) onDefinition(_ *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	doc, ok := s.state.GetDocument(params.TextDocument.URI)
	if !ok || doc.Analyzer == nil {
		return nil, nil
	}

	provider, ok := doc.Analyzer.(analyzer.DefinitionProvider)
	if !ok {
		return nil, nil
	}
	links, err := provider.OnDefinition(params.Position)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	linkSupport := s.linkSupport
	s.mu.Unlock()
	if linkSupport {
		return links, nil
	}

	locations := make([]protocol.Location, len(links))
	for i, link := range links {
		locations[i] = protocol.Location{URI: link.TargetURI, Range: link.TargetSelectionRange}
	}
	return locations, nil
}
