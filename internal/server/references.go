package server

import (
	"context"
	"errors"

	"github.com/shinyvision/i18nlens/internal/analyzer"
	"github.com/shinyvision/i18nlens/internal/references"
	"github.com/shinyvision/i18nlens/internal/utils"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) onReferences(_ *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	doc, ok := s.state.GetDocument(params.TextDocument.URI)
	if !ok || doc.Analyzer == nil {
		return nil, nil
	}
	provider, ok := doc.Analyzer.(analyzer.KeyProvider)
	if !ok {
		return nil, nil
	}
	key, _, ok := provider.KeyAt(params.Position)
	if !ok {
		return nil, nil
	}

	s.mu.Lock()
	finder := s.finder
	s.mu.Unlock()
	if finder == nil {
		return nil, nil
	}

	found, err := finder.Find(context.Background(), key)
	if errors.Is(err, references.ErrSearchTimeout) {
		s.warn("Searching for references to " + key + " timed out.")
		return []protocol.Location{}, nil
	}
	if err != nil {
		logger().Warningf("references for %s: %v", key, err)
		return []protocol.Location{}, nil
	}
	return toLocations(key, found), nil
}

// toLocations covers the quoted literal at each occurrence.
func toLocations(key string, found []references.Location) []protocol.Location {
	width := utils.UTF16Len(key) + 2
	out := make([]protocol.Location, 0, len(found))
	for _, loc := range found {
		out = append(out, protocol.Location{
			URI: utils.PathToURI(loc.File),
			Range: protocol.Range{
				Start: protocol.Position{Line: loc.Line, Character: loc.Column},
				End:   protocol.Position{Line: loc.Line, Character: loc.Column + width},
			},
		})
	}
	return out
}
