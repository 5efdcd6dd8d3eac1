package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shinyvision/i18nlens/internal/utils"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Client extensions on top of LSP.
const (
	MethodDidChangeVisibleEditors = "i18nlens/didChangeVisibleEditors"
	MethodDidChangeActiveEditor   = "i18nlens/didChangeActiveEditor"
	MethodRebuild                 = "i18nlens/rebuild"
)

type VisibleEditorsParams struct {
	URIs []protocol.DocumentUri `json:"uris"`
}

type ActiveEditorParams struct {
	// URI is empty when no editor has focus.
	URI protocol.DocumentUri `json:"uri"`
}

type RebuildResult struct {
	Keys       int    `json:"keys"`
	Files      int    `json:"files"`
	Generation uint64 `json:"generation"`
}

// handler serves the i18nlens methods and hands everything else to the
// protocol handler.
type handler struct {
	*protocol.Handler
	server *Server
}

func (h *handler) Handle(ctx *glsp.Context) (r any, validMethod bool, validParams bool, err error) {
	switch ctx.Method {
	case MethodDidChangeVisibleEditors, MethodDidChangeActiveEditor, MethodRebuild:
	default:
		return h.Handler.Handle(ctx)
	}

	if !h.Handler.IsInitialized() {
		return nil, true, true, errors.New("server not initialized")
	}

	switch ctx.Method {
	case MethodDidChangeVisibleEditors:
		var params VisibleEditorsParams
		if err = json.Unmarshal(ctx.Params, &params); err == nil {
			validParams = true
			err = h.server.didChangeVisibleEditors(ctx, &params)
		}
	case MethodDidChangeActiveEditor:
		var params ActiveEditorParams
		if err = json.Unmarshal(ctx.Params, &params); err == nil {
			validParams = true
			err = h.server.didChangeActiveEditor(ctx, &params)
		}
	case MethodRebuild:
		validParams = true
		r, err = h.server.onRebuild(ctx)
	}
	return r, true, validParams, err
}

func (s *Server) didChangeVisibleEditors(_ *glsp.Context, p *VisibleEditorsParams) error {
	s.state.SetVisible(p.URIs)
	s.refreshDecorations()
	return nil
}

func (s *Server) didChangeActiveEditor(_ *glsp.Context, p *ActiveEditorParams) error {
	s.state.SetActive(p.URI)
	s.refreshDecorations()
	return nil
}

func (s *Server) onRebuild(_ *glsp.Context) (any, error) {
	snap, err := s.rebuild("request")
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	return RebuildResult{
		Keys:       len(snap.Entries),
		Files:      len(snap.Files),
		Generation: snap.Generation,
	}, nil
}

func (s *Server) didChangeWatchedFiles(_ *glsp.Context, p *protocol.DidChangeWatchedFilesParams) error {
	s.mu.Lock()
	w := s.watcher
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	for _, change := range p.Changes {
		w.Notify(utils.URIToPath(change.URI))
	}
	return nil
}
