package server

import (
	"context"
	"errors"
	"sync"

	"github.com/shinyvision/i18nlens/internal/clipboard"
	"github.com/shinyvision/i18nlens/internal/config"
	"github.com/shinyvision/i18nlens/internal/decorate"
	"github.com/shinyvision/i18nlens/internal/locale"
	"github.com/shinyvision/i18nlens/internal/references"
	"github.com/shinyvision/i18nlens/internal/search"
	"github.com/shinyvision/i18nlens/internal/state"
	"github.com/shinyvision/i18nlens/internal/utils"
	"github.com/shinyvision/i18nlens/internal/watcher"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"
)

const lsName = "i18nlens"

var version = "0.1.0"

// Server is the language server.
type Server struct {
	config *config.Config
	state  *state.State
	index  *locale.Index
	h      protocol.Handler

	mu          sync.Mutex
	notify      glsp.NotifyFunc
	linkSupport bool
	builder     *locale.Builder
	cache       *locale.ScanCache
	watcher     *watcher.Watcher
	decorator   *decorate.Decorator
	workspace   *search.Workspace
	clip        clipboard.Clipboard
	finder      references.Finder
}

// NewServer creates a new server.
func NewServer() *Server {
	s := &Server{
		config: config.NewConfig(),
		state:  state.NewState(),
		index:  locale.NewIndex(),
	}
	s.h = protocol.Handler{
		Initialize:                     s.initialize,
		Initialized:                    s.initialized,
		Shutdown:                       s.shutdown,
		SetTrace:                       s.setTrace,
		TextDocumentDidOpen:            s.didOpen,
		TextDocumentDidChange:          s.didChange,
		TextDocumentDidClose:           s.didClose,
		TextDocumentHover:              s.onHover,
		TextDocumentDefinition:         s.onDefinition,
		TextDocumentReferences:         s.onReferences,
		WorkspaceDidChangeWatchedFiles: s.didChangeWatchedFiles,
	}
	return s
}

// Run runs the language server.
func (s *Server) Run() {
	server := glspserver.NewServer(&handler{Handler: &s.h, server: s}, lsName, false)
	server.RunStdio()
}

func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	caps := s.h.CreateServerCapabilities()
	openClose := true
	change := protocol.TextDocumentSyncKindIncremental
	caps.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &openClose,
		Change:    &change,
	}
	caps.HoverProvider = true
	caps.DefinitionProvider = true
	caps.ReferencesProvider = true

	if params.RootURI != nil {
		s.config.SetWorkspaceRoot(utils.URIToPath(*params.RootURI))
	} else if len(params.WorkspaceFolders) > 0 {
		s.config.SetWorkspaceRoot(utils.URIToPath(params.WorkspaceFolders[0].URI))
	} else {
		s.config.SetWorkspaceRoot(".")
	}

	if path, err := s.config.LoadWorkspaceFile(); err != nil {
		logger().Warningf("%v", err)
	} else if path != "" {
		logger().Infof("loaded %s", path)
	}
	s.config.ApplyInitializationOptions(params.InitializationOptions)
	if err := s.config.Validate(); err != nil {
		logger().Warningf("invalid configuration, using defaults: %v", err)
		root := s.config.WorkspaceRoot
		s.config = config.NewConfig()
		s.config.WorkspaceRoot = root
	}

	linkSupport := false
	if td := params.Capabilities.TextDocument; td != nil && td.Definition != nil && td.Definition.LinkSupport != nil {
		linkSupport = *td.Definition.LinkSupport
	}

	s.mu.Lock()
	s.notify = ctx.Notify
	s.linkSupport = linkSupport
	s.mu.Unlock()

	s.setup()
	s.config.LogSummary("initialize")

	return protocol.InitializeResult{
		Capabilities: caps,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &version,
		},
	}, nil
}

// setup creates the components that depend on the configuration.
func (s *Server) setup() {
	cfg := s.config

	builder := locale.NewBuilder(cfg.WorkspaceRoot, cfg.LocaleGlobs, s.index)
	var cache *locale.ScanCache
	if cfg.ScanCacheBytes > 0 {
		var err error
		if cache, err = locale.NewScanCache(cfg.ScanCacheBytes); err != nil {
			logger().Warningf("scan cache disabled: %v", err)
		} else {
			builder.SetCache(cache)
		}
	}

	clip := clipboard.New(cfg.References.Clipboard)
	workspace := search.New(cfg.WorkspaceRoot, cfg.SearchExclude, clip)
	var finder references.Finder
	if cfg.References.Mode == config.ModeDirect {
		finder = references.NewDirect(s.index, workspace)
	} else {
		finder = references.NewRendezvous(s.index, workspace, clip, cfg.SearchPollInterval, cfg.SearchTimeout)
	}

	decorator := decorate.NewDecorator(s.index, s.editors, s.publish, cfg.Decoration, cfg.DecorationRefresh)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.builder = builder
	s.cache = cache
	s.workspace = workspace
	s.clip = clip
	s.finder = finder
	s.decorator = decorator
}

func (s *Server) initialized(_ *glsp.Context, _ *protocol.InitializedParams) error {
	// Subscribe first so an edit landing during the startup build still
	// triggers a rebuild.
	s.watch()
	s.rebuild("startup")
	return nil
}

func (s *Server) watch() {
	w, err := watcher.New(s.config.WorkspaceRoot, s.config.LocaleGlobs, s.config.RebuildDebounce, func() {
		s.rebuild("file change")
	})
	if err != nil {
		logger().Warningf("file watching disabled: %v", err)
		return
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
}

func (s *Server) shutdown(_ *glsp.Context) error {
	s.Close()
	return nil
}

// Close releases the watcher, the pending decoration refresh and every open
// document.
func (s *Server) Close() {
	s.mu.Lock()
	w, d, ws, cache := s.watcher, s.decorator, s.workspace, s.cache
	s.watcher, s.decorator, s.workspace, s.cache = nil, nil, nil, nil
	s.mu.Unlock()

	if w != nil {
		if err := w.Close(); err != nil {
			logger().Warningf("closing watcher: %v", err)
		}
	}
	if d != nil {
		d.Close()
	}
	if ws != nil {
		ws.Close()
	}
	if cache != nil {
		cache.Close()
	}
	s.state.Close()
}

func (s *Server) setTrace(_ *glsp.Context, p *protocol.SetTraceParams) error {
	protocol.SetTraceValue(p.Value)
	return nil
}

// rebuild rescans the dictionary and redraws the visible editors.
func (s *Server) rebuild(reason string) (*locale.Snapshot, error) {
	s.mu.Lock()
	builder := s.builder
	s.mu.Unlock()
	if builder == nil {
		return s.index.Snapshot(), nil
	}

	snap, err := builder.Build(context.Background())
	if errors.Is(err, locale.ErrStaleBuild) {
		// A newer build already published and redrew.
		return s.index.Snapshot(), nil
	}
	if err != nil {
		logger().Warningf("rebuild (%s) failed: %v", reason, err)
		return nil, err
	}
	logger().Debugf("rebuild (%s): %d keys", reason, len(snap.Entries))
	s.refreshDecorations()
	return snap, nil
}

func (s *Server) publish(method string, params any) {
	s.mu.Lock()
	notify := s.notify
	s.mu.Unlock()
	if notify != nil {
		notify(method, params)
	}
}

func (s *Server) warn(message string) {
	s.publish("window/showMessage", protocol.ShowMessageParams{
		Type:    protocol.MessageTypeWarning,
		Message: message,
	})
}

func logger() commonlog.Logger {
	return commonlog.GetLoggerf("i18nlens.server")
}
