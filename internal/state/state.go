package state

import (
	"sort"
	"sync"

	"github.com/shinyvision/i18nlens/internal/utils"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// State manages the open documents and which of them the user can see.
type State struct {
	mu   sync.RWMutex
	docs map[protocol.DocumentUri]*Document

	// visible is nil until the client reports its visible editors.
	visible []protocol.DocumentUri
	active  protocol.DocumentUri
}

func NewState() *State {
	return &State{
		docs: make(map[protocol.DocumentUri]*Document),
	}
}

// GetDocument returns a copy of a document.
func (s *State) GetDocument(uri protocol.DocumentUri) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// OpenDocument adds a document and makes it the active one.
func (s *State) OpenDocument(doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.docs[doc.URI]; ok && old.Analyzer != nil && old.Analyzer != doc.Analyzer {
		old.Analyzer.Close()
	}
	s.docs[doc.URI] = doc
	s.active = doc.URI
	s.notifyAnalyzer(doc)
}

// ChangeDocument applies content changes and returns the updated copy.
func (s *State) ChangeDocument(uri protocol.DocumentUri, version int32, changes []any) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return Document{}, false
	}
	doc.ApplyChanges(changes)
	doc.Version = version
	s.notifyAnalyzer(doc)
	return *doc, true
}

// DeleteDocument removes a document from the state.
func (s *State) DeleteDocument(uri protocol.DocumentUri) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[uri]; ok && doc.Analyzer != nil {
		doc.Analyzer.Close()
	}
	delete(s.docs, uri)
	if s.active == uri {
		s.active = ""
	}
}

// SetVisible records the editors the client currently shows.
func (s *State) SetVisible(uris []protocol.DocumentUri) {
	visible := make([]protocol.DocumentUri, 0, len(uris))
	for _, uri := range uris {
		visible = utils.AppendUnique(visible, uri)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
}

func (s *State) SetActive(uri protocol.DocumentUri) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = uri
}

func (s *State) IsActive(uri protocol.DocumentUri) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active != "" && s.active == uri
}

// Visible returns copies of the visible open documents. Until the client
// reports visible editors, every open document counts as visible.
func (s *State) Visible() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	if s.visible == nil {
		for _, doc := range s.docs {
			out = append(out, *doc)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
		return out
	}
	for _, uri := range s.visible {
		if doc, ok := s.docs[uri]; ok {
			out = append(out, *doc)
		}
	}
	return out
}

// Close releases every analyzer.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uri, doc := range s.docs {
		if doc.Analyzer != nil {
			doc.Analyzer.Close()
		}
		delete(s.docs, uri)
	}
}

func (s *State) notifyAnalyzer(doc *Document) {
	if doc.Analyzer != nil {
		_ = doc.Analyzer.Changed([]byte(doc.Text))
	}
}
