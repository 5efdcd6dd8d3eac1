package analyzer

import (
	"sync"

	"github.com/shinyvision/i18nlens/internal/locale"
	"github.com/shinyvision/i18nlens/internal/scanner"
	"github.com/shinyvision/i18nlens/internal/textpos"
	"github.com/shinyvision/i18nlens/internal/utils"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

type LocaleAnalyzer interface {
	Analyzer
	HoverProvider
	DefinitionProvider
	KeyProvider
}

// localeAnalyzer answers locale key queries for a JavaScript/TypeScript
// document.
type localeAnalyzer struct {
	mu      sync.RWMutex
	index   *locale.Index
	content string
	lines   *textpos.Lines
}

func NewLocaleAnalyzer(index *locale.Index) LocaleAnalyzer {
	return &localeAnalyzer{
		index: index,
		lines: textpos.NewLines(""),
	}
}

func (a *localeAnalyzer) Changed(code []byte) error {
	content := string(code)
	lines := textpos.NewLines(content)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.content = content
	a.lines = lines
	return nil
}

func (a *localeAnalyzer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.content = ""
	a.lines = textpos.NewLines("")
}

func (a *localeAnalyzer) KeyAt(pos protocol.Position) (string, protocol.Range, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	offset := a.lines.Offset(pos)
	if offset < 0 {
		return "", protocol.Range{}, false
	}
	occ, ok := scanner.KeyAt(a.content, offset)
	if !ok {
		return "", protocol.Range{}, false
	}
	return occ.Key, a.lines.Range(occ.Start, occ.End()), true
}

func (a *localeAnalyzer) OnHover(pos protocol.Position) (*protocol.Hover, error) {
	key, literal, ok := a.KeyAt(pos)
	if !ok {
		return nil, nil
	}
	entry, ok := a.index.Lookup(key)
	if !ok {
		return nil, nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: entry.Value,
		},
		Range: &literal,
	}, nil
}

func (a *localeAnalyzer) OnDefinition(pos protocol.Position) ([]protocol.LocationLink, error) {
	key, literal, ok := a.KeyAt(pos)
	if !ok {
		return nil, nil
	}
	entry, ok := a.index.Lookup(key)
	if !ok {
		return nil, nil
	}

	return []protocol.LocationLink{{
		OriginSelectionRange: &literal,
		TargetURI:            utils.PathToURI(entry.File),
		TargetRange:          entry.Range,
		TargetSelectionRange: entry.Range,
	}}, nil
}
