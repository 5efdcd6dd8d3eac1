package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shinyvision/i18nlens/internal/decorate"
	"github.com/shinyvision/i18nlens/internal/references"
	"github.com/shinyvision/i18nlens/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const zhCN = `export default {
  "common.ok": "确定",
  "common.cancel": "取消"
};
`

type notification struct {
	method string
	params any
}

type recorder struct {
	mu   sync.Mutex
	sent []notification
}

func (r *recorder) notify(method string, params any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, notification{method: method, params: params})
}

// decorations returns the last decorations published for uri.
func (r *recorder) decorations(uri protocol.DocumentUri) ([]decorate.Decoration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		n := r.sent[i]
		if n.method != decorate.Method {
			continue
		}
		if p := n.params.(decorate.Params); p.URI == uri {
			return p.Decorations, true
		}
	}
	return nil, false
}

func (r *recorder) messages() []protocol.ShowMessageParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.ShowMessageParams
	for _, n := range r.sent {
		if n.method == "window/showMessage" {
			out = append(out, n.params.(protocol.ShowMessageParams))
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type fixture struct {
	t    *testing.T
	root string
	s    *Server
	h    *handler
	rec  *recorder
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newFixture(t *testing.T, linkSupport bool, opts map[string]any) *fixture {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, "src", "locales", "zh-CN.ts"), zhCN)

	base := map[string]any{
		"searchTimeoutMs":     2000,
		"searchPollMs":        10,
		"decorationRefreshMs": 10,
		"rebuildDebounceMs":   10,
	}
	for k, v := range opts {
		base[k] = v
	}

	s := NewServer()
	f := &fixture{t: t, root: root, s: s, h: &handler{Handler: &s.h, server: s}, rec: &recorder{}}
	t.Cleanup(s.Close)

	f.call("initialize", map[string]any{
		"rootUri": utils.PathToURI(root),
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"definition": map[string]any{"linkSupport": linkSupport},
			},
		},
		"initializationOptions": base,
	})
	f.call("initialized", map[string]any{})
	return f
}

func (f *fixture) call(method string, params any) any {
	f.t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(f.t, err)
	r, validMethod, validParams, err := f.h.Handle(&glsp.Context{
		Method: method,
		Params: raw,
		Notify: f.rec.notify,
	})
	require.True(f.t, validMethod, method)
	require.True(f.t, validParams, method)
	require.NoError(f.t, err, method)
	return r
}

func (f *fixture) open(rel, text string) protocol.DocumentUri {
	f.t.Helper()
	path := filepath.Join(f.root, rel)
	writeFile(f.t, path, text)
	uri := utils.PathToURI(path)
	require.NoError(f.t, f.s.didOpen(&glsp.Context{}, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "typescript", Version: 1, Text: text},
	}))
	return uri
}

func at(uri protocol.DocumentUri, line, char uint32) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Position:     protocol.Position{Line: line, Character: char},
	}
}

func (f *fixture) hover(uri protocol.DocumentUri, line, char uint32) string {
	f.t.Helper()
	h, err := f.s.onHover(&glsp.Context{}, &protocol.HoverParams{TextDocumentPositionParams: at(uri, line, char)})
	require.NoError(f.t, err)
	if h == nil {
		return ""
	}
	return h.Contents.(protocol.MarkupContent).Value
}

func TestBuildAndHover(t *testing.T) {
	f := newFixture(t, true, nil)

	entry, ok := f.s.index.Lookup("common.ok")
	require.True(t, ok)
	assert.Equal(t, "确定", entry.Value)

	uri := f.open("src/app.ts", `t("common.ok")`)
	assert.Equal(t, "确定", f.hover(uri, 0, 5))
	assert.Equal(t, "", f.hover(uri, 0, 0))
}

func TestDecorationOnOpen(t *testing.T) {
	f := newFixture(t, true, nil)

	uri := f.open("src/view.ts", `foo("common.cancel")`)
	decorations, ok := f.rec.decorations(uri)
	require.True(t, ok)
	require.Len(t, decorations, 1)
	assert.Equal(t, "取消", decorations[0].RenderOptions.After.ContentText)
	assert.Equal(t, protocol.Position{Line: 0, Character: 4}, decorations[0].Range.Start)
	assert.Equal(t, protocol.Position{Line: 0, Character: 18}, decorations[0].Range.End)
}

func TestDefinitionLink(t *testing.T) {
	f := newFixture(t, true, nil)
	uri := f.open("src/app.ts", `t("common.ok")`)

	r, err := f.s.onDefinition(&glsp.Context{}, &protocol.DefinitionParams{TextDocumentPositionParams: at(uri, 0, 5)})
	require.NoError(t, err)
	links, ok := r.([]protocol.LocationLink)
	require.True(t, ok)
	require.Len(t, links, 1)
	assert.Equal(t, utils.PathToURI(filepath.Join(f.root, "src", "locales", "zh-CN.ts")), links[0].TargetURI)
	assert.Equal(t, uint32(1), links[0].TargetRange.Start.Line)
	require.NotNil(t, links[0].OriginSelectionRange)
	assert.Equal(t, uint32(2), links[0].OriginSelectionRange.Start.Character)
}

func TestDefinitionWithoutLinkSupport(t *testing.T) {
	f := newFixture(t, false, nil)
	uri := f.open("src/app.ts", `t("common.cancel")`)

	r, err := f.s.onDefinition(&glsp.Context{}, &protocol.DefinitionParams{TextDocumentPositionParams: at(uri, 0, 5)})
	require.NoError(t, err)
	locations, ok := r.([]protocol.Location)
	require.True(t, ok)
	require.Len(t, locations, 1)
	assert.Equal(t, uint32(2), locations[0].Range.Start.Line)
}

func TestRebuildOnChange(t *testing.T) {
	f := newFixture(t, true, nil)
	uri := f.open("src/app.ts", `t("common.ok")`)
	require.Equal(t, "确定", f.hover(uri, 0, 5))

	dict := filepath.Join(f.root, "src", "locales", "zh-CN.ts")
	writeFile(t, dict, strings.Replace(zhCN, "确定", "好", 1))
	require.NoError(t, f.s.didChangeWatchedFiles(&glsp.Context{}, &protocol.DidChangeWatchedFilesParams{
		Changes: []protocol.FileEvent{{URI: utils.PathToURI(dict), Type: protocol.FileChangeTypeChanged}},
	}))

	assert.Eventually(t, func() bool {
		return f.hover(uri, 0, 5) == "好"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		decorations, _ := f.rec.decorations(uri)
		return len(decorations) == 1 && decorations[0].RenderOptions.After.ContentText == "好"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownKey(t *testing.T) {
	f := newFixture(t, true, nil)
	uri := f.open("src/app.ts", `t("does.not.exist")`)

	assert.Equal(t, "", f.hover(uri, 0, 5))
	r, err := f.s.onDefinition(&glsp.Context{}, &protocol.DefinitionParams{TextDocumentPositionParams: at(uri, 0, 5)})
	require.NoError(t, err)
	assert.Nil(t, r)

	decorations, ok := f.rec.decorations(uri)
	require.True(t, ok)
	assert.Empty(t, decorations)
}

func TestReferences(t *testing.T) {
	f := newFixture(t, true, nil)
	require.NoError(t, f.s.clip.Write(context.Background(), "user text"))
	uri := f.open("src/app.ts", "// usage\n    t(\"common.ok\")\n")

	locations, err := f.s.onReferences(&glsp.Context{}, &protocol.ReferenceParams{TextDocumentPositionParams: at(uri, 1, 8)})
	require.NoError(t, err)

	assert.Contains(t, locations, protocol.Location{
		URI: uri,
		Range: protocol.Range{
			Start: protocol.Position{Line: 1, Character: 6},
			End:   protocol.Position{Line: 1, Character: 17},
		},
	})
	assert.Contains(t, locations, protocol.Location{
		URI: utils.PathToURI(filepath.Join(f.root, "src", "locales", "zh-CN.ts")),
		Range: protocol.Range{
			Start: protocol.Position{Line: 1, Character: 2},
			End:   protocol.Position{Line: 1, Character: 13},
		},
	})

	text, err := f.s.clip.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user text", text)
}

func TestReferencesDirectMode(t *testing.T) {
	f := newFixture(t, true, map[string]any{"references": map[string]any{"mode": "direct"}})
	uri := f.open("src/app.ts", `t("common.ok")`)

	locations, err := f.s.onReferences(&glsp.Context{}, &protocol.ReferenceParams{TextDocumentPositionParams: at(uri, 0, 5)})
	require.NoError(t, err)
	assert.Len(t, locations, 2)
}

func TestReferencesUnknownKey(t *testing.T) {
	f := newFixture(t, true, nil)
	uri := f.open("src/app.ts", `t("does.not.exist")`)

	locations, err := f.s.onReferences(&glsp.Context{}, &protocol.ReferenceParams{TextDocumentPositionParams: at(uri, 0, 5)})
	require.NoError(t, err)
	assert.Empty(t, locations)
}

type fakeFinder struct {
	err error
}

func (f fakeFinder) Find(context.Context, string) ([]references.Location, error) {
	return nil, f.err
}

func TestReferencesTimeoutWarns(t *testing.T) {
	f := newFixture(t, true, nil)
	uri := f.open("src/app.ts", `t("common.ok")`)
	f.s.finder = fakeFinder{err: references.ErrSearchTimeout}

	locations, err := f.s.onReferences(&glsp.Context{}, &protocol.ReferenceParams{TextDocumentPositionParams: at(uri, 0, 5)})
	require.NoError(t, err)
	assert.NotNil(t, locations)
	assert.Empty(t, locations)

	messages := f.rec.messages()
	require.Len(t, messages, 1)
	assert.Equal(t, protocol.MessageTypeWarning, messages[0].Type)
	assert.Contains(t, messages[0].Message, "common.ok")
}

func TestVisibleEditors(t *testing.T) {
	f := newFixture(t, true, nil)
	a := f.open("src/a.ts", `t("common.ok")`)
	b := f.open("src/b.ts", `t("common.cancel")`)
	f.rec.reset()

	f.call(MethodDidChangeVisibleEditors, VisibleEditorsParams{URIs: []protocol.DocumentUri{b}})
	_, ok := f.rec.decorations(a)
	assert.False(t, ok)
	decorations, ok := f.rec.decorations(b)
	require.True(t, ok)
	require.Len(t, decorations, 1)
	assert.Equal(t, "取消", decorations[0].RenderOptions.After.ContentText)
}

func TestDictionaryAndUnsupportedDocumentsAreNotDecorated(t *testing.T) {
	f := newFixture(t, true, nil)
	dict := f.open("src/locales/zh-CN.ts", zhCN)
	decorations, ok := f.rec.decorations(dict)
	require.True(t, ok)
	assert.Empty(t, decorations)

	path := filepath.Join(f.root, "README.md")
	writeFile(t, path, `"common.ok"`)
	md := utils.PathToURI(path)
	require.NoError(t, f.s.didOpen(&glsp.Context{}, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: md, LanguageID: "markdown", Version: 1, Text: `"common.ok"`},
	}))
	_, ok = f.rec.decorations(md)
	assert.False(t, ok)
	assert.Equal(t, "", f.hover(md, 0, 3))
}

func TestTypingInActiveEditorRedecorates(t *testing.T) {
	f := newFixture(t, true, nil)
	uri := f.open("src/app.ts", `t("x")`)
	f.rec.reset()

	require.NoError(t, f.s.didChange(&glsp.Context{}, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                2,
		},
		ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: `t("common.ok")`}},
	}))

	assert.Eventually(t, func() bool {
		decorations, _ := f.rec.decorations(uri)
		return len(decorations) == 1 && decorations[0].Key == "common.ok"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRebuildRequest(t *testing.T) {
	f := newFixture(t, true, nil)
	writeFile(t, filepath.Join(f.root, "src", "locales", "zh-CN", "extra.ts"), `{ "extra.key": "x" }`)

	r := f.call(MethodRebuild, nil)
	result, ok := r.(RebuildResult)
	require.True(t, ok)
	assert.Equal(t, 3, result.Keys)
	assert.Equal(t, 2, result.Files)
}

func TestWatcherRunsBeforeStartupBuild(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, "src", "locales", "zh-CN.ts"), zhCN)
	appPath := filepath.Join(root, "src", "app.ts")
	writeFile(t, appPath, `t("common.ok")`)

	s := NewServer()
	t.Cleanup(s.Close)
	h := &handler{Handler: &s.h, server: s}

	var (
		mu      sync.Mutex
		watched []bool
	)
	notify := func(method string, params any) {
		if method != decorate.Method {
			return
		}
		if p := params.(decorate.Params); len(p.Decorations) == 0 {
			return
		}
		s.mu.Lock()
		w := s.watcher
		s.mu.Unlock()
		mu.Lock()
		watched = append(watched, w != nil)
		mu.Unlock()
	}

	raw, err := json.Marshal(map[string]any{"rootUri": utils.PathToURI(root), "capabilities": map[string]any{}})
	require.NoError(t, err)
	_, _, _, err = h.Handle(&glsp.Context{Method: "initialize", Params: raw, Notify: notify})
	require.NoError(t, err)

	require.NoError(t, s.didOpen(&glsp.Context{}, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: utils.PathToURI(appPath), LanguageID: "typescript", Version: 1, Text: `t("common.ok")`},
	}))
	_, _, _, err = h.Handle(&glsp.Context{Method: "initialized", Params: json.RawMessage(`{}`), Notify: notify})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, watched)
	assert.True(t, watched[0], "first decorated refresh happened before the watcher was subscribed")
}

func TestCustomMethodsBeforeInitialize(t *testing.T) {
	s := NewServer()
	h := &handler{Handler: &s.h, server: s}
	_, validMethod, _, err := h.Handle(&glsp.Context{Method: MethodRebuild})
	assert.True(t, validMethod)
	assert.Error(t, err)
}
