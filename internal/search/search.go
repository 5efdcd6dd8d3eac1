// Package search is a workspace "find in files" with a results panel that
// can be copied to a clipboard, as an editor's search view does.
package search

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/shinyvision/i18nlens/internal/clipboard"
	"github.com/shinyvision/i18nlens/internal/references"
	"github.com/shinyvision/i18nlens/internal/scanner"
	"github.com/shinyvision/i18nlens/internal/textpos"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

const (
	maxFileSize   = 2 << 20
	maxPreviewLen = 250
	sniffLen      = 8000
)

// Match is one search hit with the text of its line.
type Match struct {
	references.Location
	Preview string
}

type run struct {
	cancel  context.CancelFunc
	done    chan struct{}
	matches []Match
	err     error
}

// Workspace searches the files below root.
type Workspace struct {
	root    string
	exclude []string
	clip    clipboard.Clipboard
	workers int

	mu      sync.Mutex
	current *run
}

func New(root string, exclude []string, clip clipboard.Clipboard) *Workspace {
	return &Workspace{
		root:    root,
		exclude: exclude,
		clip:    clip,
		workers: 8,
	}
}

// FindInFiles replaces the panel content with a new search running in the
// background.
func (w *Workspace) FindInFiles(_ context.Context, q references.Query) error {
	re, err := compile(q)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, done: make(chan struct{})}

	w.mu.Lock()
	if w.current != nil {
		w.current.cancel()
	}
	w.current = r
	w.mu.Unlock()

	go func() {
		defer close(r.done)
		r.matches, r.err = w.scan(ctx, re, q.UseIgnoreFiles)
	}()
	return nil
}

// CopyAllResults copies the panel to the clipboard. While a search is still
// running, or when it found nothing, the clipboard is left alone.
func (w *Workspace) CopyAllResults(ctx context.Context) error {
	w.mu.Lock()
	r := w.current
	w.mu.Unlock()
	if r == nil {
		return nil
	}

	select {
	case <-r.done:
	default:
		return nil
	}
	if r.err != nil {
		commonlog.GetLoggerf("i18nlens.search").Warningf("search failed: %v", r.err)
		return nil
	}
	if len(r.matches) == 0 {
		return nil
	}
	return w.clip.Write(ctx, Render(r.matches))
}

// Search runs q to completion and returns the locations it found.
func (w *Workspace) Search(ctx context.Context, q references.Query) ([]references.Location, error) {
	matches, err := w.Matches(ctx, q)
	if err != nil {
		return nil, err
	}
	locs := make([]references.Location, len(matches))
	for i, m := range matches {
		locs[i] = m.Location
	}
	return locs, nil
}

// Matches runs q to completion.
func (w *Workspace) Matches(ctx context.Context, q references.Query) ([]Match, error) {
	re, err := compile(q)
	if err != nil {
		return nil, err
	}
	return w.scan(ctx, re, q.UseIgnoreFiles)
}

// Close cancels a running search.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		w.current.cancel()
	}
}

// Render formats matches as the panel's "copy all" text: each file path on
// its own line followed by indented "line,column: preview" lines.
func Render(matches []Match) string {
	var sb strings.Builder
	file := ""
	for _, m := range matches {
		if m.File != file {
			if file != "" {
				sb.WriteByte('\n')
			}
			file = m.File
			sb.WriteString(file)
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "  %d,%d: %s\n", m.Line, m.Column, m.Preview)
	}
	return sb.String()
}

func compile(q references.Query) (*regexp.Regexp, error) {
	var expr string
	switch {
	case q.Key != "":
		expr = scanner.QuotedKeyRegexp(q.Key).String()
	case q.IsRegex:
		expr = q.Pattern
	default:
		expr = regexp.QuoteMeta(q.Pattern)
	}
	if !q.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("search pattern %q: %w", q.Pattern, err)
	}
	return re, nil
}

func (w *Workspace) scan(ctx context.Context, re *regexp.Regexp, useExcludes bool) ([]Match, error) {
	files, err := w.files(ctx, useExcludes)
	if err != nil {
		return nil, err
	}

	perFile := make([][]Match, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perFile[i] = searchFile(file, re)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Match
	for _, m := range perFile {
		out = append(out, m...)
	}
	return out, nil
}

func (w *Workspace) files(ctx context.Context, useExcludes bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == w.root {
				return err
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == w.root {
			return nil
		}

		rel := filepath.ToSlash(strings.TrimPrefix(path, w.root+string(filepath.Separator)))
		if useExcludes && w.excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}
	return files, nil
}

func (w *Workspace) excluded(rel string) bool {
	for _, p := range w.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func searchFile(path string, re *regexp.Regexp) []Match {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxFileSize {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if bytes.IndexByte(data[:min(len(data), sniffLen)], 0) >= 0 {
		return nil
	}

	text := string(data)
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	lines := textpos.NewLines(text)
	out := make([]Match, 0, len(locs))
	for _, loc := range locs {
		pos := lines.Position(loc[0])
		out = append(out, Match{
			Location: references.Location{File: path, Line: pos.Line, Column: pos.Character},
			Preview:  preview(text, loc[0]),
		})
	}
	return out
}

func preview(text string, offset int) string {
	start := strings.LastIndexByte(text[:offset], '\n') + 1
	end := len(text)
	if i := strings.IndexByte(text[offset:], '\n'); i >= 0 {
		end = offset + i
	}
	line := strings.TrimSpace(strings.TrimRight(text[start:end], "\r"))
	if len(line) > maxPreviewLen {
		line = line[:maxPreviewLen]
	}
	return line
}
