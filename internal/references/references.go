// Package references finds where a locale key is used across the workspace.
//
// The editor only offers its search as a UI action: "find in files" fills
// the search panel and "copy all" puts the panel's text on the clipboard.
// Rendezvous drives those two actions and watches the clipboard to learn
// when results are ready.
package references

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shinyvision/i18nlens/internal/clipboard"
	"github.com/shinyvision/i18nlens/internal/locale"
	"github.com/shinyvision/i18nlens/internal/scanner"
	"github.com/tliron/commonlog"
)

// Sentinel marks the clipboard as "results not copied yet".
const Sentinel = "@@magic"

var ErrSearchTimeout = errors.New("reference search timed out")

// Query is a "find in files" request.
type Query struct {
	Key            string
	Pattern        string
	IsRegex        bool
	CaseSensitive  bool
	WholeWord      bool
	UseIgnoreFiles bool
}

// NewQuery builds the search for key as a quoted string literal.
func NewQuery(key string) Query {
	return Query{
		Key:            key,
		Pattern:        scanner.QuotedKeyPattern(key),
		IsRegex:        true,
		CaseSensitive:  true,
		WholeWord:      true,
		UseIgnoreFiles: true,
	}
}

// Host runs workspace searches the way an editor's search panel does.
type Host interface {
	FindInFiles(ctx context.Context, q Query) error
	CopyAllResults(ctx context.Context) error
}

// Searcher answers a search directly, without the panel.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Location, error)
}

// Location is one zero-based occurrence.
type Location struct {
	File   string
	Line   uint32
	Column uint32
}

// Finder lists the usages of a key.
type Finder interface {
	Find(ctx context.Context, key string) ([]Location, error)
}

// Rendezvous finds usages through the search panel and the clipboard.
type Rendezvous struct {
	index        *locale.Index
	host         Host
	clip         clipboard.Clipboard
	pollInterval time.Duration
	timeout      time.Duration
}

// NewRendezvous creates a Finder that polls every pollInterval and gives up
// once timeout has elapsed since polling started.
func NewRendezvous(index *locale.Index, host Host, clip clipboard.Clipboard, pollInterval, timeout time.Duration) *Rendezvous {
	return &Rendezvous{
		index:        index,
		host:         host,
		clip:         clip,
		pollInterval: pollInterval,
		timeout:      timeout,
	}
}

// Find returns nothing for keys that are not in the index. On every path
// that touched the clipboard, its previous content is put back.
func (r *Rendezvous) Find(ctx context.Context, key string) ([]Location, error) {
	if !r.index.Has(key) {
		return nil, nil
	}

	if err := r.host.FindInFiles(ctx, NewQuery(key)); err != nil {
		return nil, fmt.Errorf("find in files: %w", err)
	}

	saved, err := r.clip.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("save clipboard: %w", err)
	}
	defer r.restore(ctx, saved)

	if err := r.clip.Write(ctx, Sentinel); err != nil {
		return nil, fmt.Errorf("write clipboard sentinel: %w", err)
	}

	text, err := r.poll(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(text), nil
}

func (r *Rendezvous) poll(ctx context.Context) (string, error) {
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.pollInterval):
		}

		if err := r.host.CopyAllResults(ctx); err != nil {
			return "", fmt.Errorf("copy search results: %w", err)
		}
		text, err := r.clip.Read(ctx)
		if err != nil {
			return "", fmt.Errorf("read clipboard: %w", err)
		}
		if text != Sentinel && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if time.Since(start) >= r.timeout {
			return "", ErrSearchTimeout
		}
	}
}

func (r *Rendezvous) restore(ctx context.Context, saved string) {
	if err := r.clip.Write(context.WithoutCancel(ctx), saved); err != nil {
		commonlog.GetLoggerf("i18nlens.references").Warningf("could not restore clipboard: %v", err)
	}
}

// Direct asks a Searcher for the usages.
type Direct struct {
	index    *locale.Index
	searcher Searcher
}

func NewDirect(index *locale.Index, searcher Searcher) *Direct {
	return &Direct{index: index, searcher: searcher}
}

func (d *Direct) Find(ctx context.Context, key string) ([]Location, error) {
	if !d.index.Has(key) {
		return nil, nil
	}
	return d.searcher.Search(ctx, NewQuery(key))
}

var occurrenceRe = regexp.MustCompile(`^\s*(\d+),(\d+):`)

// Parse reads the "copy all" text of the search panel: an absolute path on
// a line of its own, followed by "L,C: ..." lines for its matches. Other
// lines are ignored.
func Parse(text string) []Location {
	var (
		file string
		out  []Location
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if m := occurrenceRe.FindStringSubmatch(line); m != nil {
			if file == "" {
				continue
			}
			ln, err1 := strconv.ParseUint(m[1], 10, 32)
			col, err2 := strconv.ParseUint(m[2], 10, 32)
			if err1 != nil || err2 != nil {
				continue
			}
			out = append(out, Location{File: file, Line: uint32(ln), Column: uint32(col)})
			continue
		}

		if filepath.IsAbs(trimmed) {
			file = trimmed
		}
	}
	return out
}
