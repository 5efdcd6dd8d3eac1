// Package decorate computes the inline translations shown after locale keys
// in source files.
package decorate

import (
	"sync"
	"time"

	"github.com/shinyvision/i18nlens/internal/config"
	"github.com/shinyvision/i18nlens/internal/locale"
	"github.com/shinyvision/i18nlens/internal/scanner"
	"github.com/shinyvision/i18nlens/internal/textpos"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Method is the notification carrying the decorations of one document.
const Method = "i18nlens/decorations"

type After struct {
	ContentText string `json:"contentText"`
	Color       string `json:"color,omitempty"`
	Border      string `json:"border,omitempty"`
	Margin      string `json:"margin,omitempty"`
}

type RenderOptions struct {
	After After `json:"after"`
}

type Decoration struct {
	Range         protocol.Range `json:"range"`
	Key           string         `json:"key"`
	RenderOptions RenderOptions  `json:"renderOptions"`
}

// Params replaces every decoration of a document. An empty list clears them.
type Params struct {
	URI         protocol.DocumentUri `json:"uri"`
	Version     int32                `json:"version"`
	Decorations []Decoration         `json:"decorations"`
}

// Editor is a document currently shown to the user.
type Editor struct {
	URI     protocol.DocumentUri
	Path    string
	Version int32
	Text    string
}

// Publisher sends a notification to the client.
type Publisher func(method string, params any)

// Decorate returns a decoration for every quoted key of text that the
// snapshot knows. The range starts at the opening quote and covers the key,
// stopping one short of the closing quote.
func Decorate(snap *locale.Snapshot, text string, style config.DecorationConfig) []Decoration {
	occs := scanner.Identifiers(text)
	if len(occs) == 0 {
		return []Decoration{}
	}

	lines := textpos.NewLines(text)
	out := make([]Decoration, 0, len(occs))
	for _, o := range occs {
		entry, ok := snap.Lookup(o.Key)
		if !ok {
			continue
		}
		out = append(out, Decoration{
			Range: lines.Range(o.Start, o.Start+o.Length+1),
			Key:   o.Key,
			RenderOptions: RenderOptions{After: After{
				ContentText: entry.Value,
				Color:       style.Color,
				Border:      style.Border,
				Margin:      style.Margin,
			}},
		})
	}
	return out
}

// Decorator republishes the decorations of all visible editors.
type Decorator struct {
	index    *locale.Index
	editors  func() []Editor
	publish  Publisher
	style    config.DecorationConfig
	throttle *Throttle

	mu sync.Mutex
}

func NewDecorator(index *locale.Index, editors func() []Editor, publish Publisher, style config.DecorationConfig, refresh time.Duration) *Decorator {
	d := &Decorator{
		index:   index,
		editors: editors,
		publish: publish,
		style:   style,
	}
	d.throttle = NewThrottle(refresh, d.Refresh)
	return d
}

// Refresh recomputes every visible editor against one snapshot.
func (d *Decorator) Refresh() {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := d.index.Snapshot()
	for _, ed := range d.editors() {
		decorations := []Decoration{}
		if !snap.IsDictionaryFile(ed.Path) {
			decorations = Decorate(snap, ed.Text, d.style)
		}
		d.publish(Method, Params{
			URI:         ed.URI,
			Version:     ed.Version,
			Decorations: decorations,
		})
	}
}

// TextChanged is the rate limited Refresh used while the user types.
func (d *Decorator) TextChanged() {
	d.throttle.Trigger()
}

func (d *Decorator) Close() {
	d.throttle.Stop()
}
