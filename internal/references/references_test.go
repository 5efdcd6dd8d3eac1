package references

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shinyvision/i18nlens/internal/clipboard"
	"github.com/shinyvision/i18nlens/internal/locale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const results = "/work/src/pages/home.tsx\n  0,4: t(\"common.ok\")\n  12,10: <b>{t('common.ok')}</b>\n/work/src/app.ts\n  3,2: \"common.ok\"\n"

type fakeHost struct {
	mu         sync.Mutex
	clip       clipboard.Clipboard
	readyAfter int
	text       string
	findErr    error
	copyErr    error
	queries    []Query
	copies     int
}

func (h *fakeHost) FindInFiles(_ context.Context, q Query) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queries = append(h.queries, q)
	return h.findErr
}

func (h *fakeHost) CopyAllResults(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.copies++
	if h.copyErr != nil {
		return h.copyErr
	}
	if h.readyAfter > 0 && h.copies >= h.readyAfter {
		return h.clip.Write(ctx, h.text)
	}
	return nil
}

func newIndex(t *testing.T) *locale.Index {
	t.Helper()
	idx := locale.NewIndex()
	require.NoError(t, idx.Replace(&locale.Snapshot{
		Generation: 1,
		Entries: map[string]locale.Entry{
			"common.ok": {Key: "common.ok", Value: "确定", File: "/work/src/locales/zh-CN.ts"},
		},
		Files: map[string]struct{}{"/work/src/locales/zh-CN.ts": {}},
	}))
	return idx
}

func newClipboard(t *testing.T, text string) *clipboard.Memory {
	t.Helper()
	clip := clipboard.NewMemory()
	require.NoError(t, clip.Write(context.Background(), text))
	return clip
}

func readClipboard(t *testing.T, clip clipboard.Clipboard) string {
	t.Helper()
	text, err := clip.Read(context.Background())
	require.NoError(t, err)
	return text
}

func TestRendezvousFind(t *testing.T) {
	clip := newClipboard(t, "original")
	host := &fakeHost{clip: clip, readyAfter: 3, text: results}
	r := NewRendezvous(newIndex(t), host, clip, 5*time.Millisecond, time.Second)

	locs, err := r.Find(context.Background(), "common.ok")
	require.NoError(t, err)
	assert.Equal(t, []Location{
		{File: "/work/src/pages/home.tsx", Line: 0, Column: 4},
		{File: "/work/src/pages/home.tsx", Line: 12, Column: 10},
		{File: "/work/src/app.ts", Line: 3, Column: 2},
	}, locs)

	require.Len(t, host.queries, 1)
	q := host.queries[0]
	assert.Equal(t, `(['"])common\.ok\1`, q.Pattern)
	assert.True(t, q.IsRegex)
	assert.True(t, q.CaseSensitive)
	assert.True(t, q.WholeWord)
	assert.True(t, q.UseIgnoreFiles)
	assert.Equal(t, 3, host.copies)

	assert.Equal(t, "original", readClipboard(t, clip))
}

func TestRendezvousUnknownKey(t *testing.T) {
	clip := newClipboard(t, "original")
	host := &fakeHost{clip: clip, readyAfter: 1, text: results}
	r := NewRendezvous(newIndex(t), host, clip, time.Millisecond, time.Second)

	locs, err := r.Find(context.Background(), "does.not.exist")
	require.NoError(t, err)
	assert.Empty(t, locs)
	assert.Empty(t, host.queries)
	assert.Equal(t, "original", readClipboard(t, clip))
}

func TestRendezvousTimeout(t *testing.T) {
	clip := newClipboard(t, "original")
	host := &fakeHost{clip: clip}
	r := NewRendezvous(newIndex(t), host, clip, 5*time.Millisecond, 30*time.Millisecond)

	locs, err := r.Find(context.Background(), "common.ok")
	require.ErrorIs(t, err, ErrSearchTimeout)
	assert.Empty(t, locs)
	assert.GreaterOrEqual(t, host.copies, 2)
	assert.Equal(t, "original", readClipboard(t, clip))
}

func TestRendezvousShortBudgetPollsOnce(t *testing.T) {
	// A budget shorter than the poll interval leaves room for one attempt.
	clip := newClipboard(t, "original")
	host := &fakeHost{clip: clip, readyAfter: 1, text: results}
	r := NewRendezvous(newIndex(t), host, clip, 20*time.Millisecond, 5*time.Millisecond)

	locs, err := r.Find(context.Background(), "common.ok")
	require.NoError(t, err)
	assert.Len(t, locs, 3)

	host = &fakeHost{clip: clip, readyAfter: 2, text: results}
	r = NewRendezvous(newIndex(t), host, clip, 20*time.Millisecond, 5*time.Millisecond)
	_, err = r.Find(context.Background(), "common.ok")
	require.ErrorIs(t, err, ErrSearchTimeout)
	assert.Equal(t, 1, host.copies)
	assert.Equal(t, "original", readClipboard(t, clip))
}

func TestRendezvousBlankClipboardKeepsPolling(t *testing.T) {
	clip := newClipboard(t, "original")
	host := &fakeHost{clip: clip, readyAfter: 1, text: "  \n"}
	r := NewRendezvous(newIndex(t), host, clip, 2*time.Millisecond, 20*time.Millisecond)

	_, err := r.Find(context.Background(), "common.ok")
	require.ErrorIs(t, err, ErrSearchTimeout)
	assert.Equal(t, "original", readClipboard(t, clip))
}

func TestRendezvousHostErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("find_in_files", func(t *testing.T) {
		clip := newClipboard(t, "original")
		host := &fakeHost{clip: clip, findErr: boom}
		r := NewRendezvous(newIndex(t), host, clip, time.Millisecond, time.Second)

		_, err := r.Find(context.Background(), "common.ok")
		require.ErrorIs(t, err, boom)
		assert.Zero(t, host.copies)
		assert.Equal(t, "original", readClipboard(t, clip))
	})

	t.Run("copy_all", func(t *testing.T) {
		clip := newClipboard(t, "original")
		host := &fakeHost{clip: clip, copyErr: boom}
		r := NewRendezvous(newIndex(t), host, clip, time.Millisecond, time.Second)

		_, err := r.Find(context.Background(), "common.ok")
		require.ErrorIs(t, err, boom)
		assert.Equal(t, "original", readClipboard(t, clip))
	})

	t.Run("cancelled", func(t *testing.T) {
		clip := newClipboard(t, "original")
		host := &fakeHost{clip: clip}
		r := NewRendezvous(newIndex(t), host, clip, 50*time.Millisecond, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := r.Find(ctx, "common.ok")
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, "original", readClipboard(t, clip))
	})
}

type fakeSearcher struct {
	locs []Location
	q    Query
}

func (s *fakeSearcher) Search(_ context.Context, q Query) ([]Location, error) {
	s.q = q
	return s.locs, nil
}

func TestDirect(t *testing.T) {
	s := &fakeSearcher{locs: []Location{{File: "/work/a.ts", Line: 1, Column: 2}}}
	d := NewDirect(newIndex(t), s)

	locs, err := d.Find(context.Background(), "common.ok")
	require.NoError(t, err)
	assert.Equal(t, s.locs, locs)
	assert.Equal(t, "common.ok", s.q.Key)

	locs, err = d.Find(context.Background(), "does.not.exist")
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestParse(t *testing.T) {
	text := "3,1: before any file\r\n" +
		"/work/a.ts\r\n" +
		"  0,4: t(\"common.ok\")\r\n" +
		"\r\n" +
		"  garbage line\r\n" +
		"  x,1: not a location\r\n" +
		"  7,0: \"common.ok\"\r\n" +
		"relative/path.ts\r\n" +
		"  9,9: still a.ts\r\n" +
		"/work/b.ts\n" +
		"1,2:\n"

	assert.Equal(t, []Location{
		{File: "/work/a.ts", Line: 0, Column: 4},
		{File: "/work/a.ts", Line: 7, Column: 0},
		{File: "/work/a.ts", Line: 9, Column: 9},
		{File: "/work/b.ts", Line: 1, Column: 2},
	}, Parse(text))

	assert.Empty(t, Parse(""))
}
