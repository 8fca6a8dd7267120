package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/amanrecall/internal/store"
)

// fakeLexical returns fixed ids or an error and records the last call.
type fakeLexical struct {
	ids   []int64
	err   error
	block bool // wait for ctx cancellation
	meet  *meeting

	mu        sync.Mutex
	calls     int
	lastQuery string
	lastLimit int
}

func (f *fakeLexical) Query(ctx context.Context, text string, limit int) ([]int64, error) {
	f.mu.Lock()
	f.calls++
	f.lastQuery = text
	f.lastLimit = limit
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.meet.arrive(ctx, "lexical"); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

func (f *fakeLexical) Close() error { return nil }

func (f *fakeLexical) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// meeting makes the lexical and semantic fakes wait for each other. Both
// arrive only if the engine runs them at the same time.
type meeting struct {
	lexical  chan struct{}
	semantic chan struct{}
}

func newMeeting() *meeting {
	return &meeting{lexical: make(chan struct{}), semantic: make(chan struct{})}
}

// arrive announces side and waits for the other one. A nil meeting is a
// no-op.
func (m *meeting) arrive(ctx context.Context, side string) error {
	if m == nil {
		return nil
	}
	mine, other := m.lexical, m.semantic
	if side == "semantic" {
		mine, other = m.semantic, m.lexical
	}
	close(mine)
	select {
	case <-other:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fakeEmbedder returns a fixed vector or error.
type fakeEmbedder struct {
	vec   []float32
	err   error
	block bool // wait for ctx cancellation
	meet  *meeting
	calls atomic.Int64
}

func (f *fakeEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.meet.arrive(ctx, "semantic"); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Dimensions() int                { return len(f.vec) }
func (f *fakeEmbedder) ModelName() string              { return "fake" }
func (f *fakeEmbedder) Available(context.Context) bool { return f.err == nil }
func (f *fakeEmbedder) Close() error                   { return nil }

// fakeEmbeddingReader counts reloads.
type fakeEmbeddingReader struct {
	mu      sync.Mutex
	entries []store.VectorEntry
	err     error
	calls   atomic.Int64
}

func (f *fakeEmbeddingReader) AllEmbeddings(context.Context) ([]store.VectorEntry, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]store.VectorEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeEmbeddingReader) set(entries []store.VectorEntry, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = entries
	f.err = err
}

// fakeFragments serves fragments from a map, in map order.
type fakeFragments struct {
	frags map[int64]*store.Fragment
	err   error
	calls atomic.Int64
	last  []int64
}

func (f *fakeFragments) GetFragments(_ context.Context, ids []int64) ([]*store.Fragment, error) {
	f.calls.Add(1)
	f.last = ids
	if f.err != nil {
		return nil, f.err
	}
	var out []*store.Fragment
	for _, id := range ids {
		if fr, ok := f.frags[id]; ok {
			out = append(out, fr)
		}
	}
	// Reverse to prove callers do not rely on store order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

var errStoreDown = errors.New("database is locked")

func frag(id int64, content string) *store.Fragment {
	return &store.Fragment{ID: id, Content: content, SourceFile: "notes/doc.md", StartLine: 1, EndLine: 3}
}

// fixedClock is a settable time source.
type fixedClock struct {
	mu  sync.Mutex
	now int64 // unix seconds
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *fixedClock) advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}
