package highlight

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/dshills/glint/internal/backend"
	"github.com/dshills/glint/internal/config"
	"github.com/dshills/glint/internal/lineindex"
	"github.com/dshills/glint/internal/token"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend is a scriptable Backend that records every request.
type fakeBackend struct {
	name    string
	rangeOK bool
	isWarm  bool

	mu       sync.Mutex
	calls    int
	requests []backend.Request
	err      error

	// release, when non-nil, blocks Tokenize until closed.
	release chan struct{}
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) CanTokenizeRange() bool { return f.rangeOK }

func (f *fakeBackend) Warm(languageID string) bool { return f.isWarm }

func (f *fakeBackend) Tokenize(ctx context.Context, req backend.Request) ([]token.Token, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	release := f.release
	err := f.err
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	// One byte-addressed token per word keeps results content-dependent.
	var tokens []token.Token
	offset := 0
	for _, field := range strings.SplitAfter(req.Content, " ") {
		word := strings.TrimRight(field, " \n")
		if word != "" {
			tokens = append(tokens, token.Token{
				Start: offset,
				End:   offset + len(word),
				Type:  "keyword",
			})
		}
		offset += len(field)
	}
	return tokens, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBackend) lastRequest() backend.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return backend.Request{}
	}
	return f.requests[len(f.requests)-1]
}

func testConfig() config.HighlightConfig {
	return config.HighlightConfig{
		DebounceMinMS:            20,
		DebounceMaxMS:            200,
		IncrementalLineThreshold: 3,
		LargeDocumentBytes:       10240,
		CacheCapacity:            8,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestColdStartTokenizesImmediately(t *testing.T) {
	fb := &fakeBackend{name: "fake", isWarm: true}
	c := New(testConfig(), WithGrammar(fb))
	defer c.Dispose()

	c.SetActiveFile("main.go", "package main")

	waitFor(t, func() bool { return c.Stats().Applied == 1 }, "cold start apply")

	if fb.callCount() != 1 {
		t.Errorf("backend calls = %d, want 1", fb.callCount())
	}
	tokens := c.LineTokens(0)
	if len(tokens) != 2 {
		t.Fatalf("line 0 tokens = %d, want 2", len(tokens))
	}
	if tokens[0].Start != 0 || tokens[0].End != 7 {
		t.Errorf("first token = [%d, %d), want [0, 7)", tokens[0].Start, tokens[0].End)
	}
	if tokens[0].Class == "" {
		t.Error("token class not assigned")
	}
}

func TestRapidEditsCoalesceIntoOnePass(t *testing.T) {
	fb := &fakeBackend{name: "fake", isWarm: true}
	c := New(testConfig(), WithGrammar(fb))
	defer c.Dispose()

	c.SetActiveFile("main.go", "package main")
	waitFor(t, func() bool { return c.Stats().Applied == 1 }, "cold start apply")

	for i := 0; i < 6; i++ {
		c.OnContentChanged("package main edited", nil)
		time.Sleep(2 * time.Millisecond)
	}

	waitFor(t, func() bool { return c.Stats().Applied == 2 }, "debounced apply")
	time.Sleep(50 * time.Millisecond)

	if got := fb.callCount(); got != 2 {
		t.Errorf("backend calls = %d, want 2 (cold start + one coalesced pass)", got)
	}
}

func TestStaleResultDropped(t *testing.T) {
	release := make(chan struct{})
	fb := &fakeBackend{name: "fake", isWarm: true, release: release}
	c := New(testConfig(), WithGrammar(fb))
	defer c.Dispose()

	// Cold start blocks inside the backend.
	c.SetActiveFile("main.go", "package main")
	waitFor(t, func() bool { return fb.callCount() == 1 }, "cold start dispatch")

	// A newer edit supersedes the in-flight request.
	c.OnContentChanged("package main func", nil)

	// Unblock: the cold-start result must be dropped, not applied.
	fb.mu.Lock()
	fb.release = nil
	fb.mu.Unlock()
	close(release)

	waitFor(t, func() bool { return c.Stats().Applied == 1 }, "apply of fresh result")
	waitFor(t, func() bool { return c.Stats().Stale == 1 }, "stale drop")

	tokens := c.LineTokens(0)
	if len(tokens) != 3 {
		t.Fatalf("line 0 tokens = %d, want 3 from the newer content", len(tokens))
	}
}

func TestCacheHitAppliesSynchronously(t *testing.T) {
	fb := &fakeBackend{name: "fake", isWarm: true}
	c := New(testConfig(), WithGrammar(fb))
	defer c.Dispose()

	c.SetActiveFile("a.go", "package a")
	waitFor(t, func() bool { return c.Stats().Applied == 1 }, "first file apply")
	c.SetActiveFile("b.go", "package b")
	waitFor(t, func() bool { return c.Stats().Applied == 2 }, "second file apply")

	// Returning to a.go with identical content is served from cache
	// before SetActiveFile returns.
	c.SetActiveFile("a.go", "package a")
	if got := len(c.LineTokens(0)); got != 2 {
		t.Fatalf("line 0 tokens immediately after activation = %d, want 2", got)
	}
	if c.Stats().CacheHits != 1 {
		t.Errorf("cache hits = %d, want 1", c.Stats().CacheHits)
	}

	// The background refresh still runs once.
	waitFor(t, func() bool { return c.Stats().Applied == 3 }, "background refresh")
}

func TestUnchangedContentSkipsBackend(t *testing.T) {
	fb := &fakeBackend{name: "fake", isWarm: true}
	c := New(testConfig(), WithGrammar(fb))
	defer c.Dispose()

	content := "package main"
	c.SetActiveFile("main.go", content)
	waitFor(t, func() bool { return c.Stats().Applied == 1 }, "cold start apply")

	// An edit that lands back on the cached content, as after an undo.
	c.OnContentChanged(content, nil)
	waitFor(t, func() bool { return c.State() == StateApplied }, "settle without fetch")
	time.Sleep(50 * time.Millisecond)

	if got := fb.callCount(); got != 1 {
		t.Errorf("backend calls = %d, want 1 (fingerprint match skips the backend)", got)
	}
	if got := len(c.LineTokens(0)); got != 2 {
		t.Errorf("line 0 tokens = %d, want 2", got)
	}
}

func TestFallbackWhenPrimaryFails(t *testing.T) {
	provider := &fakeBackend{name: "provider", isWarm: true, err: errors.New("boom")}
	grammar := &fakeBackend{name: "grammar", isWarm: true, rangeOK: true}
	c := New(testConfig(), WithProvider(provider), WithGrammar(grammar))
	defer c.Dispose()

	c.SetActiveFile("main.go", "package main")
	waitFor(t, func() bool { return c.Stats().Applied == 1 }, "fallback apply")

	if provider.callCount() == 0 {
		t.Error("provider was never tried")
	}
	if grammar.callCount() == 0 {
		t.Error("grammar fallback was never tried")
	}
	if c.Stats().Fallbacks != 1 {
		t.Errorf("fallbacks = %d, want 1", c.Stats().Fallbacks)
	}
	if c.Unavailable() {
		t.Error("controller reports unavailable despite fallback success")
	}
}

func TestIncrementalEditSendsRange(t *testing.T) {
	fb := &fakeBackend{name: "fake", isWarm: true, rangeOK: true}
	c := New(testConfig(), WithGrammar(fb))
	defer c.Dispose()

	content := "package main\n\nfunc main() {\n}\n"
	c.SetActiveFile("main.go", content)
	waitFor(t, func() bool { return c.Stats().Applied == 1 }, "cold start apply")

	c.OnContentChanged(content, []int{2})
	waitFor(t, func() bool { return c.Stats().Applied == 2 }, "incremental apply")

	req := fb.lastRequest()
	if req.Range == nil {
		t.Fatal("expected a ranged request for a small edit")
	}
	if req.Range.Start != 2 || req.Range.End != 2 {
		t.Errorf("range = [%d, %d], want [2, 2]", req.Range.Start, req.Range.End)
	}
}

func TestManyAffectedLinesForceFullPass(t *testing.T) {
	fb := &fakeBackend{name: "fake", isWarm: true, rangeOK: true}
	c := New(testConfig(), WithGrammar(fb))
	defer c.Dispose()

	content := "a\nb\nc\nd\ne\nf\n"
	c.SetActiveFile("main.go", content)
	waitFor(t, func() bool { return c.Stats().Applied == 1 }, "cold start apply")

	// Four lines exceeds the threshold of three.
	c.OnContentChanged(content, []int{0, 1, 2, 3})
	waitFor(t, func() bool { return c.Stats().Applied == 2 }, "full apply")

	if req := fb.lastRequest(); req.Range != nil {
		t.Errorf("range = %+v, want nil for an above-threshold edit", req.Range)
	}
}

func TestEmptyAffectedLinesTriggersFullPass(t *testing.T) {
	fb := &fakeBackend{name: "fake", isWarm: true, rangeOK: true}
	c := New(testConfig(), WithGrammar(fb))
	defer c.Dispose()

	c.SetActiveFile("main.go", "package main")
	waitFor(t, func() bool { return c.Stats().Applied == 1 }, "cold start apply")

	// An edit with an empty (non-nil) line set still carries new
	// content; it must be tokenized, not left scheduled forever.
	c.OnContentChanged("package main edited", []int{})
	waitFor(t, func() bool { return c.Stats().Applied == 2 }, "apply of empty-line-set edit")

	if req := fb.lastRequest(); req.Range != nil {
		t.Errorf("range = %+v, want nil full pass for an empty line set", req.Range)
	}
	if got := len(c.LineTokens(0)); got != 3 {
		t.Errorf("line 0 tokens = %d, want 3 from the edited content", got)
	}
	if c.State() != StateApplied {
		t.Errorf("state = %v, want applied", c.State())
	}
}

func TestDisposeCancellationIsNotAFailure(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fb := &fakeBackend{name: "fake", isWarm: true, release: release}
	c := New(testConfig(), WithGrammar(fb))

	// Cold start blocks inside the backend; Dispose cancels it.
	c.SetActiveFile("main.go", "package main")
	waitFor(t, func() bool { return fb.callCount() == 1 }, "cold start dispatch")
	c.Dispose()

	if got := c.Stats().Failures; got != 0 {
		t.Errorf("failures = %d, want 0: cancellation is not a fault", got)
	}
	if c.Unavailable() {
		t.Error("cancellation must not surface as highlighting unavailable")
	}
}

func TestStaleSuccessDoesNotClearUnavailable(t *testing.T) {
	fb := &fakeBackend{name: "fake", isWarm: true, err: errors.New("down")}
	c := New(testConfig(), WithGrammar(fb))
	defer c.Dispose()

	c.SetActiveFile("main.go", "package main")
	waitFor(t, func() bool { return c.Unavailable() }, "unavailable signal")

	// Backend recovers but blocks; the pass it serves will be stale.
	release := make(chan struct{})
	fb.mu.Lock()
	fb.err = nil
	fb.release = release
	fb.mu.Unlock()

	c.OnContentChanged("package main edited", nil)
	waitFor(t, func() bool { return fb.callCount() == 6 }, "recovery pass dispatch")

	// A newer edit supersedes the blocked pass, and the backend goes
	// down again before the follow-up runs.
	c.OnContentChanged("package main edited more", nil)
	fb.mu.Lock()
	fb.err = errors.New("down")
	fb.release = nil
	fb.mu.Unlock()
	close(release)

	waitFor(t, func() bool { return c.Stats().Stale == 1 }, "stale drop")
	waitFor(t, func() bool { return c.Stats().Failures == 2 }, "follow-up failure")

	if !c.Unavailable() {
		t.Error("a dropped stale success must not clear the unavailable signal")
	}
	if c.Stats().Applied != 0 {
		t.Errorf("applied = %d, want 0: nothing ever landed", c.Stats().Applied)
	}
}

func TestUnavailableAfterExhaustedColdStart(t *testing.T) {
	fb := &fakeBackend{name: "fake", isWarm: true, err: errors.New("down")}
	c := New(testConfig(), WithGrammar(fb))
	defer c.Dispose()

	c.SetActiveFile("main.go", "package main")
	waitFor(t, func() bool { return c.Unavailable() }, "unavailable signal")

	if got := fb.callCount(); got != 5 {
		t.Errorf("backend calls = %d, want 5 retry attempts", got)
	}
	if c.Stats().Failures != 1 {
		t.Errorf("failures = %d, want 1", c.Stats().Failures)
	}
}

func TestDebouncedFailureKeepsPreviousTokens(t *testing.T) {
	fb := &fakeBackend{name: "fake", isWarm: true}
	c := New(testConfig(), WithGrammar(fb))
	defer c.Dispose()

	c.SetActiveFile("main.go", "package main")
	waitFor(t, func() bool { return c.Stats().Applied == 1 }, "cold start apply")
	before := c.LineTokens(0)

	fb.mu.Lock()
	fb.err = errors.New("transient")
	fb.mu.Unlock()

	c.OnContentChanged("package main broken", nil)
	waitFor(t, func() bool { return c.Stats().Failures == 1 }, "pass failure")

	after := c.LineTokens(0)
	if len(after) != len(before) {
		t.Errorf("tokens changed on failed pass: %d -> %d", len(before), len(after))
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle after failed pass", c.State())
	}
}

func TestDisposeStopsPendingWork(t *testing.T) {
	fb := &fakeBackend{name: "fake", isWarm: true}
	c := New(testConfig(), WithGrammar(fb))

	c.SetActiveFile("main.go", "package main")
	waitFor(t, func() bool { return c.Stats().Applied == 1 }, "cold start apply")
	c.OnContentChanged("package main edited", nil)
	c.Dispose()

	calls := fb.callCount()
	time.Sleep(100 * time.Millisecond)
	if got := fb.callCount(); got != calls {
		t.Errorf("backend called after Dispose: %d -> %d", calls, got)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle after Dispose", c.State())
	}
}

func TestMergeFlat(t *testing.T) {
	prev := []token.Token{
		{Start: 0, End: 3, Type: "keyword"},
		{Start: 5, End: 8, Type: "string"},
		{Start: 10, End: 14, Type: "comment"},
	}
	recomputed := []token.Token{{Start: 5, End: 9, Type: "function"}}

	out := mergeFlat(prev, recomputed, 4, 9)
	want := []token.Token{
		{Start: 0, End: 3, Type: "keyword"},
		{Start: 5, End: 9, Type: "function"},
		{Start: 10, End: 14, Type: "comment"},
	}
	if len(out) != len(want) {
		t.Fatalf("merged %d tokens, want %d", len(out), len(want))
	}
	for i, tok := range out {
		if tok != want[i] {
			t.Errorf("token %d = %+v, want %+v", i, tok, want[i])
		}
	}
}

func TestCharWindow(t *testing.T) {
	content := "ab\ncdé\nfg"
	tests := []struct {
		name       string
		start, end int
		wantStart  int
		wantEnd    int
	}{
		{"first line", 0, 0, 0, 2},
		{"middle line", 1, 1, 3, 6},
		{"last line", 2, 2, 7, 9},
		{"all lines", 0, 2, 0, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := lineindex.LineRange{Start: tt.start, End: tt.end}
			gotStart, gotEnd := charWindow(content, r)
			if gotStart != tt.wantStart || gotEnd != tt.wantEnd {
				t.Errorf("charWindow = [%d, %d), want [%d, %d)", gotStart, gotEnd, tt.wantStart, tt.wantEnd)
			}
		})
	}
}
