// Package highlight coordinates syntax highlighting for the active
// document: it debounces edits, dispatches tokenization to a backend,
// drops stale results, and maintains the per-line token index that
// rendering reads from.
package highlight

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/glint/internal/backend"
	"github.com/dshills/glint/internal/cache"
	"github.com/dshills/glint/internal/config"
	"github.com/dshills/glint/internal/document"
	"github.com/dshills/glint/internal/lineindex"
	"github.com/dshills/glint/internal/logging"
	"github.com/dshills/glint/internal/offsetmap"
	"github.com/dshills/glint/internal/token"
)

// State tracks where the controller is in the edit-to-apply cycle for
// the active file.
type State int

const (
	// StateIdle means no highlight work is pending or in flight.
	StateIdle State = iota

	// StateScheduled means an edit is waiting out the debounce window.
	StateScheduled

	// StateFetching means a tokenization request is in flight.
	StateFetching

	// StateApplied means the most recent result has been applied and
	// no newer edit has arrived since.
	StateApplied
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateFetching:
		return "fetching"
	case StateApplied:
		return "applied"
	default:
		return "unknown"
	}
}

// BufferSource supplies the active buffer snapshot. document.Store
// implements it.
type BufferSource interface {
	ActiveBuffer() (document.Buffer, bool)
}

// TokenSink receives applied tokenizations. document.Store implements
// it.
type TokenSink interface {
	UpdateBufferTokens(id uuid.UUID, tokens []token.Token)
}

// Stats counts controller activity. All fields are cumulative.
type Stats struct {
	Requests  uint64 // tokenization requests dispatched
	Applied   uint64 // results applied to the line index
	Stale     uint64 // results dropped for a superseded generation
	Fallbacks uint64 // primary-backend failures served by the fallback
	Failures  uint64 // passes where every backend failed
	CacheHits uint64 // file activations served from the token cache
}

// Controller owns the highlight pipeline for the active file. All
// exported methods are safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	cfg   config.HighlightConfig
	log   *logging.Logger
	cache *cache.Cache

	provider backend.Backend // RPC token provider, may be nil
	grammar  backend.Backend // in-process fallback, may be nil

	source BufferSource
	sink   TokenSink

	// Active file state, guarded by mu.
	path        string
	bufID       uuid.UUID
	languageID  string
	content     string
	state       State
	lineTokens  map[int][]token.Token
	flat        []token.Token // document-addressed mirror of lineTokens
	generations map[string]uint64

	// Pending edit accumulation since the last dispatch.
	hasPending   bool
	pendingFull  bool
	pendingLines []int

	// pendingRefresh marks the confirmation pass after a cache-hit
	// activation, which runs even when the fingerprint still matches.
	pendingRefresh bool

	debounce    *debouncer
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unavailable atomic.Bool
	disposed    bool

	requests  atomic.Uint64
	applied   atomic.Uint64
	stale     atomic.Uint64
	fallbacks atomic.Uint64
	failures  atomic.Uint64
	cacheHits atomic.Uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithProvider sets the RPC token provider backend.
func WithProvider(b backend.Backend) Option {
	return func(c *Controller) { c.provider = b }
}

// WithGrammar sets the in-process grammar backend.
func WithGrammar(b backend.Backend) Option {
	return func(c *Controller) { c.grammar = b }
}

// WithCache sets the token cache. A fresh cache of the configured
// capacity is created when unset.
func WithCache(tc *cache.Cache) Option {
	return func(c *Controller) { c.cache = tc }
}

// WithLogger sets the controller's logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithSource sets the buffer source consulted on activation.
func WithSource(src BufferSource) Option {
	return func(c *Controller) { c.source = src }
}

// WithSink sets the token sink notified on apply.
func WithSink(sink TokenSink) Option {
	return func(c *Controller) { c.sink = sink }
}

// New creates a highlight controller.
func New(cfg config.HighlightConfig, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:         cfg,
		log:         logging.Discard(),
		lineTokens:  make(map[int][]token.Token),
		generations: make(map[string]uint64),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.New(cfg.CacheCapacity)
	}
	c.log = c.log.WithComponent("highlight")
	c.debounce = newDebouncer(cfg.DebounceMin(), cfg.DebounceMax(), c.flush)
	return c
}

// SetActiveFile switches the controller to a new file. A cached
// tokenization whose fingerprint matches the content is applied
// synchronously before this returns; a background refresh then
// confirms it. On a cache miss a full tokenization starts immediately,
// without debouncing.
func (c *Controller) SetActiveFile(path, content string) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}

	// Abandon anything pending or in flight for the previous file.
	c.debounce.Cancel()
	if c.path != "" {
		c.generations[c.path]++
	}

	c.path = path
	c.content = content
	c.languageID = document.DetectLanguage(path)
	c.bufID = uuid.Nil
	if c.source != nil {
		if buf, ok := c.source.ActiveBuffer(); ok && buf.Path == path {
			c.bufID = buf.ID
			if buf.LanguageID != "" {
				c.languageID = buf.LanguageID
			}
		}
	}
	c.hasPending = false
	c.pendingFull = false
	c.pendingLines = nil
	c.pendingRefresh = false
	gen := c.generations[path]

	if entry := c.cache.Get(path); entry != nil && entry.Fingerprint.Matches(content) {
		c.cacheHits.Add(1)
		c.lineTokens = lineindex.Clone(entry.Lines)
		c.flat = entry.Tokens.Tokens
		c.state = StateApplied
		sink, id, tokens := c.sink, c.bufID, entry.Tokens.Tokens
		c.log.Debug("cache hit for %s, scheduling refresh", path)

		// Background refresh to confirm the cached result.
		c.hasPending = true
		c.pendingFull = true
		c.pendingRefresh = true
		c.debounce.Call()
		c.mu.Unlock()

		if sink != nil {
			sink.UpdateBufferTokens(id, tokens)
		}
		return
	}

	// Cold start: tokenize now, with retry, skipping the debounce.
	c.lineTokens = make(map[int][]token.Token)
	c.flat = nil
	c.state = StateFetching
	c.requests.Add(1)
	c.wg.Add(1)
	go c.run(pass{
		path:       path,
		content:    content,
		languageID: c.languageID,
		generation: gen,
		full:       true,
		coldStart:  true,
	})
	c.mu.Unlock()
}

// OnContentChanged records an edit to the active file and schedules a
// debounced highlight pass. A nil affectedLines, or more affected
// lines than the incremental threshold, forces a full pass.
func (c *Controller) OnContentChanged(content string, affectedLines []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || c.path == "" {
		return
	}

	// Supersede any in-flight result; the newest edit wins.
	c.generations[c.path]++
	c.content = content

	switch {
	case c.pendingFull:
		// Already escalated, stay full.
	case len(affectedLines) == 0:
		// No line information, including an empty set: full pass.
		c.pendingFull = true
		c.pendingLines = nil
	default:
		c.pendingLines = append(c.pendingLines, affectedLines...)
		if threshold := c.cfg.IncrementalLineThreshold; threshold > 0 && len(c.pendingLines) > threshold {
			c.pendingFull = true
			c.pendingLines = nil
		}
	}
	c.hasPending = true
	c.state = StateScheduled
	c.debounce.Call()
}

// flush is the debounce callback: it snapshots the pending edit and
// dispatches one tokenization pass.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.disposed || !c.hasPending || c.path == "" {
		c.mu.Unlock()
		return
	}

	refresh := c.pendingRefresh
	c.pendingRefresh = false

	// Unchanged content needs no backend round trip; the applied
	// tokens are already correct for this fingerprint. The
	// post-activation refresh is the one pass exempt from this.
	if !refresh {
		if entry := c.cache.Get(c.path); entry != nil && entry.Fingerprint.Matches(c.content) {
			c.hasPending = false
			c.pendingFull = false
			c.pendingLines = nil
			c.lineTokens = lineindex.Clone(entry.Lines)
			c.flat = entry.Tokens.Tokens
			c.state = StateApplied
			c.mu.Unlock()
			return
		}
	}

	p := pass{
		path:       c.path,
		content:    c.content,
		languageID: c.languageID,
		generation: c.generations[c.path],
		full:       c.pendingFull,
	}
	if !p.full {
		if r, ok := lineindex.Covering(c.pendingLines); ok {
			p.lineRange = &r
		} else {
			// No usable line set; never drop the edit, recompute fully.
			p.full = true
		}
	}
	c.hasPending = false
	c.pendingFull = false
	c.pendingLines = nil
	c.state = StateFetching
	c.requests.Add(1)
	c.wg.Add(1)
	go c.run(p)
	c.mu.Unlock()
}

// pass is an immutable snapshot of one tokenization request.
type pass struct {
	path       string
	content    string
	languageID string
	generation uint64
	full       bool
	coldStart  bool
	lineRange  *lineindex.LineRange
}

// run executes one tokenization pass off the controller goroutine.
func (c *Controller) run(p pass) {
	defer c.wg.Done()

	raw, ranged, err := c.tokenize(p)
	if err != nil {
		if isCanceled(err) {
			// Cancellation comes from Dispose or a superseding edit; it
			// is expected control flow, not a backend fault.
			c.log.Debug("tokenization canceled for %s", p.path)
			return
		}
		c.failures.Add(1)
		c.log.Error("tokenization failed for %s: %v", p.path, err)
		c.mu.Lock()
		if c.state == StateFetching && c.generations[p.path] == p.generation && c.path == p.path {
			if p.coldStart {
				// No previous tokens to keep; surface the outage.
				c.unavailable.Store(true)
			}
			// Keep whatever tokens we last applied.
			c.state = StateIdle
		}
		c.mu.Unlock()
		return
	}
	if !ranged {
		// A fallback recomputed the whole document.
		p.full = true
		p.lineRange = nil
	}
	c.apply(p, raw)
}

// tokenize selects a backend for the pass and runs it, falling back to
// the other backend on failure. Token offsets in the result are
// byte-addressed; the second return reports whether the result honors
// the requested line range.
func (c *Controller) tokenize(p pass) ([]token.Token, bool, error) {
	req := backend.Request{
		Content:    p.content,
		LanguageID: p.languageID,
		Range:      p.lineRange,
	}
	order := c.backendOrder(len(p.content), p.lineRange != nil, p.languageID)
	if len(order) == 0 {
		return nil, false, backend.ErrNotStarted
	}

	var lastErr error
	for i, b := range order {
		// Range requests only go to range-capable backends; a
		// fallback that cannot honor the range recomputes everything.
		r := req
		if r.Range != nil && !b.CanTokenizeRange() {
			r.Range = nil
		}

		var (
			tokens []token.Token
			err    error
		)
		if p.coldStart {
			tokens, err = backend.TokenizeWithRetry(c.ctx, b, r)
		} else {
			tokens, err = b.Tokenize(c.ctx, r)
		}
		if err == nil {
			if i > 0 {
				c.fallbacks.Add(1)
			}
			return tokens, r.Range != nil, nil
		}
		lastErr = err
		if isCanceled(err) || c.ctx.Err() != nil {
			break
		}
		c.log.Warn("backend %s failed for %s: %v", b.Name(), p.path, err)
	}
	return nil, false, lastErr
}

// isCanceled reports whether err is a context cancellation rather than
// a backend fault.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// backendOrder returns the backends to try, preferred first. Large
// documents and incremental passes prefer the range-capable backend;
// otherwise a backend already warm for the language wins.
func (c *Controller) backendOrder(contentLen int, ranged bool, languageID string) []backend.Backend {
	primary, secondary := c.provider, c.grammar

	large := c.cfg.LargeDocumentBytes > 0 && contentLen > c.cfg.LargeDocumentBytes
	switch {
	case secondary != nil && (ranged || large) && secondary.CanTokenizeRange():
		primary, secondary = c.grammar, c.provider
	case primary == nil || !primary.Warm(languageID):
		if secondary != nil && secondary.Warm(languageID) {
			primary, secondary = c.grammar, c.provider
		}
	}

	order := make([]backend.Backend, 0, 2)
	if primary != nil {
		order = append(order, primary)
	}
	if secondary != nil {
		order = append(order, secondary)
	}
	return order
}

// apply converts a byte-addressed result to character offsets, updates
// the line index and cache, and notifies the sink. Results whose
// generation was superseded are dropped without mutating anything.
func (c *Controller) apply(p pass, raw []token.Token) {
	om := offsetmap.Build(p.content)
	mapped := om.MapTokens(raw)
	token.Classify(mapped)
	token.Sort(mapped)

	c.mu.Lock()
	if c.disposed || c.path != p.path || c.generations[p.path] != p.generation {
		c.stale.Add(1)
		c.log.Debug("dropping stale result for %s (gen %d)", p.path, p.generation)
		c.mu.Unlock()
		return
	}
	// Only a result that actually lands proves the backends recovered.
	c.unavailable.Store(false)

	if p.full || p.lineRange == nil {
		c.lineTokens = lineindex.Build(p.content, mapped)
		c.flat = mapped
	} else {
		recomputed := lineindex.BuildRange(p.content, mapped, *p.lineRange)
		lineindex.Merge(c.lineTokens, recomputed, *p.lineRange)
		start, end := charWindow(p.content, *p.lineRange)
		c.flat = mergeFlat(c.flat, mapped, start, end)
	}
	flat := c.flat
	set := token.NewSet(p.content, flat)
	c.cache.Put(p.path, set.Fingerprint, set, lineindex.Clone(c.lineTokens))
	if !c.hasPending {
		c.state = StateApplied
	}
	c.applied.Add(1)
	sink, id := c.sink, c.bufID
	c.mu.Unlock()

	if sink != nil {
		sink.UpdateBufferTokens(id, flat)
	}
}

// LineTokens returns the tokens for one line of the active file,
// clipped and rebased to that line. The slice is a copy.
func (c *Controller) LineTokens(line int) []token.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	tokens := c.lineTokens[line]
	if len(tokens) == 0 {
		return nil
	}
	out := make([]token.Token, len(tokens))
	copy(out, tokens)
	return out
}

// AllLineTokens returns a copy of the active file's line token index.
func (c *Controller) AllLineTokens() map[int][]token.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lineindex.Clone(c.lineTokens)
}

// State reports the controller's current state for the active file.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Unavailable reports whether the most recent cold start exhausted all
// backends. It resets on the next successful tokenization.
func (c *Controller) Unavailable() bool {
	return c.unavailable.Load()
}

// Stats returns a snapshot of the controller's counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Requests:  c.requests.Load(),
		Applied:   c.applied.Load(),
		Stale:     c.stale.Load(),
		Fallbacks: c.fallbacks.Load(),
		Failures:  c.failures.Load(),
		CacheHits: c.cacheHits.Load(),
	}
}

// Cache exposes the controller's token cache.
func (c *Controller) Cache() *cache.Cache {
	return c.cache
}

// Dispose cancels pending timers and in-flight requests and detaches
// the controller from the active file. The controller must not be used
// afterward.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.debounce.Cancel()
	if c.path != "" {
		c.generations[c.path]++
	}
	c.state = StateIdle
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// charWindow returns the character offsets spanned by the lines of r:
// the start of line r.Start through the end of line r.End, exclusive
// of its trailing newline.
func charWindow(content string, r lineindex.LineRange) (int, int) {
	lines := strings.Split(content, "\n")
	start := 0
	for i := 0; i < r.Start && i < len(lines); i++ {
		start += len([]rune(lines[i])) + 1
	}
	end := start
	for i := r.Start; i <= r.End && i < len(lines); i++ {
		end += len([]rune(lines[i])) + 1
	}
	if end > start {
		end-- // exclude the trailing newline
	}
	return start, end
}

// mergeFlat splices recomputed tokens into prev, dropping every
// previous token that overlaps the [start, end) window the recomputed
// tokens cover.
func mergeFlat(prev, recomputed []token.Token, start, end int) []token.Token {
	out := make([]token.Token, 0, len(prev)+len(recomputed))
	for _, t := range prev {
		if t.End <= start || t.Start >= end {
			out = append(out, t)
		}
	}
	out = append(out, recomputed...)
	token.Sort(out)
	return out
}
