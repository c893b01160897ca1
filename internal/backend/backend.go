// Package backend provides a uniform interface over the two tokenizer
// strategies: an external RPC token provider and a grammar-based
// tokenizer. The controller selects between them and falls back from
// one to the other on failure.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dshills/glint/internal/lineindex"
	"github.com/dshills/glint/internal/token"
)

// Standard errors returned by backends.
var (
	// ErrNotStarted indicates the backend has not been started.
	ErrNotStarted = errors.New("backend not started")

	// ErrShutdown indicates the backend has been shut down.
	ErrShutdown = errors.New("backend shut down")

	// ErrInvalidResponse indicates a malformed response from the
	// token provider.
	ErrInvalidResponse = errors.New("invalid response from token provider")
)

// Request describes one tokenization call.
type Request struct {
	// Content is the full document content.
	Content string

	// LanguageID identifies the language, e.g. "go" or "typescript".
	// An empty or unsupported language yields no tokens, not an error.
	LanguageID string

	// Range, when non-nil, restricts tokenization to a bounded line
	// range. Only honored by backends that report CanTokenizeRange.
	Range *lineindex.LineRange
}

// Backend is a tokenizer strategy. Tokenize returns byte-addressed
// tokens sorted by start offset.
type Backend interface {
	// Name identifies the backend in logs and stats.
	Name() string

	// Tokenize computes tokens for the request. Implementations honor
	// context cancellation; a canceled call returns ctx.Err().
	Tokenize(ctx context.Context, req Request) ([]token.Token, error)

	// CanTokenizeRange reports whether the backend can tokenize a
	// bounded line range instead of the whole document.
	CanTokenizeRange() bool

	// Warm reports whether the backend is already prepared for the
	// language and can answer without setup cost.
	Warm(languageID string) bool
}

// Retry policy for the synchronous cold-start acquisition: transient
// transport failures are retried with exponential backoff, everything
// else surfaces immediately.
const (
	retryMaxAttempts     = 5
	retryInitialInterval = 40 * time.Millisecond
)

// TokenizeWithRetry calls b.Tokenize, retrying transport errors up to
// five times with backoff doubling from 40 ms. Cancellation is never
// retried; it is reported as ctx.Err, not as a backend fault.
func TokenizeWithRetry(ctx context.Context, b Backend, req Request) ([]token.Token, error) {
	operation := func() ([]token.Token, error) {
		tokens, err := b.Tokenize(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return tokens, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = retryInitialInterval
	expo.Multiplier = 2
	expo.RandomizationFactor = 0

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(retryMaxAttempts))
}
