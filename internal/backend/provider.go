package backend

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/dshills/glint/internal/logging"
	"github.com/dshills/glint/internal/token"
)

// tokenizeMethod is the RPC method implemented by token providers.
const tokenizeMethod = "textDocument/tokenize"

// wireToken is the provider's wire representation of a token.
// Offsets are byte offsets into the request content.
type wireToken struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Type  string `json:"type"`
}

// tokenizeParams is the request payload for tokenizeMethod.
type tokenizeParams struct {
	Content    string `json:"content"`
	LanguageID string `json:"languageId"`
}

// Provider is the external RPC tokenizer backend. It spawns a token
// provider subprocess and speaks Content-Length framed JSON-RPC over
// its stdio, the same base protocol language servers use.
//
// The provider always tokenizes whole documents; it cannot scope a
// call to a line range.
type Provider struct {
	mu        sync.Mutex
	command   string
	args      []string
	cmd       *exec.Cmd
	transport *transport
	log       *logging.Logger
	started   bool
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets the logger.
func WithProviderLogger(log *logging.Logger) ProviderOption {
	return func(p *Provider) {
		p.log = log
	}
}

// NewProvider creates a provider that will run the given command.
func NewProvider(command string, args []string, opts ...ProviderOption) *Provider {
	p := &Provider{
		command: command,
		args:    args,
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the provider subprocess and begins reading responses.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	cmd := exec.Command(p.command, p.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start token provider %q: %w", p.command, err)
	}

	p.cmd = cmd
	p.transport = newTransport(stdout, stdin, multiCloser{stdin, stdout})
	p.transport.start(ctx)
	p.started = true

	p.log.Info("token provider started: %s (pid %d)", p.command, cmd.Process.Pid)

	// Reap the process when it exits so it never zombies.
	go func() {
		err := cmd.Wait()
		if err != nil && !p.transport.isClosed() {
			p.log.Warn("token provider exited: %v", err)
		}
	}()

	return nil
}

// Stop terminates the subprocess and closes the transport.
func (p *Provider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}
	p.started = false

	err := p.transport.close()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return err
}

// Name identifies the backend.
func (p *Provider) Name() string {
	return "provider"
}

// CanTokenizeRange reports false: the provider protocol is
// whole-document only.
func (p *Provider) CanTokenizeRange() bool {
	return false
}

// Warm reports whether the subprocess is running. The provider does
// not distinguish languages; a running process answers any of them.
func (p *Provider) Warm(languageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.transport.isClosed()
}

// Tokenize requests tokens for the full document content. An empty or
// unsupported language yields no tokens and no error.
func (p *Provider) Tokenize(ctx context.Context, req Request) ([]token.Token, error) {
	if req.LanguageID == "" {
		return nil, nil
	}

	p.mu.Lock()
	t := p.transport
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil, ErrNotStarted
	}

	var wire []wireToken
	params := tokenizeParams{Content: req.Content, LanguageID: req.LanguageID}
	if err := t.call(ctx, tokenizeMethod, params, &wire); err != nil {
		return nil, err
	}

	tokens := make([]token.Token, 0, len(wire))
	for _, w := range wire {
		tokens = append(tokens, token.Token{Start: w.Start, End: w.End, Type: w.Type})
	}
	if !token.IsSorted(tokens) {
		token.Sort(tokens)
	}
	return tokens, nil
}

// multiCloser closes several closers, returning the first error.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
