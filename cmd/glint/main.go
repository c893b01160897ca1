// Package main is the entry point for the glint highlighter.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dshills/glint/internal/backend"
	"github.com/dshills/glint/internal/config"
	"github.com/dshills/glint/internal/document"
	"github.com/dshills/glint/internal/highlight"
	"github.com/dshills/glint/internal/logging"
	"github.com/dshills/glint/internal/theme"
	"github.com/dshills/glint/internal/token"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	configPath string
	language   string
	themeName  string
	logLevel   string
	showStats  bool
	files      []string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.themeName != "" {
		cfg.Theme.Name = opts.themeName
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.Log.Level)
	log := logging.New(logCfg)

	th, err := theme.Load(cfg.Theme.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grammar := backend.NewGrammar()
	ctrlOpts := []highlight.Option{
		highlight.WithGrammar(grammar),
		highlight.WithLogger(log),
	}

	var provider *backend.Provider
	if cfg.Provider.Command != "" {
		provider = backend.NewProvider(cfg.Provider.Command, cfg.Provider.Args,
			backend.WithProviderLogger(log))
		if err := provider.Start(ctx); err != nil {
			log.Warn("token provider failed to start, using grammar backend: %v", err)
			provider = nil
		} else {
			defer provider.Stop()
			ctrlOpts = append(ctrlOpts, highlight.WithProvider(provider))
		}
	}

	store := document.NewStore()
	ctrlOpts = append(ctrlOpts, highlight.WithSource(store), highlight.WithSink(store))

	ctrl := highlight.New(cfg.Highlight, ctrlOpts...)
	defer ctrl.Dispose()

	for _, path := range opts.files {
		if err := highlightFile(ctx, ctrl, store, th, path, opts.language); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			return 1
		}
	}

	if opts.showStats {
		printStats(ctrl)
	}
	return 0
}

// highlightFile runs one file through the pipeline and writes the
// styled result to stdout.
func highlightFile(ctx context.Context, ctrl *highlight.Controller, store *document.Store, th *theme.Theme, path, language string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	content := string(data)

	if _, err := store.Open(path, language, content); err != nil {
		return err
	}
	if _, err := store.SetActive(path); err != nil {
		return err
	}
	ctrl.SetActiveFile(path, content)

	if err := waitApplied(ctx, ctrl); err != nil {
		return err
	}
	if ctrl.Unavailable() {
		return fmt.Errorf("no highlight backend available")
	}

	for lineNum, line := range strings.Split(content, "\n") {
		fmt.Println(renderLine(line, ctrl.LineTokens(lineNum), th))
	}
	return store.Close(path)
}

// waitApplied blocks until the controller settles for the active file.
func waitApplied(ctx context.Context, ctrl *highlight.Controller) error {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == highlight.StateApplied || ctrl.Unavailable() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return fmt.Errorf("timed out waiting for highlight result")
}

// renderLine styles one line using its line-local tokens. Gaps between
// tokens render unstyled.
func renderLine(line string, tokens []token.Token, th *theme.Theme) string {
	runes := []rune(line)
	var b strings.Builder
	pos := 0
	for _, t := range tokens {
		if t.Start > len(runes) {
			break
		}
		if t.Start > pos {
			b.WriteString(string(runes[pos:t.Start]))
		}
		end := t.End
		if end > len(runes) {
			end = len(runes)
		}
		style := th.StyleForScope(t.Type)
		b.WriteString(style.Lipgloss().Render(string(runes[t.Start:end])))
		pos = end
	}
	if pos < len(runes) {
		b.WriteString(string(runes[pos:]))
	}
	return b.String()
}

func printStats(ctrl *highlight.Controller) {
	stats := ctrl.Stats()
	hits, misses, evictions := ctrl.Cache().Stats()
	fmt.Fprintf(os.Stderr, "requests: %d  applied: %d  stale: %d  fallbacks: %d\n",
		stats.Requests, stats.Applied, stats.Stale, stats.Fallbacks)
	fmt.Fprintf(os.Stderr, "cache: %d hits, %d misses, %d evictions\n", hits, misses, evictions)
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.language, "lang", "", "Language ID (default: detect from extension)")
	flag.StringVar(&opts.themeName, "theme", "", "Theme name (built-in or chroma style)")
	flag.StringVar(&opts.themeName, "t", "", "Theme name (shorthand)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.showStats, "stats", false, "Print pipeline statistics to stderr")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Glint - syntax highlighting pipeline\n\n")
		fmt.Fprintf(os.Stderr, "Usage: glint [options] <files...>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  glint main.go               Highlight a file\n")
		fmt.Fprintf(os.Stderr, "  glint -t monokai main.go    Highlight with a chroma theme\n")
		fmt.Fprintf(os.Stderr, "  glint -lang go snippet.txt  Force the language\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("Glint %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	opts.files = flag.Args()
	if len(opts.files) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	return opts
}
