package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/quill"
	"github.com/hupe1980/quill/config"
	"github.com/hupe1980/quill/core"
	"github.com/hupe1980/quill/document"
	"github.com/hupe1980/quill/internal/util"
	"github.com/hupe1980/quill/logging"
	"github.com/hupe1980/quill/model"
	"github.com/hupe1980/quill/model/anthropic"
	"github.com/hupe1980/quill/model/openai"
	"github.com/hupe1980/quill/notify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App wires a file-backed document to the workflow for one interactive run.
type App struct {
	cfg      *config.Config
	logger   *logging.QuillLogger
	doc      *document.File
	quill    *quill.Quill
	registry *prometheus.Registry
	async    *notify.Async
	history  *notify.History
	out      *syncWriter
}

// NewApp builds the model, document, notifiers and workflow from cfg.
func NewApp(cfg *config.Config, path string, out io.Writer) (*App, error) {
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}

	m, err := buildModel(cfg)
	if err != nil {
		return nil, err
	}

	doc, err := document.OpenFile(path, func(o *document.FileOptions) {
		o.Logger = logger.WithComponent("document")
	})
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	history := notify.NewHistory(50)
	async := notify.NewAsync(notify.Multi{
		notify.LogNotifier{Logger: logger.WithComponent("notify")},
		notify.NewMetricsNotifier(registry),
		history,
	}, 64, func(o *notify.AsyncOptions) {
		o.Logger = logger.WithComponent("notify")
	})

	q := quill.New(func(o *quill.Options) {
		o.Model = m
		o.Instruction = cfg.Provider.Instruction
		o.Stream = cfg.Provider.Stream
		o.Document = doc
		o.Notifier = async
		o.RegeneratePartial = cfg.Workflow.RegeneratePartial
		o.EventBufferSize = cfg.Workflow.EventBufferSize
		o.Logger = logger
	})

	return &App{
		cfg:      cfg,
		logger:   logger,
		doc:      doc,
		quill:    q,
		registry: registry,
		async:    async,
		history:  history,
		out:      &syncWriter{w: out},
	}, nil
}

func buildModel(cfg *config.Config) (model.Model, error) {
	p := cfg.Provider
	switch p.Name {
	case config.ProviderMock:
		name := p.Model
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if p.Model != "" {
				o.Model = p.Model
			}
			o.Temperature = p.Temperature
			o.MaxCompletionTokens = p.MaxTokens
			o.BaseURL = p.BaseURL
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if p.Model != "" {
				o.Model = anthropicsdk.Model(p.Model)
			}
			o.Temperature = p.Temperature
			o.MaxTokens = p.MaxTokens
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", p.Name)
	}
}

// Run drives the workflow from line-based commands read from in until the
// input ends, a quit command is read or ctx is done.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	loopErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		loopErr <- a.quill.Run(ctx)
	}()

	if a.cfg.Metrics.Address != "" {
		srv := a.metricsServer()
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Metrics server failed", "address", srv.Addr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if a.cfg.Document.Watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := a.doc.Watch(ctx, func(text string) {
				// Ignored while a suggestion is open.
				if _, err := a.quill.SetContent(ctx, text); err != nil && ctx.Err() == nil {
					a.logger.Warn("Failed to reload document", "error", err)
				}
			})
			if err != nil {
				a.logger.Warn("Document watcher stopped", "error", err)
			}
		}()
	}

	if _, err := a.quill.Refresh(ctx); err != nil {
		cancel()
		wg.Wait()
		a.async.Close()
		return fmt.Errorf("load document: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.render()
	}()

	a.printf("%s (%d words)\n", a.doc.Path(), util.WordCount(a.doc.Content()))

	err := a.readCommands(ctx, in)

	cancel()
	wg.Wait()
	a.async.Close()

	if err != nil {
		return err
	}
	return <-loopErr
}

func (a *App) readCommands(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}
		if line == "" {
			continue
		}

		cmd, err := parseCommand(line)
		if err != nil {
			a.printf("%v\n", err)
			continue
		}

		switch cmd.Action {
		case actionQuit:
			return nil
		case actionHelp:
			a.printf("%s", helpText())
		case actionShow:
			a.printf("%s\n", a.quill.Snapshot().Preview())
		case actionLog:
			for _, n := range a.history.Recent(10) {
				a.printf("%s %-20s %s %s\n", n.Timestamp.Format(time.TimeOnly), n.Outcome, n.SessionID, n.Message)
			}
		case actionWait:
			if _, err := a.quill.Await(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		case actionEvent:
			res, err := a.quill.Send(ctx, core.NewEvent(cmd.Event))
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if !res.Transitioned {
				a.printf("%s not possible now (%s)\n", cmd.Event, res.Reason)
			}
		}
	}
}

// render prints streamed text and state changes until the workflow stops.
func (a *App) render() {
	snaps, unsubscribe := a.quill.Subscribe()
	defer unsubscribe()

	var (
		last  core.State
		shown string
	)
	for s := range snaps {
		if s.State == core.StateGenerating {
			if last != core.StateGenerating {
				a.printf("\n... %s", util.Tail(60, s.BaseContent))
				shown = ""
			}
			delta, restart := streamDelta(shown, s.SuggestedContent)
			if restart {
				a.printf("\n... %s", util.Tail(60, s.BaseContent))
			}
			a.printf("%s", delta)
			shown = s.SuggestedContent
			last = s.State
			continue
		}
		if s.State == last {
			continue
		}

		switch s.State {
		case core.StateReviewingSuggestion:
			kind := "complete"
			if s.IsPartialSuggestion {
				kind = "partial"
			}
			if last == core.StateGenerating {
				delta, restart := streamDelta(shown, s.SuggestedContent)
				if restart {
					a.printf("\n--- final text ---\n")
				}
				a.printf("%s", delta)
			} else {
				a.printf("\n%s", s.SuggestedContent)
			}
			shown = ""
			a.printf("\n--- %s suggestion, %d words ---\n", kind, util.WordCount(s.SuggestedContent))
		case core.StateError:
			a.printf("\n!!! %s\n", s.Error)
		case core.StateIdle:
			a.printf("%d words\n", util.WordCount(s.Content))
		}
		a.printf("%s\n", hint(s.State))
		last = s.State
	}
}

// streamDelta returns what to print to go from the shown text to current.
// When current does not extend shown, all of current must be printed again.
func streamDelta(shown, current string) (string, bool) {
	if strings.HasPrefix(current, shown) {
		return current[len(shown):], false
	}
	return current, true
}

func (a *App) metricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (a *App) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

// syncWriter serializes writes from the renderer and the command loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
