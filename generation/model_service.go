package generation

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hupe1980/quill/logging"
	"github.com/hupe1980/quill/model"
)

// ModelServiceOptions configures a ModelService.
type ModelServiceOptions struct {
	// Instruction is resolved against the prompt and sent as system instructions.
	Instruction Instruction
	// Stream requests incremental fragments from the model. Defaults to true.
	Stream bool
	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// ModelService is a Service that continues text through a model.Model.
type ModelService struct {
	model  model.Model
	opts   ModelServiceOptions
	logger logging.Logger
}

// NewModelService creates a ModelService over m.
func NewModelService(m model.Model, optFns ...func(o *ModelServiceOptions)) *ModelService {
	opts := ModelServiceOptions{
		Instruction: NewInstructionFromText(DefaultInstruction),
		Stream:      true,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &ModelService{model: m, opts: opts, logger: opts.Logger}
}

// modelHandle cancels the request context. The stopped flag is checked
// before every callback so that a cancelled request goes quiet even while the
// model is still draining its channels.
type modelHandle struct {
	stopped atomic.Bool
	cancel  context.CancelFunc
}

func (h *modelHandle) Cancel() {
	h.stopped.Store(true)
	h.cancel()
}

// ContinueWriting implements Service.
func (s *ModelService) ContinueWriting(prompt string, cb Callbacks) (Handle, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &Failure{Kind: FailureInternal, Err: model.ErrEmptyPrompt}
	}
	instructions, err := s.opts.Instruction.Resolve(prompt)
	if err != nil {
		return nil, &Failure{Kind: FailureInternal, Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &modelHandle{cancel: cancel}
	req := model.Request{Instructions: instructions, Prompt: prompt, Stream: s.opts.Stream}

	go s.run(ctx, h, req, cb)

	return h, nil
}

func (s *ModelService) run(ctx context.Context, h *modelHandle, req model.Request, cb Callbacks) {
	defer h.cancel()

	info := s.model.Info()
	start := time.Now()

	var (
		acc      strings.Builder
		chunks   int
		final    *model.Response
		genErr   error
		finished bool
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				genErr = &Failure{Kind: FailureInternal, Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		respCh, errCh := s.model.Generate(ctx, req)
		for respCh != nil || errCh != nil {
			select {
			case r, ok := <-respCh:
				if !ok {
					respCh = nil
					continue
				}
				if !r.Partial {
					resp := r
					final = &resp
					continue
				}
				if r.Text == "" || h.stopped.Load() {
					continue
				}
				acc.WriteString(r.Text)
				chunks++
				cb.OnChunk(r.Text)
			case e, ok := <-errCh:
				if !ok {
					errCh = nil
					continue
				}
				if e != nil && genErr == nil {
					genErr = e
				}
			}
		}
		finished = true
	}()

	if h.stopped.Load() || (genErr != nil && IsCancellation(genErr)) {
		s.logger.Debug("Generation cancelled", "model", info.Name, "chunk_count", chunks, "duration", time.Since(start))
		return
	}

	if genErr == nil && finished {
		full := acc.String()
		if final != nil && final.Text != "" {
			full = final.Text
		}
		if full == "" {
			genErr = ErrEmptyResult
		} else {
			s.logCall(info, chunks, final, start, nil)
			cb.OnComplete(full)
			return
		}
	}

	failure := Classify(genErr)
	s.logCall(info, chunks, final, start, failure)
	cb.OnError(failure.Error())
}

func (s *ModelService) logCall(info model.Info, chunks int, final *model.Response, start time.Time, err error) {
	tokens := 0
	if final != nil && final.Usage != nil {
		tokens = final.Usage.TotalTokens
	}
	if ql, ok := s.logger.(*logging.QuillLogger); ok {
		ql.LogGeneration(info.Name, chunks, tokens, time.Since(start), err)
		return
	}
	if err != nil {
		s.logger.Error("Generation failed", "model", info.Name, "provider", info.Provider, "chunk_count", chunks, "error", err)
		return
	}
	s.logger.Info("Generation completed", "model", info.Name, "provider", info.Provider, "chunk_count", chunks, "token_count", tokens)
}
