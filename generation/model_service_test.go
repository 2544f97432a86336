package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/quill/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var _ Service = (*ModelService)(nil)

// recorder collects callbacks and signals the terminal one.
type recorder struct {
	mu       sync.Mutex
	chunks   []string
	complete string
	failure  string
	done     chan struct{}
	once     sync.Once
}

func newRecorder() *recorder { return &recorder{done: make(chan struct{})} }

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnChunk: func(p string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.chunks = append(r.chunks, p)
		},
		OnComplete: func(full string) {
			r.mu.Lock()
			r.complete = full
			r.mu.Unlock()
			r.once.Do(func() { close(r.done) })
		},
		OnError: func(msg string) {
			r.mu.Lock()
			r.failure = msg
			r.mu.Unlock()
			r.once.Do(func() { close(r.done) })
		},
	}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal callback")
	}
}

// MockModelImpl for scripted model behavior
type MockModelImpl struct{ mock.Mock }

func (m *MockModelImpl) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	args := m.Called(ctx, req)
	return args.Get(0).(<-chan model.Response), args.Get(1).(<-chan error)
}

func (m *MockModelImpl) Info() model.Info { return model.Info{Name: "scripted", Provider: "mock"} }

func scripted(resps []model.Response, err error) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, len(resps))
	errCh := make(chan error, 1)
	for _, r := range resps {
		respCh <- r
	}
	if err != nil {
		errCh <- err
	}
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func TestModelService_StreamsAndCompletes(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddResponse("Once upon a time", " there was a fox")
	svc := NewModelService(m)

	rec := newRecorder()
	h, err := svc.ContinueWriting("Once upon a time", rec.callbacks())
	require.NoError(t, err)
	require.NotNil(t, h)
	rec.wait(t)

	assert.Equal(t, " there was a fox", rec.complete)
	assert.Equal(t, rec.complete, strings.Join(rec.chunks, ""))
	assert.Empty(t, rec.failure)

	h.Cancel() // idempotent after completion
	h.Cancel()
}

func TestModelService_PassesInstruction(t *testing.T) {
	mm := &MockModelImpl{}
	respCh, errCh := scripted([]model.Response{{Text: "abc", FinishReason: "stop"}}, nil)
	mm.On("Generate", mock.Anything, model.Request{
		Instructions: "Continue 4 words",
		Prompt:       "Once upon a time",
		Stream:       true,
	}).Return(respCh, errCh).Once()

	svc := NewModelService(mm, func(o *ModelServiceOptions) {
		o.Instruction = NewInstructionFromText("Continue {{.Words}} words")
	})
	rec := newRecorder()
	_, err := svc.ContinueWriting("Once upon a time", rec.callbacks())
	require.NoError(t, err)
	rec.wait(t)

	assert.Equal(t, "abc", rec.complete)
	mm.AssertExpectations(t)
}

func TestModelService_FinalFallsBackToAccumulated(t *testing.T) {
	mm := &MockModelImpl{}
	respCh, errCh := scripted([]model.Response{
		{Partial: true, Text: "a"},
		{Partial: true, Text: "b"},
	}, nil)
	mm.On("Generate", mock.Anything, mock.Anything).Return(respCh, errCh)

	rec := newRecorder()
	_, err := NewModelService(mm).ContinueWriting("x", rec.callbacks())
	require.NoError(t, err)
	rec.wait(t)

	assert.Equal(t, []string{"a", "b"}, rec.chunks)
	assert.Equal(t, "ab", rec.complete)
}

func TestModelService_Failures(t *testing.T) {
	tests := []struct {
		name  string
		resps []model.Response
		err   error
		want  string
	}{
		{name: "transport", err: &model.ProviderError{Provider: "openai", Err: errors.New("connection reset")}, want: "generation failed: openai api error: connection reset"},
		{name: "rejected", err: &model.ProviderError{Provider: "openai", StatusCode: 401, Err: errors.New("bad key")}, want: "generation rejected: openai api error (status 401): bad key"},
		{name: "empty result", resps: []model.Response{{Text: "", FinishReason: "stop"}}, want: "generation returned no text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mm := &MockModelImpl{}
			respCh, errCh := scripted(tt.resps, tt.err)
			mm.On("Generate", mock.Anything, mock.Anything).Return(respCh, errCh)

			rec := newRecorder()
			_, err := NewModelService(mm).ContinueWriting("x", rec.callbacks())
			require.NoError(t, err)
			rec.wait(t)

			assert.Equal(t, tt.want, rec.failure)
			assert.Empty(t, rec.complete)
		})
	}
}

func TestModelService_CancelIsSilent(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddResponse("x", "one two three four five six")
	m.Delay = 20 * time.Millisecond

	var mu sync.Mutex
	var calls []string
	cb := Callbacks{
		OnChunk:    func(p string) { mu.Lock(); calls = append(calls, "chunk"); mu.Unlock() },
		OnComplete: func(string) { mu.Lock(); calls = append(calls, "complete"); mu.Unlock() },
		OnError:    func(string) { mu.Lock(); calls = append(calls, "error"); mu.Unlock() },
	}

	h, err := NewModelService(m).ContinueWriting("x", cb)
	require.NoError(t, err)
	h.Cancel()

	mu.Lock()
	before := len(calls)
	mu.Unlock()

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, calls, before)
	assert.NotContains(t, calls, "complete")
	assert.NotContains(t, calls, "error")
}

func TestModelService_StartErrors(t *testing.T) {
	svc := NewModelService(model.NewMockModel("mock"))
	_, err := svc.ContinueWriting("   ", Callbacks{})
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, FailureInternal, f.Kind)

	svc = NewModelService(model.NewMockModel("mock"), func(o *ModelServiceOptions) {
		o.Instruction = NewInstructionFromText("{{.Broken")
	})
	_, err = svc.ContinueWriting("text", Callbacks{})
	require.ErrorAs(t, err, &f)
}

type panicModel struct{}

func (panicModel) Generate(context.Context, model.Request) (<-chan model.Response, <-chan error) {
	panic("provider bug")
}

func (panicModel) Info() model.Info { return model.Info{Name: "panic"} }

func TestModelService_PanicBecomesFailure(t *testing.T) {
	rec := newRecorder()
	_, err := NewModelService(panicModel{}).ContinueWriting("x", rec.callbacks())
	require.NoError(t, err)
	rec.wait(t)

	assert.Contains(t, rec.failure, "generation failed unexpectedly")
	assert.Contains(t, rec.failure, "provider bug")
}
