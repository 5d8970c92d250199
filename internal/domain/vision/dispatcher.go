package vision

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/camvision/internal/infra/llm"
)

const (
	// NoContentReply replaces empty replies.
	NoContentReply = "(no content)"

	previewLimit = 200
)

// DispatchRequest is one outbound vision question.
type DispatchRequest struct {
	SessionID string // empty for one-shot asks
	Question  string
	Images    []EncodedImage
	Provider  string // router key; empty selects the default provider
	Stream    bool   // always false: replies are read as one body
}

// DispatchStatus is the outcome recorded for a dispatch.
type DispatchStatus string

const (
	DispatchOK    DispatchStatus = "ok"
	DispatchError DispatchStatus = "error"
)

// DispatchRecord describes one completed dispatch.
type DispatchRecord struct {
	ID        string
	SessionID string
	Provider  string
	Model     string
	Frames    int
	Status    DispatchStatus
	Reply     string
	Error     string
	Latency   time.Duration
	CreatedAt time.Time
}

// Recorder persists dispatch records. history.Service satisfies it.
type Recorder interface {
	RecordDispatch(ctx context.Context, rec DispatchRecord) error
}

// ProviderRouter resolves a provider by name. *llm.Router satisfies it.
type ProviderRouter interface {
	Route(name string) (llm.LLMProvider, error)
}

// Dispatcher sends batches to the vision endpoint and tracks how many
// requests are outstanding.
type Dispatcher struct {
	router    ProviderRouter
	transport llm.Transport
	recorder  Recorder
	timeout   time.Duration
	logger    *zap.Logger

	inFlight atomic.Int64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRecorder records every completed dispatch.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithRequestTimeout overrides llm.DefaultRequestTimeout.
func WithRequestTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithDispatchLogger sets the logger.
func WithDispatchLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(router ProviderRouter, transport llm.Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		router:    router,
		transport: transport,
		timeout:   llm.DefaultRequestTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InFlight returns the number of outstanding async dispatches.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// DispatchAsync sends req on its own goroutine and invokes exactly one of
// onSuccess/onError. The in-flight counter is incremented before this call
// returns and decremented after the callback has run.
func (d *Dispatcher) DispatchAsync(ctx context.Context, req DispatchRequest, onSuccess func(string), onError func(error)) {
	d.inFlight.Add(1)
	go func() {
		defer d.inFlight.Add(-1)

		reply, err := d.Dispatch(ctx, req)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onSuccess != nil {
			onSuccess(reply)
		}
	}()
}

// Dispatch sends req and blocks for the reply.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	start := time.Now()
	provider, err := d.router.Route(req.Provider)
	if err != nil {
		return "", err
	}

	reply, err := d.send(ctx, provider, req)
	d.record(ctx, provider, req, reply, err, start)
	return reply, err
}

func (d *Dispatcher) send(ctx context.Context, provider llm.LLMProvider, req DispatchRequest) (string, error) {
	images := make([]string, len(req.Images))
	for i, img := range req.Images {
		images[i] = string(img)
	}

	httpReq, err := provider.BuildRequest(llm.Query{Question: req.Question, Images: images})
	if err != nil {
		return "", err
	}

	info := provider.ModelInfo()
	d.logger.Debug("vision dispatch",
		zap.String("provider", info.Provider),
		zap.String("model", info.ID),
		zap.Int("frames", len(images)),
		zap.Float64("payload_kb", float64(len(httpReq.Body))/1024),
	)

	resp, err := d.transport.Do(ctx, httpReq, d.timeout)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &llm.NetworkError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       provider.DescribeFailure(resp.StatusCode, string(resp.Body)),
		}
	}

	d.logger.Debug("vision response", zap.String("preview", preview(string(resp.Body))))
	if strings.TrimSpace(string(resp.Body)) == "" {
		return NoContentReply, nil
	}

	reply, err := provider.ParseResponse(resp.Body)
	if err != nil {
		return "", err
	}
	if reply == "" {
		return NoContentReply, nil
	}
	return reply, nil
}

func (d *Dispatcher) record(ctx context.Context, provider llm.LLMProvider, req DispatchRequest, reply string, err error, start time.Time) {
	if d.recorder == nil {
		return
	}
	info := provider.ModelInfo()
	rec := DispatchRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: req.SessionID,
		Provider:  info.Provider,
		Model:     info.ID,
		Frames:    len(req.Images),
		Status:    DispatchOK,
		Reply:     reply,
		Latency:   time.Since(start),
		CreatedAt: start.UTC(),
	}
	if err != nil {
		rec.Status = DispatchError
		rec.Error = err.Error()
	}
	if recErr := d.recorder.RecordDispatch(context.WithoutCancel(ctx), rec); recErr != nil {
		d.logger.Warn("record dispatch failed", zap.Error(recErr))
	}
}

func preview(s string) string {
	if len(s) > previewLimit {
		return s[:previewLimit] + "..."
	}
	return s
}

// IsRequestError reports whether err came from the remote call (network,
// HTTP status or reply parsing) rather than from local preconditions.
func IsRequestError(err error) bool {
	var nerr *llm.NetworkError
	var perr *llm.ParseError
	return errors.As(err, &nerr) || errors.As(err, &perr)
}
