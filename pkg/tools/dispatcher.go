package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceloop/pkg/metrics"
)

// DefaultHandlerTimeout bounds a single tool call.
const DefaultHandlerTimeout = 30 * time.Second

// ErrToolNotFound is returned by Dispatch for an unregistered tool name.
var ErrToolNotFound = errors.New("tool not found")

// Call is one tool invocation requested by the model.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// ResultSink receives the JSON result of a call.
type ResultSink interface {
	SubmitToolResult(callID, output string) error
}

// Result is the JSON envelope sent back to the model.
type Result struct {
	Status  string `json:"status"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResult encodes {"status":"success","content":...}.
func SuccessResult(content string) string {
	return encodeResult(Result{Status: "success", Content: content})
}

// ErrorResult encodes {"status":"error","message":...}.
func ErrorResult(message string) string {
	return encodeResult(Result{Status: "error", Message: message})
}

func encodeResult(r Result) string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"status":"error","message":"result encoding failed"}`
	}
	return string(b)
}

// Dispatcher runs tool handlers off the caller's goroutine. Every
// dispatched call produces exactly one result on its sink.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	sem      chan struct{}
	logger   *slog.Logger
	metrics  *metrics.Metrics

	wg sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHandlerTimeout sets the per-call deadline.
func WithHandlerTimeout(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) { x.timeout = d }
}

// WithMaxConcurrent bounds how many handlers run at once. Zero means unbounded.
func WithMaxConcurrent(n int) DispatcherOption {
	return func(x *Dispatcher) {
		if n > 0 {
			x.sem = make(chan struct{}, n)
		} else {
			x.sem = nil
		}
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(x *Dispatcher) { x.logger = l }
}

// WithDispatcherMetrics records call outcomes.
func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(x *Dispatcher) { x.metrics = m }
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		timeout:  DefaultHandlerTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("component", "tools.dispatcher")
	return d
}

// Definitions returns the definitions of all registered tools.
func (d *Dispatcher) Definitions() []Definition {
	return d.registry.Definitions()
}

// Dispatch starts call in its own goroutine. An unknown tool is answered
// synchronously with an error result and ErrToolNotFound is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call, sink ResultSink) error {
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		d.logger.Warn("tool not implemented", "tool", call.Name, "call_id", call.ID)
		d.submit(sink, call, ErrorResult("tool not implemented: "+call.Name))
		d.metrics.RecordToolCall(call.Name, "error", 0)
		return fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}

	d.wg.Add(1)
	go d.run(ctx, tool, call, sink)
	return nil
}

// Wait blocks until every dispatched call has submitted its result.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, tool Tool, call Call, sink ResultSink) {
	defer d.wg.Done()

	if d.sem != nil {
		select {
		case d.sem <- struct{}{}:
			defer func() { <-d.sem }()
		case <-ctx.Done():
			d.submit(sink, call, ErrorResult("tool call cancelled: "+ctx.Err().Error()))
			d.metrics.RecordToolCall(call.Name, "error", 0)
			return
		}
	}

	start := time.Now()
	content, err := d.invoke(ctx, tool, call)
	elapsed := time.Since(start)

	var output, status string
	if err != nil {
		d.logger.Warn("tool failed", "tool", call.Name, "call_id", call.ID, "error", err, "duration", elapsed)
		output, status = ErrorResult(err.Error()), "error"
	} else {
		d.logger.Info("tool succeeded", "tool", call.Name, "call_id", call.ID, "duration", elapsed)
		output, status = SuccessResult(content), "success"
	}

	d.metrics.RecordToolCall(call.Name, status, elapsed.Seconds())
	d.submit(sink, call, output)
}

// invoke runs the handler with a deadline and turns a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, tool Tool, call Call) (content string, err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	return tool.Handler(ctx, args)
}

func (d *Dispatcher) submit(sink ResultSink, call Call, output string) {
	if err := sink.SubmitToolResult(call.ID, output); err != nil {
		d.logger.Warn("submit tool result failed", "tool", call.Name, "call_id", call.ID, "error", err)
	}
}
