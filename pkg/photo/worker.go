package photo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/frame-pipeline/pkg/types"
)

// Result is delivered once per submitted job
type Result struct {
	ID       string
	Data     []byte
	Err      error
	Duration time.Duration
}

// WorkerConfig configures the capture worker
type WorkerConfig struct {
	// QueueSize bounds pending captures; a full queue rejects with ErrBusy
	QueueSize int
	Logger    *slog.Logger
}

type job struct {
	id    string
	frame *types.Frame
	req   Request
	done  func(Result)
}

// Worker runs finishing jobs one at a time on a single goroutine, off the
// caller's thread. Every submitted frame is released exactly once.
type Worker struct {
	finisher *Finisher
	logger   *slog.Logger
	jobs     chan job

	mu      sync.Mutex // guards started, stopped and sends on jobs
	started bool
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a capture worker around finisher
func NewWorker(finisher *Finisher, config WorkerConfig) *Worker {
	if config.QueueSize <= 0 {
		config.QueueSize = 4
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Worker{
		finisher: finisher,
		logger:   config.Logger,
		jobs:     make(chan job, config.QueueSize),
	}
}

// Start launches the worker goroutine. It returns immediately.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("photo: worker already started")
	}
	if w.stopped {
		return ErrStopped
	}
	w.started = true

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop ends the worker after the job in progress. Queued jobs fail with
// ErrStopped. Idempotent.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.stopped = true
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	return nil
}

// Submit queues frame for finishing and returns the job ID. done is called
// from the worker goroutine. On error the frame has already been released
// and done is not called.
func (w *Worker) Submit(frame *types.Frame, req Request, done func(Result)) (string, error) {
	j := job{id: uuid.NewString(), frame: frame, req: req, done: done}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || !w.started {
		frame.Done()
		return "", ErrStopped
	}

	select {
	case w.jobs <- j:
		return j.id, nil
	default:
		frame.Done()
		w.logger.Warn("photo: capture rejected, queue full", "job", j.id, "queued", len(w.jobs))
		return "", ErrBusy
	}
}

// Capture is Submit followed by waiting for the result
func (w *Worker) Capture(ctx context.Context, frame *types.Frame, req Request) ([]byte, error) {
	ch := make(chan Result, 1)
	if _, err := w.Submit(frame, req, func(r Result) { ch <- r }); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.Data, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	defer w.drain()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-w.jobs:
			w.run(j)
		}
	}
}

// drain refuses further submissions and fails everything still queued
func (w *Worker) drain() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	for {
		select {
		case j := <-w.jobs:
			j.frame.Done()
			w.deliver(j, Result{ID: j.id, Err: ErrStopped})
		default:
			return
		}
	}
}

func (w *Worker) run(j job) {
	start := time.Now()

	data, err := w.finish(j)
	// the encoded output never aliases the frame, so it can go back before delivery
	j.frame.Done()

	r := Result{ID: j.id, Data: data, Err: err, Duration: time.Since(start)}
	if err != nil {
		w.logger.Warn("photo: capture failed", "job", j.id, "err", err)
	} else {
		w.logger.Debug("photo: capture finished", "job", j.id, "bytes", len(data), "duration", r.Duration)
	}
	w.deliver(j, r)
}

func (w *Worker) finish(j job) (data []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			data, err = nil, &ProcessingError{Message: "internal failure", Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return w.finisher.Finish(j.frame, j.req)
}

func (w *Worker) deliver(j job, r Result) {
	if j.done == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("photo: result callback panicked", "job", j.id, "panic", p)
		}
	}()
	j.done(r)
}

