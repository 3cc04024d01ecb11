// Package framepipeline turns camera frames into finished photos and into
// fixed-size tensor buffers for on-device inference.
//
// The host supplies frames (raw sensor buffers with stride metadata, or
// already encoded images) and request parameters; the pipeline owns each
// frame until it calls its Release hook, exactly once.
//
// Basic usage:
//
//	p := framepipeline.New()
//	defer p.Close()
//
//	// Still path
//	req, err := photo.ParseRequest(map[string]any{
//		"jpegQuality":            90,
//		"centerCropAspectRatio":  1.0,
//		"centerCropWidthPercent": 0.8,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	jpeg, err := p.FinishPhoto(frame, req)
//
//	// Live path
//	opts, err := analysis.ParseOptionsMap(map[string]any{
//		"detector": map[string]any{
//			"imageWidth": 300, "imageHeight": 300,
//			"colorOrder": "rgb", "normalization": "ufloat",
//		},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	p.Attach("detector", opts["detector"])
//	for f := range frames {
//		p.SubmitFrame(f)
//	}
//	last, ok := p.ReadLastFrame("detector")
//
// The pipeline consists of these components:
//
// 1. Geometry (pkg/geometry): center-crop and stencil rectangles
// 2. Orientation (pkg/orientation): bakes EXIF/sensor orientation into pixels
// 3. Photo (pkg/photo): decode, orient, crop and re-encode a capture
// 4. Analysis (pkg/analysis): per-consumer tensor buffers with a last-frame slot
package framepipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/menta2k/frame-pipeline/pkg/analysis"
	"github.com/menta2k/frame-pipeline/pkg/photo"
	"github.com/menta2k/frame-pipeline/pkg/types"
)

// Version of the frame pipeline library
const Version = "1.0.0"

// Config configures a Pipeline
type Config struct {
	Photo    photo.Config
	Worker   photo.WorkerConfig
	Analysis analysis.Config
	Logger   *slog.Logger
}

// Pipeline is the host-facing entry point. The capture worker and the
// analysis session are independent and share no mutable state.
type Pipeline struct {
	logger   *slog.Logger
	finisher *photo.Finisher
	session  *analysis.Session

	mu     sync.Mutex
	worker *photo.Worker
	config photo.WorkerConfig
	closed bool
}

// New creates a Pipeline with default configuration
func New() *Pipeline {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a Pipeline with custom configuration
func NewWithConfig(config Config) *Pipeline {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Worker.Logger == nil {
		config.Worker.Logger = config.Logger
	}
	if config.Analysis.Logger == nil {
		config.Analysis.Logger = config.Logger
	}

	return &Pipeline{
		logger:   config.Logger,
		finisher: photo.NewWithConfig(config.Photo),
		session:  analysis.NewSession(config.Analysis),
		config:   config.Worker,
	}
}

// FinishPhoto produces the final encoded picture synchronously. The frame is
// released before FinishPhoto returns, on success and on failure. Errors are
// *photo.ProcessingError.
func (p *Pipeline) FinishPhoto(frame *types.Frame, req photo.Request) ([]byte, error) {
	defer frame.Done()
	return p.finisher.Finish(frame, req)
}

// TakePicture finishes frame on the capture worker and calls done with the
// result. The worker is started on first use. It returns photo.ErrBusy when
// captures are already queued to capacity; the frame is released either way.
func (p *Pipeline) TakePicture(frame *types.Frame, req photo.Request, done func(photo.Result)) (string, error) {
	w, err := p.captureWorker()
	if err != nil {
		frame.Done()
		return "", err
	}
	return w.Submit(frame, req, done)
}

// Capture is TakePicture waiting for the result
func (p *Pipeline) Capture(ctx context.Context, frame *types.Frame, req photo.Request) ([]byte, error) {
	w, err := p.captureWorker()
	if err != nil {
		frame.Done()
		return nil, err
	}
	return w.Capture(ctx, frame, req)
}

// Attach starts feeding analysis frames to a consumer under key
func (p *Pipeline) Attach(key string, opts analysis.Options) error {
	if p.isClosed() {
		return fmt.Errorf("framepipeline: attach %q: %w", key, photo.ErrStopped)
	}
	return p.session.Attach(key, opts)
}

// AttachAll attaches every entry of a parsed analysis options map
func (p *Pipeline) AttachAll(opts map[string]analysis.Options) error {
	for key, o := range opts {
		if err := p.Attach(key, o); err != nil {
			return err
		}
	}
	return nil
}

// Detach removes the consumer under key. Detaching the last one stops live
// processing and clears every slot.
func (p *Pipeline) Detach(key string) bool {
	return p.session.Detach(key)
}

// SubmitFrame hands a live frame to the analysis worker without blocking.
// A newer frame replaces one still waiting.
func (p *Pipeline) SubmitFrame(frame *types.Frame) bool {
	return p.session.Submit(frame)
}

// ProcessFrame runs a live frame through every consumer on the caller's
// goroutine. Per-frame failures are logged and leave the slots unchanged.
func (p *Pipeline) ProcessFrame(frame *types.Frame) {
	if err := p.session.ProcessFrame(frame); err != nil {
		p.logger.Debug("framepipeline: analysis frame failed", "err", err)
	}
}

// ReadLastFrame returns a copy of the last completed analysis frame for key
func (p *Pipeline) ReadLastFrame(key string) (*analysis.Frame, bool) {
	return p.session.ReadLastFrame(key)
}

// TargetResolution is the sensor resolution to request for the attached consumers
func (p *Pipeline) TargetResolution() types.Size {
	return p.session.TargetResolution()
}

// AnalysisStats returns the analysis session counters
func (p *Pipeline) AnalysisStats() analysis.Stats {
	return p.session.Stats()
}

// Close stops the capture worker and detaches every analysis consumer
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	w := p.worker
	p.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	p.session.Close()
	p.logger.Debug("framepipeline: closed")
	return nil
}

func (p *Pipeline) captureWorker() (*photo.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, photo.ErrStopped
	}
	if p.worker == nil {
		w := photo.NewWorker(p.finisher, p.config)
		if err := w.Start(context.Background()); err != nil {
			return nil, err
		}
		p.worker = w
	}
	return p.worker, nil
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
