package analysis

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/menta2k/frame-pipeline/pkg/codec"
	"github.com/menta2k/frame-pipeline/pkg/colorconv"
	"github.com/menta2k/frame-pipeline/pkg/types"
)

// Config configures a Session
type Config struct {
	Logger *slog.Logger
	// Interpolator overrides the builders' nearest-neighbour sampling
	Interpolator draw.Interpolator
}

// Stats is a point-in-time view of a session
type Stats struct {
	ID        string
	Consumers []string
	Running   bool
	// Processed counts frames colour-converted and fed to the builders
	Processed uint64
	// Dropped counts frames overwritten in the inbox or submitted with no consumer
	Dropped uint64
	// Failed counts frames or per-key builds that errored
	Failed uint64
}

type consumer struct {
	key     string
	builder *Builder
	slot    *Slot
}

// runner is one generation of the worker goroutine
type runner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Session feeds live frames to every attached consumer. Frames are drained
// by a single worker goroutine from a one-frame inbox: a frame arriving while
// another waits replaces it. The worker starts with the first Attach and
// stops when the last consumer detaches.
type Session struct {
	id     string
	logger *slog.Logger
	interp draw.Interpolator

	mu        sync.Mutex // guards run and consumer map writes
	run       *runner
	consumers atomic.Pointer[map[string]*consumer]

	inboxMu   sync.Mutex
	inboxCond *sync.Cond
	inbox     *types.Frame
	accepting bool // guarded by inboxMu

	procMu sync.Mutex // one frame at a time through the builders
	rgb    *image.NRGBA

	seq       atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewSession creates an idle session
func NewSession(config Config) *Session {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	s := &Session{
		id:     uuid.NewString(),
		interp: config.Interpolator,
	}
	s.logger = config.Logger.With("session", s.id)
	s.inboxCond = sync.NewCond(&s.inboxMu)
	empty := map[string]*consumer{}
	s.consumers.Store(&empty)
	return s
}

// ID returns the session's unique identifier
func (s *Session) ID() string {
	return s.id
}

// Attach registers a consumer under key, replacing any previous consumer
// with that key. The first consumer starts the worker.
func (s *Session) Attach(key string, opts Options) error {
	if err := opts.Validate(key); err != nil {
		return err
	}
	b, err := NewBuilder(opts)
	if err != nil {
		return err
	}
	if s.interp != nil {
		b.SetInterpolator(s.interp)
	}
	c := &consumer{key: key, builder: b, slot: &Slot{}}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := *s.consumers.Load()
	next := make(map[string]*consumer, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	if prev, ok := next[key]; ok {
		prev.slot.Close()
	}
	next[key] = c
	s.consumers.Store(&next)

	if s.run == nil {
		s.start()
	}

	s.logger.Info("analysis: consumer attached",
		"key", key,
		"size", fmt.Sprintf("%dx%d", opts.ImageSize.Width, opts.ImageSize.Height),
		"color_order", opts.ColorOrder,
		"normalization", opts.Normalization)
	return nil
}

// Detach removes the consumer under key and empties its slot. Detaching the
// last consumer stops the worker and drops any pending frame before
// returning; a frame already in a builder completes but is discarded.
func (s *Session) Detach(key string) bool {
	s.mu.Lock()

	old := *s.consumers.Load()
	c, ok := old[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	next := make(map[string]*consumer, len(old))
	for k, v := range old {
		if k != key {
			next[k] = v
		}
	}
	s.consumers.Store(&next)
	c.slot.Close()

	var r *runner
	if len(next) == 0 {
		r = s.stop()
	}
	s.mu.Unlock()

	s.logger.Info("analysis: consumer detached", "key", key, "remaining", len(next))

	if r != nil {
		<-r.done
		s.procMu.Lock()
		s.rgb = nil
		s.procMu.Unlock()
		s.logger.Info("analysis: session idle")
	}
	return true
}

// Close detaches every consumer
func (s *Session) Close() {
	for _, key := range s.Keys() {
		s.Detach(key)
	}
}

// Keys lists attached consumer keys, sorted
func (s *Session) Keys() []string {
	m := *s.consumers.Load()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Options returns the options of the consumer under key
func (s *Session) Options(key string) (Options, bool) {
	c, ok := (*s.consumers.Load())[key]
	if !ok {
		return Options{}, false
	}
	return c.builder.Options(), true
}

// Submit hands a live frame to the worker without blocking. A frame still
// waiting in the inbox is released and counted as dropped. With no
// consumer attached the frame is released at once and Submit returns false,
// as it does for a nil frame.
func (s *Session) Submit(f *types.Frame) bool {
	if f == nil {
		return false
	}
	s.inboxMu.Lock()
	if !s.accepting {
		s.inboxMu.Unlock()
		f.Done()
		s.dropped.Add(1)
		return false
	}
	prev := s.inbox
	s.inbox = f
	s.inboxCond.Signal()
	s.inboxMu.Unlock()

	if prev != nil {
		prev.Done()
		s.dropped.Add(1)
		s.logger.Debug("analysis: frame dropped, worker busy")
	}
	return true
}

// ProcessFrame runs f through every consumer on the calling goroutine and
// releases it. Failures leave the affected slots at their previous frame.
// The returned error is for logging only.
func (s *Session) ProcessFrame(f *types.Frame) error {
	defer f.Done()
	if f == nil {
		return fmt.Errorf("%w: no frame", types.ErrDecode)
	}

	s.procMu.Lock()
	defer s.procMu.Unlock()

	consumers := *s.consumers.Load()
	if len(consumers) == 0 {
		return nil
	}

	img, err := s.convert(f)
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("analysis: convert frame: %w", err)
	}
	o, err := f.EffectiveOrientation()
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("analysis: frame orientation: %w", err)
	}

	seq := s.seq.Add(1)
	var firstErr error
	for key, c := range consumers {
		data, err := c.builder.Build(img, o)
		if err != nil {
			s.failed.Add(1)
			if firstErr == nil {
				firstErr = fmt.Errorf("analysis: build %q: %w", key, err)
			}
			continue
		}

		opts := c.builder.Options()
		frame := &Frame{
			Key:           key,
			Seq:           seq,
			Width:         opts.ImageSize.Width,
			Height:        opts.ImageSize.Height,
			ColorOrder:    opts.ColorOrder,
			Normalization: opts.Normalization,
			ByteOrder:     opts.ByteOrder,
			CapturedAt:    f.Timestamp,
			ProcessedAt:   time.Now(),
			Data:          data,
		}
		if !c.slot.Replace(frame) {
			s.logger.Debug("analysis: result discarded, consumer detached", "key", key, "seq", seq)
		}
	}
	s.processed.Add(1)
	return firstErr
}

// ReadLastFrame returns a copy of the last completed frame for key
func (s *Session) ReadLastFrame(key string) (*Frame, bool) {
	c, ok := (*s.consumers.Load())[key]
	if !ok {
		return nil, false
	}
	return c.slot.Snapshot()
}

// TargetResolution is the largest image size among attached consumers
func (s *Session) TargetResolution() types.Size {
	m := *s.consumers.Load()
	opts := make(map[string]Options, len(m))
	for k, c := range m {
		opts[k] = c.builder.Options()
	}
	return TargetResolution(opts)
}

// Stats returns the session counters
func (s *Session) Stats() Stats {
	s.mu.Lock()
	running := s.run != nil
	s.mu.Unlock()

	return Stats{
		ID:        s.id,
		Consumers: s.Keys(),
		Running:   running,
		Processed: s.processed.Load(),
		Dropped:   s.dropped.Load(),
		Failed:    s.failed.Load(),
	}
}

func (s *Session) convert(f *types.Frame) (image.Image, error) {
	if f.IsEncoded() {
		return codec.DecodeFrame(f)
	}
	img, rgb, err := colorconv.Convert(f, s.rgb)
	s.rgb = rgb
	return img, err
}

// start launches a worker generation. Caller holds s.mu.
func (s *Session) start() {
	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{cancel: cancel, done: make(chan struct{})}
	s.run = r

	s.inboxMu.Lock()
	s.accepting = true
	s.inboxMu.Unlock()

	context.AfterFunc(ctx, func() {
		s.inboxMu.Lock()
		s.inboxCond.Broadcast()
		s.inboxMu.Unlock()
	})

	go s.loop(ctx, r)
	s.logger.Info("analysis: session started")
}

// stop cancels the current worker and drops the pending frame. Caller holds
// s.mu and waits on the returned runner after unlocking.
func (s *Session) stop() *runner {
	r := s.run
	s.run = nil

	s.inboxMu.Lock()
	s.accepting = false
	pending := s.inbox
	s.inbox = nil
	s.inboxMu.Unlock()

	if pending != nil {
		pending.Done()
		s.dropped.Add(1)
	}
	r.cancel()
	return r
}

func (s *Session) loop(ctx context.Context, r *runner) {
	defer close(r.done)

	for {
		s.inboxMu.Lock()
		for s.inbox == nil && ctx.Err() == nil {
			s.inboxCond.Wait()
		}
		if ctx.Err() != nil {
			s.inboxMu.Unlock()
			return
		}
		f := s.inbox
		s.inbox = nil
		s.inboxMu.Unlock()

		if err := s.ProcessFrame(f); err != nil {
			s.logger.Warn("analysis: frame failed", "err", err)
		}
	}
}
