// Package pipeline drives one poster generation at a time:
// Normalize → Upload → Generate.
//
// Invariants:
//   - At most one run is in flight; Start outside idle is refused, never queued.
//   - Stages run strictly in order; a stage starts only after its predecessor's
//     result is bound.
//   - Reset is always accepted. It cancels the in-flight run and bumps the
//     generation counter so late stage results are discarded.
//   - Stage errors never escape: they are classified into domain.Result.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"postergen/internal/domain"
	"postergen/internal/infra"
)

// ErrSuperseded is returned by Wait when the awaited run was reset or replaced.
var ErrSuperseded = errors.New("pipeline: run superseded")

// Normalizer bounds and re-encodes the raw image.
type Normalizer interface {
	Normalize(ctx context.Context, raw domain.RawImage) (domain.NormalizedAsset, error)
}

// Uploader stores the normalized asset remotely and returns a one-shot handle.
type Uploader interface {
	Upload(ctx context.Context, asset domain.NormalizedAsset) (domain.RemoteHandle, error)
}

// WorkflowRunner turns a handle plus character into a poster URL.
type WorkflowRunner interface {
	RunWorkflow(ctx context.Context, handle domain.RemoteHandle, character domain.Character) (string, error)
}

// Options wires the stages and their timeouts. A zero timeout disables it.
type Options struct {
	Normalizer       Normalizer
	Uploader         Uploader
	Runner           WorkflowRunner
	NormalizeTimeout time.Duration
	UploadTimeout    time.Duration
	GenerateTimeout  time.Duration
	Logger           *infra.Logger
}

// Snapshot is a consistent view of the pipeline for presentation code.
type Snapshot struct {
	Generation uint64           `json:"generation"`
	State      domain.State     `json:"state"`
	Character  domain.Character `json:"character"`
	HasImage   bool             `json:"has_image"`
	ImageName  string           `json:"image_name,omitempty"`
	ImageReady bool             `json:"image_ready"`
	Result     *domain.Result   `json:"result,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Pipeline is the per-session generation state machine.
type Pipeline struct {
	normalizer       Normalizer
	uploader         Uploader
	runner           WorkflowRunner
	normalizeTimeout time.Duration
	uploadTimeout    time.Duration
	generateTimeout  time.Duration
	logger           *infra.Logger

	mu         sync.Mutex
	state      domain.State
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	image      *domain.RawImage
	character  domain.Character
	result     *domain.Result
	updatedAt  time.Time
	staged     *prefetch
	claimed    *prefetch
	subs       map[int]chan Snapshot
	nextSub    int
	closed     bool
}

type run struct {
	generation uint64
	image      domain.RawImage
	character  domain.Character
	prefetch   *prefetch
}

// New constructs an idle pipeline with the default character selected.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Pipeline{
		normalizer:       opts.Normalizer,
		uploader:         opts.Uploader,
		runner:           opts.Runner,
		normalizeTimeout: opts.NormalizeTimeout,
		uploadTimeout:    opts.UploadTimeout,
		generateTimeout:  opts.GenerateTimeout,
		logger:           logger,
		state:            domain.StateIdle,
		character:        domain.DefaultCharacter,
		updatedAt:        time.Now(),
		subs:             make(map[int]chan Snapshot),
	}
}

// SetImage stages raw for the next Start and begins normalizing it in the
// background. It never changes the state of a run already in flight.
func (p *Pipeline) SetImage(raw domain.RawImage) error {
	if err := raw.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setImageLocked(raw)
	p.notifyLocked()
	return nil
}

// SetCharacter stages the character for the next Start.
func (p *Pipeline) SetCharacter(c domain.Character) error {
	if !c.Valid() {
		return domain.NewError(domain.KindValidation, "unknown character "+string(c), nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.character = c
	p.notifyLocked()
	return nil
}

// Start launches a run with the staged inputs and returns its generation.
// The run is detached from ctx cancellation; use Reset to abort it.
func (p *Pipeline) Start(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startLocked(ctx)
}

// StartWith stages raw and character, then starts. Inputs are left untouched
// when the pipeline is busy.
func (p *Pipeline) StartWith(ctx context.Context, raw domain.RawImage, character domain.Character) (uint64, error) {
	if err := raw.Validate(); err != nil {
		return 0, err
	}
	if !character.Valid() {
		return 0, domain.NewError(domain.KindValidation, "unknown character "+string(character), nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != domain.StateIdle {
		return 0, domain.ErrBusy
	}
	p.setImageLocked(raw)
	p.character = character
	return p.startLocked(ctx)
}

// Reset returns the pipeline to idle immediately, cancelling any run in
// flight and discarding its artifacts, the staged image and the last result.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	p.notifyLocked()
}

// Close resets the pipeline and ends every subscription.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	p.closed = true
	for id, ch := range p.subs {
		close(ch)
		delete(p.subs, id)
	}
}

// Snapshot returns the current view.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Subscribe delivers a snapshot after every change. Slow consumers only miss
// intermediate snapshots; the latest one is always delivered.
func (p *Pipeline) Subscribe() (<-chan Snapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Snapshot, 16)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	ch <- p.snapshotLocked()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subs[id]; ok {
				close(sub)
				delete(p.subs, id)
			}
		})
	}
}

// Wait blocks until the run identified by generation reaches a terminal state.
// It returns ErrSuperseded when that run was reset first.
func (p *Pipeline) Wait(ctx context.Context, generation uint64) (Snapshot, error) {
	p.mu.Lock()
	if generation != p.generation {
		snap := p.snapshotLocked()
		p.mu.Unlock()
		return snap, ErrSuperseded
	}
	done := p.done
	p.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return p.Snapshot(), ctx.Err()
		}
	}
	snap := p.Snapshot()
	if snap.Generation != generation || !snap.State.Terminal() {
		return snap, ErrSuperseded
	}
	return snap, nil
}

// Run starts a run and waits for its result. Cancelling ctx resets the pipeline.
func (p *Pipeline) Run(ctx context.Context, raw domain.RawImage, character domain.Character) (domain.Result, error) {
	generation, err := p.StartWith(ctx, raw, character)
	if err != nil {
		return domain.Result{}, err
	}
	snap, err := p.Wait(ctx, generation)
	if err != nil {
		if ctx.Err() != nil {
			p.Reset()
		}
		return domain.Result{}, err
	}
	return *snap.Result, nil
}

func (p *Pipeline) startLocked(ctx context.Context) (uint64, error) {
	if p.state != domain.StateIdle {
		return 0, domain.ErrBusy
	}
	if p.image == nil {
		return 0, domain.ErrNoImage
	}
	if err := p.image.Validate(); err != nil {
		return 0, err
	}
	if p.normalizer == nil || p.uploader == nil || p.runner == nil {
		return 0, errors.New("pipeline: stages not configured")
	}

	p.generation++
	r := run{generation: p.generation, image: *p.image, character: p.character}
	if p.staged != nil && p.staged.key == r.image.Identity() {
		r.prefetch = p.staged
		p.claimed = p.staged
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})
	p.result = nil
	p.transitionLocked(domain.StateNormalizing)

	p.logger.Info().
		Uint64("generation", r.generation).
		Str("character", string(r.character)).
		Int64("image_bytes", r.image.Size).
		Bool("prefetched", r.prefetch != nil).
		Msg("pipeline: run started")

	go p.execute(runCtx, cancel, r)
	return r.generation, nil
}

func (p *Pipeline) execute(ctx context.Context, cancel context.CancelFunc, r run) {
	defer cancel()
	start := time.Now()

	asset, err := p.normalize(ctx, r)
	if !p.advance(r.generation, domain.StateNormalizing, err, domain.StateUploading) {
		return
	}

	uploadCtx, uploadCancel := withTimeout(ctx, p.uploadTimeout)
	handle, err := p.uploader.Upload(uploadCtx, asset)
	uploadCancel()
	if !p.advance(r.generation, domain.StateUploading, err, domain.StateGenerating) {
		return
	}

	// The handle is single use: whatever happens next it is never retried.
	generateCtx, generateCancel := withTimeout(ctx, p.generateTimeout)
	posterURL, err := p.runner.RunWorkflow(generateCtx, handle, r.character)
	generateCancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if r.generation != p.generation {
		p.logger.Debug().Uint64("generation", r.generation).Msg("pipeline: discarding stale workflow result")
		return
	}
	if err != nil {
		p.failLocked(domain.StateGenerating, err)
		return
	}
	res := domain.Succeeded(posterURL)
	p.result = &res
	p.finishLocked(domain.StateSucceeded)
	p.logger.Info().
		Uint64("generation", r.generation).
		Dur("elapsed", time.Since(start)).
		Msg("pipeline: run succeeded")
}

func (p *Pipeline) normalize(ctx context.Context, r run) (domain.NormalizedAsset, error) {
	if pf := r.prefetch; pf != nil {
		select {
		case <-pf.done:
			if pf.err == nil {
				return pf.asset, nil
			}
			if _, ok := domain.AsError(pf.err); ok {
				return domain.NormalizedAsset{}, pf.err
			}
			// Speculative work was cancelled or timed out; normalize again below.
		case <-ctx.Done():
			return domain.NormalizedAsset{}, ctx.Err()
		}
	}
	stageCtx, cancel := withTimeout(ctx, p.normalizeTimeout)
	defer cancel()
	return p.normalizer.Normalize(stageCtx, r.image)
}

// advance binds a stage result. It reports whether the run should continue.
func (p *Pipeline) advance(generation uint64, stage domain.State, err error, next domain.State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if generation != p.generation {
		p.logger.Debug().
			Uint64("generation", generation).
			Str("stage", string(stage)).
			Msg("pipeline: discarding stale stage result")
		return false
	}
	if err != nil {
		p.failLocked(stage, err)
		return false
	}
	p.transitionLocked(next)
	return true
}

func (p *Pipeline) failLocked(stage domain.State, err error) {
	classified := classify(stage, err)
	res := domain.Failed(classified)
	p.result = &res
	p.finishLocked(domain.StateFailed)
	p.logger.Warn().
		Err(err).
		Uint64("generation", p.generation).
		Str("stage", string(stage)).
		Str("kind", string(res.Failure.Kind)).
		Msg("pipeline: run failed")
}

func (p *Pipeline) finishLocked(state domain.State) {
	p.claimed = nil
	p.cancel = nil
	p.transitionLocked(state)
	p.closeDoneLocked()
}

func (p *Pipeline) resetLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.claimed != nil {
		p.claimed.cancel()
		p.claimed = nil
	}
	if p.staged != nil {
		p.staged.cancel()
		p.staged = nil
	}
	wasRunning := p.state.Running()
	p.generation++
	p.image = nil
	p.result = nil
	p.closeDoneLocked()
	if p.state != domain.StateIdle {
		p.logger.Info().
			Uint64("generation", p.generation).
			Str("from", string(p.state)).
			Bool("cancelled_run", wasRunning).
			Msg("pipeline: reset")
	}
	p.state = domain.StateIdle
	p.updatedAt = time.Now()
}

func (p *Pipeline) closeDoneLocked() {
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
}

func (p *Pipeline) transitionLocked(next domain.State) {
	p.logger.Debug().
		Uint64("generation", p.generation).
		Str("from", string(p.state)).
		Str("to", string(next)).
		Msg("pipeline: state changed")
	p.state = next
	p.updatedAt = time.Now()
	p.notifyLocked()
}

func (p *Pipeline) snapshotLocked() Snapshot {
	snap := Snapshot{
		Generation: p.generation,
		State:      p.state,
		Character:  p.character,
		UpdatedAt:  p.updatedAt,
	}
	if p.image != nil {
		snap.HasImage = true
		snap.ImageName = p.image.Name
		snap.ImageReady = p.staged != nil && p.staged.ready()
	}
	if p.result != nil {
		res := *p.result
		snap.Result = &res
	}
	return snap
}

func (p *Pipeline) notifyLocked() {
	if len(p.subs) == 0 {
		return
	}
	snap := p.snapshotLocked()
	for _, ch := range p.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
