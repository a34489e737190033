package pipeline

import (
	"context"

	"postergen/internal/domain"
)

// prefetch is a speculative normalization keyed by the raw image identity.
// asset and err are written once before done is closed.
type prefetch struct {
	key    string
	cancel context.CancelFunc
	done   chan struct{}
	asset  domain.NormalizedAsset
	err    error
}

func (pf *prefetch) ready() bool {
	select {
	case <-pf.done:
		return pf.err == nil
	default:
		return false
	}
}

// setImageLocked stages raw. A different image invalidates the staged
// speculative task; a task already claimed by a run is left alone.
func (p *Pipeline) setImageLocked(raw domain.RawImage) {
	img := raw
	p.image = &img
	key := raw.Identity()
	if p.staged != nil {
		if p.staged.key == key {
			return
		}
		if p.staged != p.claimed {
			p.staged.cancel()
		}
		p.staged = nil
	}
	if p.normalizer == nil {
		return
	}
	if p.claimed != nil && p.claimed.key == key {
		p.staged = p.claimed
		return
	}

	ctx, cancel := withTimeout(context.Background(), p.normalizeTimeout)
	pf := &prefetch{key: key, cancel: cancel, done: make(chan struct{})}
	p.staged = pf
	go func() {
		defer cancel()
		asset, err := p.normalizer.Normalize(ctx, img)
		pf.asset, pf.err = asset, err
		close(pf.done)

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.staged == pf {
			p.logger.Debug().Bool("ok", err == nil).Msg("pipeline: speculative normalization finished")
			p.notifyLocked()
		}
	}()
}
