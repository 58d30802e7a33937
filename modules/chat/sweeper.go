package chat

import (
	"context"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"
)

// SweeperConfig controls presence reclamation.
type SweeperConfig struct {
	Interval  time.Duration
	Retention time.Duration
	BatchSize int
}

// PresenceSweeper periodically deletes offline presence records older than
// the retention window and expires stale typing indicators. Each batch runs
// in its own critical section so live traffic is never starved.
type PresenceSweeper struct {
	svc    *Service
	cfg    SweeperConfig
	logger types.Logger

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewPresenceSweeper creates a sweeper. Zero values take the defaults of
// 5 minutes, 30 minutes and 256.
func NewPresenceSweeper(svc *Service, cfg SweeperConfig, logger types.Logger) *PresenceSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	return &PresenceSweeper{svc: svc, cfg: cfg, logger: logger}
}

// Start launches the background loop.
func (p *PresenceSweeper) Start() {
	p.stopChan = make(chan struct{})
	p.doneChan = make(chan struct{})
	go p.run()
	p.logger.Info("Presence sweeper started",
		"interval", p.cfg.Interval.String(),
		"retention", p.cfg.Retention.String())
}

func (p *PresenceSweeper) run() {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	defer close(p.doneChan)

	// Typing indicators expire on their own, faster cadence.
	var typingC <-chan time.Time
	if ttl := p.svc.opts.TypingTTL; ttl > 0 {
		typingTicker := time.NewTicker(ttl / 2)
		defer typingTicker.Stop()
		typingC = typingTicker.C
	}

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.Sweep()
		case <-typingC:
			p.expireTyping()
		}
	}
}

// Sweep runs one reclamation pass and returns the number of presence records
// deleted.
func (p *PresenceSweeper) Sweep() int {
	cutoff := p.svc.opts.Now().Add(-p.cfg.Retention)

	total := 0
	for {
		n := p.svc.evictOffline(cutoff, p.cfg.BatchSize)
		total += n
		if n < p.cfg.BatchSize {
			break
		}
	}

	p.expireTyping()
	if total > 0 {
		p.logger.Info("Swept stale presence", "evicted", total)
	}
	return total
}

func (p *PresenceSweeper) expireTyping() {
	if expired := p.svc.expireTyping(); expired > 0 {
		p.logger.Debug("Expired typing indicators", "count", expired)
	}
}

// Stop signals the loop and waits for it, bounded by ctx.
func (p *PresenceSweeper) Stop(ctx context.Context) error {
	if p.stopChan == nil {
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})

	select {
	case <-p.doneChan:
		p.logger.Info("Presence sweeper stopped")
	case <-ctx.Done():
		p.logger.Warn("Presence sweeper shutdown timeout exceeded")
		return ctx.Err()
	}
	return nil
}
