package workspace

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskhive-ai/taskhive/pkg/config"
)

// Sweeper periodically enforces checkpoint retention. Operations are
// idempotent; running several sweepers over the same state directory is
// wasteful but safe.
type Sweeper struct {
	cfg     *config.WorkspaceConfig
	manager *Manager

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a retention sweeper over the manager's state directory.
func NewSweeper(cfg *config.WorkspaceConfig, manager *Manager) *Sweeper {
	return &Sweeper{cfg: cfg, manager: manager}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Checkpoint sweeper started",
		"keep", s.cfg.KeepCheckpoints,
		"interval", s.cfg.SweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Checkpoint sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	s.sweep()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	removed, err := s.manager.PruneCheckpoints(s.cfg.KeepCheckpoints)
	if err != nil {
		slog.Error("Retention: checkpoint prune failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Retention: pruned old checkpoints", "count", removed)
	}
}
