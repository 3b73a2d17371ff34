package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/northlane/livechat-server/internal/config"
	"github.com/northlane/livechat-server/internal/model"
)

type IdleSessionFinder interface {
	FindIdleOpen(ctx context.Context, before time.Time, limit int) ([]model.ChatSession, error)
}

// IdleSessionCloser closes a session still idle since before and notifies
// whoever is connected to it.
type IdleSessionCloser interface {
	CloseIdleSession(ctx context.Context, sessionID string, before time.Time) (*model.ChatSession, bool, error)
}

type AdminSessionPruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

type CleanupJob struct {
	finder      IdleSessionFinder
	closer      IdleSessionCloser
	adminPruner AdminSessionPruner
	idleTimeout time.Duration
	batchSize   int
	interval    time.Duration
	done        chan struct{}
}

// NewCleanupJob builds the periodic cleanup. An idleTimeout of zero leaves
// open chat sessions alone and only prunes expired admin logins.
func NewCleanupJob(
	finder IdleSessionFinder,
	closer IdleSessionCloser,
	adminPruner AdminSessionPruner,
	idleTimeout time.Duration,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		finder:      finder,
		closer:      closer,
		adminPruner: adminPruner,
		idleTimeout: idleTimeout,
		batchSize:   config.IdleSessionBatchSize,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("idleTimeout", j.idleTimeout).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "admin sessions", j.adminPruner.PruneExpired)
	if j.idleTimeout > 0 {
		j.runCleanup(ctx, "idle chat sessions", j.closeIdleSessions)
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}

// closeIdleSessions goes through the normal close path so connected
// participants receive session_closed. The cutoff is fixed for the sweep and
// rechecked on close.
func (j *CleanupJob) closeIdleSessions(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-j.idleTimeout)
	var closed int64
	for {
		sessions, err := j.finder.FindIdleOpen(ctx, cutoff, j.batchSize)
		if err != nil {
			return closed, err
		}

		progressed := false
		for _, s := range sessions {
			_, transitioned, err := j.closer.CloseIdleSession(ctx, s.ID, cutoff)
			if err != nil {
				log.Warn().Err(err).Str("sessionId", s.ID).Msg("failed to close idle session")
				continue
			}
			if transitioned {
				closed++
				progressed = true
			}
		}

		if len(sessions) < j.batchSize || !progressed {
			return closed, nil
		}
	}
}
