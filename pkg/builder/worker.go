package builder

import (
	"context"
	"errors"
	"time"

	"github.com/windlass/windlass/pkg/errdefs"
	"github.com/windlass/windlass/pkg/metrics"
	"github.com/windlass/windlass/pkg/queue"
	"github.com/windlass/windlass/pkg/types"
)

// Start launches the worker pool. Workers run until Stop is called.
func (s *Service) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.work(ctx, i)
	}
	s.logger.Info().Int("workers", s.workers).Msg("build workers started")
}

// Stop shuts down the worker pool and waits for in-flight builds to finalize
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info().Msg("build workers stopped")
}

func (s *Service) work(ctx context.Context, id int) {
	defer s.wg.Done()
	logger := s.logger.With().Int("worker", id).Logger()

	for {
		job, err := s.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error().Err(err).Msg("dequeue failed")
			continue
		}

		s.process(ctx, job)

		if depth, err := s.queue.Depth(); err == nil {
			metrics.QueueDepth.Set(float64(depth))
		}
	}
}

// process executes one leased job end to end. Jobs may be redelivered
// after a lease expires, so the pending/queued check plus the conditional
// transition to running is what keeps execution single-shot.
func (s *Service) process(ctx context.Context, job *queue.Job) {
	logger := s.logger.With().Str("build_id", job.ID).Logger()

	build, err := s.store.GetBuild(job.ID)
	if err != nil {
		logger.Error().Err(err).Msg("leased job has no build record, dropping")
		_ = s.queue.Ack(job.ID)
		return
	}
	if build.Status != types.BuildStatusPending && build.Status != types.BuildStatusQueued {
		// Redelivery of a job another worker already picked up
		logger.Debug().Str("status", string(build.Status)).Msg("skipping redelivered job")
		_ = s.queue.Ack(job.ID)
		return
	}

	now := time.Now()
	build.Status = types.BuildStatusRunning
	build.StartedAt = &now
	build.UpdatedAt = now
	if err := s.store.UpdateBuild(build); err != nil {
		// Lost the race to another worker, or transient storage trouble.
		// Either way the job goes back for redelivery.
		logger.Debug().Err(err).Msg("could not claim build, releasing job")
		_ = s.queue.Nack(job.ID)
		return
	}

	buildCtx, abort := context.WithCancel(ctx)
	s.mu.Lock()
	s.running[build.ID] = abort
	s.mu.Unlock()
	defer func() {
		abort()
		s.mu.Lock()
		delete(s.running, build.ID)
		s.mu.Unlock()
	}()

	timer := metrics.NewTimer()
	result, runErr := s.toolchain.Run(buildCtx, ToolchainInput{
		RepoURL:        job.RepoURL,
		CommitSHA:      job.CommitSHA,
		DockerfilePath: job.DockerfilePath,
		BuildArgs:      job.BuildArgs,
	})
	timer.ObserveDuration(metrics.BuildDuration)

	// A run aborted through its context was cancelled or caught by a
	// shutdown, never a toolchain verdict
	status := types.BuildStatusSuccess
	switch {
	case runErr != nil && buildCtx.Err() != nil:
		status = types.BuildStatusCancelled
	case runErr != nil:
		status = types.BuildStatusFailed
	}

	final, err := s.transition(build.ID, func(b *types.Build) error {
		if b.Status != types.BuildStatusRunning {
			return errdefs.Conflict(errdefs.CodeInvalidTransition, "build is %s", b.Status)
		}
		b.Status = status
		if result != nil {
			b.Logs += result.Logs
			b.ImageURL = result.ImageURL
		}
		if runErr != nil && status == types.BuildStatusFailed {
			b.Logs += "\nerror: " + runErr.Error() + "\n"
		}
		finished := time.Now()
		b.FinishedAt = &finished
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to finalize build")
		_ = s.queue.Ack(job.ID)
		return
	}

	metrics.BuildsTotal.WithLabelValues(string(final.Status)).Inc()
	_ = s.queue.Ack(job.ID)

	switch final.Status {
	case types.BuildStatusSuccess:
		logger.Info().Str("image", final.ImageURL).Dur("took", timer.Duration()).Msg("build succeeded")
	case types.BuildStatusCancelled:
		logger.Info().Msg("build cancelled")
	default:
		logger.Warn().Err(runErr).Msg("build failed")
	}
}
