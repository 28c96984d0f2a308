// Package worker runs the parser workers: each owns one database
// connection, takes jobs from the submission queue and processes them one
// at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/rteval-parser/internal/core"
	"github.com/JonMunkholm/rteval-parser/internal/logging"
	"github.com/JonMunkholm/rteval-parser/internal/metrics"
	"github.com/JonMunkholm/rteval-parser/internal/queue"
)

// Processor handles one checked-out job on the worker's connection.
type Processor interface {
	Process(ctx context.Context, conn core.Conn, job *queue.Job) (queue.Status, error)
}

// Acquirer hands a worker the connection it keeps for its lifetime.
// release returns it.
type Acquirer func(ctx context.Context) (conn core.Conn, release func(), err error)

// PoolAcquirer acquires dedicated connections from a pgx pool.
func PoolAcquirer(pool *pgxpool.Pool) Acquirer {
	return func(ctx context.Context) (core.Conn, func(), error) {
		c, err := pool.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return c.Conn(), c.Release, nil
	}
}

// Config controls the worker pool.
type Config struct {
	Count        int
	PollInterval time.Duration
}

// Pool runs Count workers sharing one checkout strategy.
type Pool struct {
	cfg       Config
	acquire   Acquirer
	checkout  queue.Checkouter
	processor Processor
}

func NewPool(cfg Config, acquire Acquirer, checkout queue.Checkouter, processor Processor) *Pool {
	return &Pool{cfg: cfg, acquire: acquire, checkout: checkout, processor: processor}
}

// Run starts the workers and blocks until all have stopped. Cancelling
// ctx stops idle workers; a worker busy with a job finishes it first.
// A worker whose connection fails exits with the error while the others
// keep going; Run returns the first such error.
func (p *Pool) Run(ctx context.Context) error {
	var g errgroup.Group
	for i := 0; i < p.cfg.Count; i++ {
		id := fmt.Sprintf("%d-%s", i, uuid.NewString()[:8])
		g.Go(func() error {
			return p.work(ctx, id)
		})
	}
	return g.Wait()
}

func (p *Pool) work(ctx context.Context, id string) error {
	ctx = logging.WithWorker(ctx, id)
	log := logging.FromContext(ctx)

	conn, release, err := p.acquire(ctx)
	if err != nil {
		return fmt.Errorf("worker %s: acquire connection: %w", id, err)
	}
	defer release()

	log.Info("worker started")
	defer log.Info("worker stopped")

	for ctx.Err() == nil {
		job, err := p.checkout.Next(ctx, conn)
		if err != nil {
			metrics.RecordCheckout(metrics.CheckoutError)
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, core.ErrConnection) {
				return fmt.Errorf("worker %s: %w", id, err)
			}
			log.Error("checkout failed", "error", err)
			sleep(ctx, p.cfg.PollInterval)
			continue
		}
		if job == nil {
			metrics.RecordCheckout(metrics.CheckoutEmpty)
			sleep(ctx, p.cfg.PollInterval)
			continue
		}
		metrics.RecordCheckout(metrics.CheckoutJob)

		if err := p.process(ctx, conn, job); err != nil {
			return fmt.Errorf("worker %s: %w", id, err)
		}
	}
	return nil
}

// process runs one job detached from ctx's cancellation, so shutdown
// does not abandon a job half-registered. Only connection failures are
// returned.
func (p *Pool) process(ctx context.Context, conn core.Conn, job *queue.Job) error {
	metrics.WorkerBusy()
	defer metrics.WorkerIdle()

	status, err := p.processor.Process(context.WithoutCancel(ctx), conn, job)
	if err != nil {
		if errors.Is(err, core.ErrConnection) {
			return err
		}
		logging.FromContext(ctx).Error("job not finished",
			"submid", job.SubmID,
			"status", status.String(),
			"error", err,
		)
		return nil
	}
	logging.FromContext(ctx).Debug("job finished", "submid", job.SubmID, "status", status.String())
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
