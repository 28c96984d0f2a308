package registration

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/JonMunkholm/rteval-parser/internal/core"
	"github.com/JonMunkholm/rteval-parser/internal/logging"
	"github.com/JonMunkholm/rteval-parser/internal/metrics"
	"github.com/JonMunkholm/rteval-parser/internal/queue"
)

// Opener opens the report behind a queue job. A Source that also
// implements io.Closer is closed when the job is done.
type Opener interface {
	Open(ctx context.Context, job *queue.Job) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, job *queue.Job) (Source, error)

func (f OpenerFunc) Open(ctx context.Context, job *queue.Job) (Source, error) {
	return f(ctx, job)
}

// Pipeline processes checked-out jobs.
type Pipeline struct {
	Opener Opener
}

// Process registers one assigned job and records its terminal status.
//
// The system phase commits on its own so a known system survives a failed
// run. The run and its statistics share a second transaction: a run is
// never stored without its statistics.
//
// The returned error is non-nil only when the job could not be finished:
// the queue could not be updated or the connection failed. Registration
// failures are reported through the returned status.
func (p *Pipeline) Process(ctx context.Context, conn core.Conn, job *queue.Job) (queue.Status, error) {
	start := time.Now()
	ctx = logging.WithSubmission(ctx, job.SubmID)
	log := logging.FromContext(ctx)

	if err := queue.UpdateStatus(ctx, conn, job.SubmID, queue.InProgress); err != nil {
		return job.Status, err
	}
	job.Status = queue.InProgress
	log.Info("processing submission", "file", job.Filename)

	status := queue.Success
	rterid, err := p.register(ctx, conn, job)
	if err != nil {
		status = FailureStatus(err)
		log.Error("registration failed",
			"status", status.String(),
			"code", core.Code(err),
			"error", err,
		)
		if errors.Is(err, core.ErrConnection) {
			return status, err
		}
	}

	if err := queue.UpdateStatus(ctx, conn, job.SubmID, status); err != nil {
		return status, err
	}
	job.Status = status
	metrics.RecordJob(status.String(), time.Since(start))

	if status == queue.Success {
		log.Info("submission registered", "rterid", rterid, "duration", time.Since(start))
	}
	return status, nil
}

func (p *Pipeline) register(ctx context.Context, conn core.Conn, job *queue.Job) (int64, error) {
	src, err := p.Opener.Open(ctx, job)
	if err != nil {
		return 0, phaseErr(PhaseReport, err)
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	var syskey int64
	err = inScope(ctx, conn, func(ctx context.Context) error {
		var err error
		syskey, err = RegisterSystem(ctx, conn, src)
		return err
	})
	if err != nil {
		return 0, err
	}

	var rterid int64
	err = inScope(ctx, conn, func(ctx context.Context) error {
		var err error
		if rterid, err = RegisterRun(ctx, conn, src, syskey, job.SubmID, job.Filename); err != nil {
			return err
		}
		return RegisterStatistics(ctx, conn, src, rterid)
	})
	if err != nil {
		return 0, err
	}
	return rterid, nil
}

// inScope runs fn in a transaction. Failures outside fn are transaction
// failures.
func inScope(ctx context.Context, conn core.Conn, fn func(ctx context.Context) error) error {
	if err := core.InTransaction(ctx, conn, fn); err != nil {
		return phaseErr(PhaseTransaction, err)
	}
	return nil
}
