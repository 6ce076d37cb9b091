package builder

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
)

var ErrJobDone = errors.New("delivery job already finished")

// Deliverer is the part of Builder a job drives.
type Deliverer interface {
	Deliver(ctx context.Context, msg codec.Message, md codec.Metadata) (Result, error)
}

// Job tracks one message through Pending -> Delivered | AlreadyDelivered |
// Rejected | Stuck. A stuck job may be run again; every other final state
// is terminal.
type Job struct {
	mu sync.Mutex

	msg codec.Message
	md  codec.Metadata

	state  hyperlane.DeliveryState
	result Result
	err    error
	runs   int

	logger zerolog.Logger
}

func NewJob(msg codec.Message, md codec.Metadata, logger zerolog.Logger) *Job {
	return &Job{
		msg:    msg,
		md:     md.Clone(),
		state:  hyperlane.DeliveryStatePending,
		logger: logger.With().Str("message_id", msg.ID().String()).Logger(),
	}
}

func (j *Job) MessageID() hyperlane.Bytes32 { return j.msg.ID() }

func (j *Job) State() hyperlane.DeliveryState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Result returns the outcome of the last run.
func (j *Job) Result() (Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Run makes one delivery attempt cycle. The job lock is not held while
// delivering so State stays readable.
func (j *Job) Run(ctx context.Context, d Deliverer) error {
	j.mu.Lock()
	if j.state != hyperlane.DeliveryStatePending && j.state != hyperlane.DeliveryStateStuck {
		j.mu.Unlock()
		return ErrJobDone
	}
	j.runs++
	run := j.runs
	j.mu.Unlock()

	res, err := d.Deliver(ctx, j.msg, j.md)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.result, j.err = res, err
	j.state = res.State
	j.logger.Debug().
		Int("run", run).
		Str("state", res.State.String()).
		Int("attempts", res.Attempts).
		Msg("Delivery job ran")
	if res.State == hyperlane.DeliveryStateAlreadyDelivered {
		// Expected under duplicate delivery; not a failure of the job.
		return nil
	}
	return err
}

// RunAll runs jobs concurrently, at most limit at a time. Individual job
// failures are kept on the jobs; only cancellation aborts the batch.
func RunAll(ctx context.Context, d Deliverer, jobs []*Job, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := j.Run(ctx, d); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}
	return g.Wait()
}
