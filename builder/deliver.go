package builder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

// Result is the outcome of one Deliver call.
type Result struct {
	MessageID hyperlane.Bytes32
	State     hyperlane.DeliveryState
	TxID      ledger.TxID
	Attempts  int
}

// StuckReport is kept for every message whose retries ran out. The message
// is still valid; it needs another attempt once contention clears.
type StuckReport struct {
	ID        uuid.UUID
	MessageID hyperlane.Bytes32
	Message   codec.Message
	Metadata  codec.Metadata
	Attempts  int
	LastError string
	At        time.Time
}

func (b *Builder) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.opts.Retry.InitialInterval
	exp.MaxInterval = b.opts.Retry.MaxInterval
	if b.opts.Retry.Multiplier > 0 {
		exp.Multiplier = b.opts.Retry.Multiplier
	}
	// The attempt ceiling bounds the loop, not elapsed time.
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, b.opts.Retry.MaxAttempts-1), ctx)
}

// retry runs attempt until it succeeds, fails permanently or the attempt
// ceiling is reached. Only retryable errors are retried.
func (b *Builder) retry(ctx context.Context, op string, attempt func() (ledger.TxID, error)) (ledger.TxID, int, error) {
	attempts := 0
	id, err := backoff.RetryNotifyWithData(func() (ledger.TxID, error) {
		attempts++
		id, err := attempt()
		if err == nil {
			return id, nil
		}
		if hyperlane.IsRetryable(err) {
			return ledger.TxID{}, err
		}
		return ledger.TxID{}, backoff.Permanent(err)
	}, b.newBackOff(ctx), func(err error, wait time.Duration) {
		b.logger.Info().
			Str("op", op).
			Int("attempt", attempts).
			Dur("wait", wait).
			Err(err).
			Msg("Attempt lost a race, re-discovering")
	})
	return id, attempts, err
}

func (b *Builder) submit(ctx context.Context, build func() (*ledger.Tx, error)) (ledger.TxID, error) {
	tx, err := build()
	if err != nil {
		return ledger.TxID{}, err
	}
	return b.submitter.Submit(ctx, tx)
}

// Deliver processes msg on this deployment. Every attempt re-runs
// discovery; contention is retried with backoff up to the configured
// ceiling, after which the message is reported stuck.
//
// A message that was already processed yields AlreadyDelivered together
// with an error wrapping ErrAlreadyProcessed.
func (b *Builder) Deliver(ctx context.Context, msg codec.Message, md codec.Metadata) (Result, error) {
	id := msg.ID()
	log := b.logger.With().
		Str("message_id", id.String()).
		Uint32("origin", uint32(msg.Origin)).
		Uint32("nonce", msg.Nonce).
		Logger()

	txID, attempts, err := b.retry(ctx, "deliver", func() (ledger.TxID, error) {
		return b.submit(ctx, func() (*ledger.Tx, error) { return b.Build(ctx, msg, md) })
	})
	res := Result{MessageID: id, TxID: txID, Attempts: attempts}

	switch {
	case err == nil:
		res.State = hyperlane.DeliveryStateDelivered
		b.clearStuck(id)
		log.Info().Str("tx", txID.String()).Int("attempts", attempts).Msg("Message delivered")
		return res, nil

	case errors.Is(err, hyperlane.ErrAlreadyProcessed):
		res.State = hyperlane.DeliveryStateAlreadyDelivered
		b.clearStuck(id)
		log.Info().Msg("Message already delivered")
		return res, err

	case ctx.Err() != nil:
		res.State = hyperlane.DeliveryStatePending
		return res, err

	case hyperlane.IsRetryable(err):
		res.State = hyperlane.DeliveryStateStuck
		report := StuckReport{
			ID:        uuid.New(),
			MessageID: id,
			Message:   msg,
			Metadata:  md,
			Attempts:  attempts,
			LastError: err.Error(),
			At:        time.Now(),
		}
		b.mu.Lock()
		b.stuck[id] = report
		b.mu.Unlock()
		log.Error().
			Str("report", report.ID.String()).
			Int("attempts", attempts).
			Err(err).
			Msg("Message stuck, operator attention required")
		return res, fmt.Errorf("%w after %d attempts: %w", hyperlane.ErrStuck, attempts, err)

	default:
		res.State = hyperlane.DeliveryStateRejected
		if hyperlane.IsSecurityRelevant(err) {
			log.Warn().Err(err).Msg("Message rejected by verification")
		} else {
			log.Info().Err(err).Msg("Message rejected")
		}
		return res, err
	}
}

// DeliverEncoded decodes the wire forms of a message and its metadata and
// delivers it.
func (b *Builder) DeliverEncoded(ctx context.Context, message, metadata []byte) (Result, error) {
	msg, err := codec.DecodeMessage(message)
	if err != nil {
		return Result{State: hyperlane.DeliveryStateRejected}, err
	}
	md, err := codec.DecodeMetadata(metadata)
	if err != nil {
		return Result{MessageID: msg.ID(), State: hyperlane.DeliveryStateRejected}, err
	}
	return b.Deliver(ctx, msg, md)
}

func (b *Builder) clearStuck(id hyperlane.Bytes32) {
	b.mu.Lock()
	delete(b.stuck, id)
	b.mu.Unlock()
}

// StuckReports returns the outstanding reports, oldest first.
func (b *Builder) StuckReports() []StuckReport {
	b.mu.Lock()
	out := make([]StuckReport, 0, len(b.stuck))
	for _, r := range b.stuck {
		out = append(out, r)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// RetryStuck gives every stuck message one more full retry cycle. Messages
// that leave the stuck state drop their report.
func (b *Builder) RetryStuck(ctx context.Context) []Result {
	var out []Result
	for _, r := range b.StuckReports() {
		if ctx.Err() != nil {
			break
		}
		res, _ := b.Deliver(ctx, r.Message, r.Metadata)
		out = append(out, res)
	}
	return out
}
