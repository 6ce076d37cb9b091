package builder

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testParams() ledger.Params {
	return ledger.Params{MinFeeA: 0, MinFeeB: 1_000, CollateralPercent: 150}
}

func testKey(seed string) ed25519.PrivateKey {
	s := sha256.Sum256([]byte(seed))
	return ed25519.NewKeyFromSeed(s[:])
}

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	store, err := ledger.NewMemStore()
	require.NoError(t, err)
	return ledger.New(store, testParams(), testLogger())
}

// fundedWallet returns a wallet holding one record per amount.
func fundedWallet(t *testing.T, l *ledger.Ledger, amounts ...uint64) *Wallet {
	t.Helper()
	w := NewWallet(testKey(t.Name()), l)
	outs := make([]ledger.Output, len(amounts))
	for i, a := range amounts {
		outs[i] = ledger.Output{Address: w.Address(), Value: ledger.Coin(a)}
	}
	_, err := l.Genesis(outs...)
	require.NoError(t, err)
	return w
}

func testMessage(nonce uint32) codec.Message {
	return codec.Message{
		Version:     hyperlane.MessageVersion,
		Nonce:       nonce,
		Origin:      43113,
		Destination: 2003,
		Body:        []byte("hello"),
	}
}

// scriptedDeliverer returns the queued outcomes in order and records the
// largest number of deliveries in flight.
type scriptedDeliverer struct {
	mu       sync.Mutex
	outcomes []outcome
	calls    int

	inFlight atomic.Int32
	peak     atomic.Int32
	hold     time.Duration
}

type outcome struct {
	state hyperlane.DeliveryState
	err   error
}

func (d *scriptedDeliverer) Deliver(ctx context.Context, msg codec.Message, _ codec.Metadata) (Result, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if d.hold > 0 {
		select {
		case <-time.After(d.hold):
		case <-ctx.Done():
			return Result{MessageID: msg.ID(), State: hyperlane.DeliveryStatePending}, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	o := outcome{state: hyperlane.DeliveryStateDelivered}
	if d.calls < len(d.outcomes) {
		o = d.outcomes[d.calls]
	}
	d.calls++
	return Result{MessageID: msg.ID(), State: o.state, Attempts: 1}, o.err
}

// staticIndexer serves a fixed record set.
type staticIndexer struct {
	records []ledger.Record
}

func (s staticIndexer) FindByAsset(_ context.Context, asset ledger.AssetClass) ([]ledger.Record, error) {
	var out []ledger.Record
	for _, r := range s.records {
		if r.Output.Value.Has(asset) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s staticIndexer) RecordsAt(_ context.Context, addr ledger.Address) ([]ledger.Record, error) {
	var out []ledger.Record
	for _, r := range s.records {
		if r.Output.Address == addr {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s staticIndexer) Record(_ context.Context, ref ledger.OutRef) (ledger.Record, error) {
	for _, r := range s.records {
		if r.Ref == ref {
			return r, nil
		}
	}
	return ledger.Record{}, hyperlane.ErrRecordNotFound
}
