package devnet

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/builder"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
	"github.com/compose-network/hyperlane-eutxo/multisig"
	"github.com/compose-network/hyperlane-eutxo/recipient"
)

const (
	originDomain      hyperlane.Domain = 43113
	destinationDomain hyperlane.Domain = 2003
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func fastRetry(attempts uint64) builder.RetryPolicy {
	return builder.RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

// pair is an origin chain dispatching to a destination chain whose verifier
// trusts a 2-of-3 validator set of the origin.
type pair struct {
	origin  *Devnet
	dest    *Devnet
	signers []*multisig.LocalSigner
}

func newPair(t *testing.T, configure ...func(*Options)) *pair {
	t.Helper()
	p, err := buildPair(context.Background(), 2, configure...)
	require.NoError(t, err)
	return p
}

func buildPair(ctx context.Context, threshold uint8, configure ...func(*Options)) (*pair, error) {
	signers, err := NewSigners(3)
	if err != nil {
		return nil, err
	}
	origin, err := New(ctx, DefaultOptions(originDomain), testLogger())
	if err != nil {
		return nil, err
	}
	opts := DefaultOptions(destinationDomain)
	opts.Validators = map[hyperlane.Domain]multisig.ValidatorSet{originDomain: SetOf(signers, threshold)}
	opts.Builder.Retry = fastRetry(20)
	for _, c := range configure {
		c(&opts)
	}
	dest, err := New(ctx, opts, testLogger())
	if err != nil {
		return nil, err
	}
	return &pair{origin: origin, dest: dest, signers: signers}, nil
}

// send dispatches body to to on the destination and proves it with the
// first two validators.
func (p *pair) send(t *testing.T, to hyperlane.Bytes32, body []byte) (codec.Message, codec.Metadata) {
	t.Helper()
	return p.sendSigned(t, to, body, p.signers[0], p.signers[1])
}

func (p *pair) sendSigned(t *testing.T, to hyperlane.Bytes32, body []byte, signers ...*multisig.LocalSigner) (codec.Message, codec.Metadata) {
	t.Helper()
	ctx := context.Background()
	out, err := p.origin.Dispatch(ctx, destinationDomain, to, body)
	require.NoError(t, err)
	md, err := p.origin.Metadata(ctx, out.LeafIndex, AsSigners(signers...))
	require.NoError(t, err)
	return out.Message, md
}

func (n *Devnet) only(t *testing.T, asset ledger.AssetClass) ledger.Record {
	t.Helper()
	recs, err := n.Ledger.FindByAsset(context.Background(), asset)
	require.NoError(t, err)
	require.Len(t, recs, 1, "records holding %s", asset)
	return recs[0]
}

func (n *Devnet) mailboxDatum(t *testing.T) mailbox.Datum {
	t.Helper()
	d, err := mailbox.DecodeDatum(n.only(t, n.Deployment.MailboxIdentity).Output.Datum)
	require.NoError(t, err)
	return d
}

func (n *Devnet) genericState(t *testing.T, r *Recipient) recipient.GenericState {
	t.Helper()
	s, err := recipient.DecodeGenericState(n.only(t, r.State).Output.Datum)
	require.NoError(t, err)
	return s
}

func (n *Devnet) processed(t *testing.T, id hyperlane.Bytes32) bool {
	t.Helper()
	ok, err := n.Builder.Guard().Processed(context.Background(), id)
	require.NoError(t, err)
	return ok
}

// coinAt sums the coin held at addr.
func (n *Devnet) coinAt(t *testing.T, addr ledger.Address) uint64 {
	t.Helper()
	recs, err := n.Ledger.RecordsAt(context.Background(), addr)
	require.NoError(t, err)
	var sum uint64
	for _, r := range recs {
		sum += r.Output.Value.Coin
	}
	return sum
}

func (n *Devnet) assetAt(t *testing.T, addr ledger.Address, asset ledger.AssetClass) uint64 {
	t.Helper()
	recs, err := n.Ledger.RecordsAt(context.Background(), addr)
	require.NoError(t, err)
	var sum uint64
	for _, r := range recs {
		sum += r.Output.Value.Quantity(asset)
	}
	return sum
}

// builderWith starts a second builder on n's deployment with other
// collaborators.
func (n *Devnet) builderWith(t *testing.T, idx builder.Indexer, sub builder.Submitter, retry builder.RetryPolicy) *builder.Builder {
	t.Helper()
	opts := n.opts.Builder
	opts.Retry = retry
	b, err := builder.New(n.Deployment, idx, sub, n.Wallet, n.opts.Params, opts, testLogger())
	require.NoError(t, err)
	return b
}

// contendedSubmitter reports every submission as having lost a race while
// failing is set.
type contendedSubmitter struct {
	next    builder.Submitter
	failing atomic.Bool
	calls   atomic.Int32
}

func (s *contendedSubmitter) Submit(ctx context.Context, tx *ledger.Tx) (ledger.TxID, error) {
	s.calls.Add(1)
	if s.failing.Load() {
		return ledger.TxID{}, fmt.Errorf("input %s: %w", tx.Inputs[0].Ref, hyperlane.ErrRecordAlreadyConsumed)
	}
	return s.next.Submit(ctx, tx)
}

// markerBlindIndexer never reports replay markers, like an indexer that
// lags behind the ledger.
type markerBlindIndexer struct {
	builder.Indexer
	marker hyperlane.Hash28
}

func (i markerBlindIndexer) FindByAsset(ctx context.Context, asset ledger.AssetClass) ([]ledger.Record, error) {
	if asset.Policy == i.marker {
		return nil, nil
	}
	return i.Indexer.FindByAsset(ctx, asset)
}
