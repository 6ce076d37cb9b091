package devnet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ism"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
	"github.com/compose-network/hyperlane-eutxo/multisig"
)

func TestDispatch_NonceAndAccumulator(t *testing.T) {
	ctx := context.Background()
	n, err := New(ctx, DefaultOptions(originDomain), testLogger())
	require.NoError(t, err)

	to := hyperlane.ScriptAddress(hyperlane.Hash28{0x01})
	for i := uint32(0); i < 3; i++ {
		out, err := n.Dispatch(ctx, destinationDomain, to, []byte("ping"))
		require.NoError(t, err)
		assert.Equal(t, i, out.Message.Nonce)
		assert.Equal(t, i, out.LeafIndex)
		assert.Equal(t, originDomain, out.Message.Origin)
		assert.Equal(t, n.Wallet.Sender(), out.Message.Sender)
	}
	datum := n.mailboxDatum(t)
	assert.Equal(t, uint32(3), datum.Nonce)
	assert.Equal(t, uint32(3), datum.Tree.Count)
	assert.Equal(t, n.prover.Root(), datum.Tree.Root())
}

func TestDispatch_BodyTooLarge(t *testing.T) {
	ctx := context.Background()
	n, err := New(ctx, DefaultOptions(originDomain), testLogger())
	require.NoError(t, err)

	_, err = n.Dispatch(ctx, destinationDomain, hyperlane.Bytes32{}, make([]byte, mailbox.MaxBodyLen+1))
	assert.ErrorIs(t, err, hyperlane.ErrMalformedMessage)
	assert.Equal(t, uint32(0), n.mailboxDatum(t).Nonce)
}

func TestSetValidators_TakesEffectOnNextDelivery(t *testing.T) {
	ctx := context.Background()
	p := newPair(t)
	r, err := p.dest.DeployGeneric(ctx)
	require.NoError(t, err)

	msg, md := p.sendSigned(t, r.Address(), []byte("hello"), p.signers[2])
	_, err = p.dest.Builder.Deliver(ctx, msg, md)
	require.ErrorIs(t, err, hyperlane.ErrThresholdNotMet)

	_, err = p.dest.Builder.SetValidators(ctx, originDomain, SetOf(p.signers[2:], 1))
	require.NoError(t, err)
	datum, err := ism.DecodeDatum(p.dest.only(t, p.dest.Verifier).Output.Datum)
	require.NoError(t, err)
	set, ok := datum.ValidatorSet(originDomain)
	require.True(t, ok)
	assert.Equal(t, uint8(1), set.Threshold)

	res, err := p.dest.Builder.Deliver(ctx, msg, md)
	require.NoError(t, err)
	assert.Equal(t, hyperlane.DeliveryStateDelivered, res.State)
}

func TestTransferOwnership(t *testing.T) {
	ctx := context.Background()
	n, err := New(ctx, DefaultOptions(destinationDomain), testLogger())
	require.NoError(t, err)

	_, err = n.Builder.SetDefaultIsm(ctx, n.Verifier)
	require.NoError(t, err)

	newOwner := hyperlane.Hash28{0x55}
	_, err = n.Builder.TransferOwnership(ctx, newOwner)
	require.NoError(t, err)
	assert.Equal(t, newOwner, n.mailboxDatum(t).Owner)

	_, err = n.Builder.SetDefaultIsm(ctx, n.Verifier)
	var scriptErr *ledger.ScriptError
	assert.ErrorAs(t, err, &scriptErr)

	// Dispatch is open to any sender.
	_, err = n.Dispatch(ctx, originDomain, hyperlane.Bytes32{}, []byte("still open"))
	assert.NoError(t, err)
}

func TestRestore_FromManifest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	signers, err := NewSigners(2)
	require.NoError(t, err)
	origin, err := New(ctx, DefaultOptions(originDomain), testLogger())
	require.NoError(t, err)

	store, err := ledger.OpenBoltStore(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	opts := DefaultOptions(destinationDomain)
	opts.Store = store
	opts.Validators = map[hyperlane.Domain]multisig.ValidatorSet{originDomain: SetOf(signers, 2)}
	first, err := New(ctx, opts, testLogger())
	require.NoError(t, err)
	r, err := first.DeployGeneric(ctx)
	require.NoError(t, err)
	manifestPath := filepath.Join(dir, "deployment.yaml")
	require.NoError(t, first.Manifest.Save(manifestPath))
	require.NoError(t, store.Close())

	store, err = ledger.OpenBoltStore(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	defer store.Close()
	m, err := LoadManifest(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, uint32(destinationDomain), m.Domain)
	require.Len(t, m.Recipients, 1)

	ropts := DefaultOptions(0)
	ropts.Store = store
	ropts.Key = first.Key
	restored, recipients, err := Restore(ropts, m, testLogger())
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, first.Deployment, restored.Deployment)
	assert.Equal(t, r.Hash, recipients[0].Hash)
	assert.Equal(t, destinationDomain, restored.Domain())

	out, err := origin.Dispatch(ctx, destinationDomain, r.Address(), []byte("after restart"))
	require.NoError(t, err)
	md, err := origin.Metadata(ctx, out.LeafIndex, AsSigners(signers...))
	require.NoError(t, err)
	res, err := restored.Builder.Deliver(ctx, out.Message, md)
	require.NoError(t, err)
	assert.Equal(t, hyperlane.DeliveryStateDelivered, res.State)
	assert.Equal(t, uint64(1), restored.genericState(t, recipients[0]).MessagesReceived)
}

func TestOutRefEncoding(t *testing.T) {
	ref := ledger.OutRef{TxID: ledger.TxID{1, 2, 3}, Index: 7}
	got, err := DecodeOutRef(EncodeOutRef(ref))
	require.NoError(t, err)
	assert.Equal(t, ref, got)

	_, err = DecodeOutRef("zz")
	assert.Error(t, err)
}
