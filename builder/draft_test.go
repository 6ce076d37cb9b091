package builder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
)

var (
	scriptRec = ledger.Record{
		Ref:    ledger.OutRef{TxID: ledger.TxID{1}},
		Output: ledger.Output{Address: ledger.ScriptAddr(hyperlane.Hash28{1}), Value: ledger.Coin(10)},
	}
	keyRec = ledger.Record{
		Ref:    ledger.OutRef{TxID: ledger.TxID{2}},
		Output: ledger.Output{Address: ledger.KeyAddr(hyperlane.Hash28{2}), Value: ledger.Coin(20)},
	}
	asset = ledger.AssetClass{Policy: hyperlane.Hash28{9}, Name: "x"}
)

func TestDraft_SpendDeduplicates(t *testing.T) {
	d := NewDraft()
	d.Spend(keyRec, nil).Spend(keyRec, []byte{1})
	assert.Len(t, d.tx.Inputs, 1)
	assert.True(t, d.Spends(keyRec.Ref))
	assert.False(t, d.RunsScripts())
	assert.Equal(t, uint64(20), d.supply().Coin)

	d.Spend(scriptRec, []byte{2})
	assert.True(t, d.RunsScripts())
	assert.Equal(t, uint64(30), d.supply().Coin)
}

func TestDraft_ReferenceDeduplicates(t *testing.T) {
	d := NewDraft()
	d.Reference(scriptRec).Reference(scriptRec)
	assert.Equal(t, []ledger.OutRef{scriptRec.Ref}, d.tx.ReferenceInputs)
	assert.False(t, d.Spends(scriptRec.Ref))
}

func TestDraft_MintAndBurnBalance(t *testing.T) {
	d := NewDraft()
	d.Mint(asset, 3, nil)
	d.Mint(ledger.AssetClass{Policy: asset.Policy, Name: "y"}, -2, nil)
	assert.True(t, d.RunsScripts())
	assert.Equal(t, uint64(3), d.supply().Quantity(asset))
	assert.Equal(t, uint64(2), d.demand().Quantity(ledger.AssetClass{Policy: asset.Policy, Name: "y"}))
}

func TestDraft_MintRedeemerPerPolicy(t *testing.T) {
	d := NewDraft()
	d.Mint(asset, 1, []byte{1})
	d.Mint(ledger.AssetClass{Policy: asset.Policy, Name: "y"}, 1, []byte{2})
	d.Mint(ledger.AssetClass{Policy: asset.Policy, Name: "z"}, 1, nil)
	require.Len(t, d.tx.MintRedeemers, 1)
	assert.Equal(t, []byte{2}, d.tx.MintRedeemers[0].Redeemer)
}

func TestDraft_PayClones(t *testing.T) {
	out := ledger.Output{Address: keyRec.Output.Address, Value: ledger.Coin(5).WithAsset(asset, 1), Datum: []byte{1}}
	d := NewDraft().Pay(out)
	out.Datum[0] = 9
	assert.Equal(t, []byte{1}, d.tx.Outputs[0].Datum)

	tx := d.clone()
	tx.Outputs[0].Datum[0] = 7
	assert.Equal(t, []byte{1}, d.tx.Outputs[0].Datum)
}

func TestAccessVariants(t *testing.T) {
	msg := testMessage(0)
	md := codec.Metadata{LeafIndex: 4}
	p := mailbox.NewProcess(msg, &md)

	d := NewDraft()
	assert.Nil(t, SpendMailbox{}.AttachMailbox(d, scriptRec, p))
	assert.True(t, d.Spends(scriptRec.Ref))
	require.Len(t, d.tx.Outputs, 1)
	assert.Equal(t, scriptRec.Output.Value, d.tx.Outputs[0].Value)

	d = NewDraft()
	assert.Equal(t, p.Encode(), ReferenceMailbox{}.AttachMailbox(d, scriptRec, p))
	assert.False(t, d.Spends(scriptRec.Ref))
	assert.Empty(t, d.tx.Outputs)

	d = NewDraft()
	assert.Nil(t, SpendVerifier{}.AttachVerifier(d, scriptRec, msg, md))
	assert.True(t, d.Spends(scriptRec.Ref))

	d = NewDraft()
	got := ReferenceVerifier{}.AttachVerifier(d, scriptRec, msg, md)
	require.NotNil(t, got)
	assert.Equal(t, md, *got)
	assert.Equal(t, []ledger.OutRef{scriptRec.Ref}, d.tx.ReferenceInputs)
}

func TestAccessFor(t *testing.T) {
	m, err := MailboxAccessFor("")
	require.NoError(t, err)
	assert.Equal(t, VariantSpend, m.String())
	m, err = MailboxAccessFor(VariantReference)
	require.NoError(t, err)
	assert.Equal(t, VariantReference, m.String())
	_, err = MailboxAccessFor("borrow")
	assert.Error(t, err)

	v, err := VerifierAccessFor(VariantReference)
	require.NoError(t, err)
	assert.Equal(t, VariantReference, v.String())
	_, err = VerifierAccessFor("borrow")
	assert.Error(t, err)
}

func TestLocate(t *testing.T) {
	ctx := context.Background()
	held := scriptRec
	held.Output.Value = held.Output.Value.WithAsset(asset, 1)

	_, err := locate(ctx, staticIndexer{}, "mailbox", asset)
	assert.ErrorIs(t, err, hyperlane.ErrRecordNotFound)

	rec, err := locate(ctx, staticIndexer{records: []ledger.Record{held, keyRec}}, "mailbox", asset)
	require.NoError(t, err)
	assert.Equal(t, held.Ref, rec.Ref)

	forged := keyRec
	forged.Output.Value = forged.Output.Value.WithAsset(asset, 1)
	_, err = locate(ctx, staticIndexer{records: []ledger.Record{held, forged}}, "mailbox", asset)
	assert.ErrorIs(t, err, ErrAmbiguousIdentity)
}

func TestDeployment_DerivedScripts(t *testing.T) {
	a := Deployment{LocalDomain: 2003, MailboxIdentity: asset}
	b := Deployment{LocalDomain: 2003, MailboxIdentity: ledger.AssetClass{Policy: asset.Policy, Name: "other"}}

	assert.NotEqual(t, a.Mailbox().Hash(), b.Mailbox().Hash())
	assert.NotEqual(t, a.MarkerPolicy().Hash(), b.MarkerPolicy().Hash())
	assert.NotEqual(t, a.Registry().Hash(), b.Registry().Hash())
	assert.Equal(t, hyperlane.ScriptAddress(a.Mailbox().Hash()), a.MerkleTreeHook())
	assert.Len(t, a.Scripts(), 3)
}
