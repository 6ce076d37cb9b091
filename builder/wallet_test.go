package builder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

func TestWallet_CompletePaysAndBalances(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	w := fundedWallet(t, l, 5_000, 50_000, 7_000)
	to := ledger.KeyAddr(hyperlane.Hash28{0x33})

	d := NewDraft().Pay(ledger.Output{Address: to, Value: ledger.Coin(20_000)})
	tx, err := w.Complete(ctx, d, l.Params())
	require.NoError(t, err)
	assert.Len(t, tx.Inputs, 1, "the largest record covers the payment")
	assert.Empty(t, tx.Collateral)
	assert.GreaterOrEqual(t, tx.Fee, l.Params().MinFee(tx))

	_, err = l.Submit(ctx, tx)
	require.NoError(t, err)

	balance, err := w.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(62_000-20_000)-tx.Fee, balance)
}

func TestWallet_CollateralForScripts(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	w := fundedWallet(t, l, 100_000, 100_000)

	d := NewDraft().Mint(asset, 1, nil)
	d.Pay(ledger.Output{Address: w.Address(), Value: ledger.Coin(2_000).WithAsset(asset, 1)})
	tx, err := w.Complete(ctx, d, l.Params())
	require.NoError(t, err)
	require.Len(t, tx.Collateral, 1)
	assert.NotEmpty(t, tx.Witnesses)
}

func TestWallet_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	w := fundedWallet(t, l, 1_500)

	d := NewDraft().Pay(ledger.Output{Address: ledger.KeyAddr(hyperlane.Hash28{1}), Value: ledger.Coin(1_000)})
	_, err := w.Complete(ctx, d, l.Params())
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	empty := NewWallet(testKey("empty"), l)
	_, err = empty.Complete(ctx, NewDraft(), l.Params())
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestWallet_LeavesTokensAlone(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	w := fundedWallet(t, l, 10_000)
	_, err := l.Genesis(ledger.Output{Address: w.Address(), Value: ledger.Coin(90_000).WithAsset(asset, 1)})
	require.NoError(t, err)

	recs, err := w.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(10_000), recs[0].Output.Value.Coin)

	balance, err := w.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), balance)
}
