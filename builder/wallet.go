package builder

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

var (
	ErrInsufficientFunds = errors.New("wallet cannot cover the transaction")
	ErrFeeNotConverged   = errors.New("fee did not converge")
)

const maxFeeRounds = 8

// Wallet pays fees, provides collateral and signs. It only ever spends
// coin-only records at its own key address, so tokens it holds (replay
// markers among them) are left alone.
type Wallet struct {
	key     ed25519.PrivateKey
	addr    ledger.Address
	indexer Indexer
}

func NewWallet(key ed25519.PrivateKey, indexer Indexer) *Wallet {
	pub := key.Public().(ed25519.PublicKey)
	return &Wallet{key: key, addr: ledger.KeyAddr(ledger.KeyHash(pub)), indexer: indexer}
}

func (w *Wallet) Address() ledger.Address { return w.addr }

func (w *Wallet) KeyHash() hyperlane.Hash28 { return w.addr.Hash }

// Sender is the 32-byte address of the wallet in message sender fields.
func (w *Wallet) Sender() hyperlane.Bytes32 { return w.addr.Bytes32() }

// Records returns the coin-only records the wallet may spend, largest first.
func (w *Wallet) Records(ctx context.Context) ([]ledger.Record, error) {
	return w.spendable(ctx, NewDraft())
}

// Balance is the coin the wallet can spend on fees.
func (w *Wallet) Balance(ctx context.Context) (uint64, error) {
	utxos, err := w.Records(ctx)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, u := range utxos {
		total += u.Output.Value.Coin
	}
	return total, nil
}

func (w *Wallet) spendable(ctx context.Context, d *Draft) ([]ledger.Record, error) {
	recs, err := w.indexer.RecordsAt(ctx, w.addr)
	if err != nil {
		return nil, fmt.Errorf("wallet records: %w", err)
	}
	out := recs[:0]
	for _, r := range recs {
		if r.Output.Value.OnlyCoin() && !d.Spends(r.Ref) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Output.Value.Coin != out[j].Output.Value.Coin {
			return out[i].Output.Value.Coin > out[j].Output.Value.Coin
		}
		return out[i].Ref.String() < out[j].Ref.String()
	})
	return out, nil
}

// Complete balances d and signs it. The fee is raised until it covers the
// minimum for the final signed size.
func (w *Wallet) Complete(ctx context.Context, d *Draft, params ledger.Params) (*ledger.Tx, error) {
	utxos, err := w.spendable(ctx, d)
	if err != nil {
		return nil, err
	}
	var fee uint64
	for round := 0; round < maxFeeRounds; round++ {
		tx, err := w.assemble(d, utxos, fee, params)
		if err != nil {
			return nil, err
		}
		minFee := params.MinFee(tx)
		if tx.Fee >= minFee {
			return tx, nil
		}
		fee = minFee
	}
	return nil, ErrFeeNotConverged
}

func (w *Wallet) assemble(d *Draft, utxos []ledger.Record, fee uint64, params ledger.Params) (*ledger.Tx, error) {
	tx := d.clone()
	supply := d.supply()
	demand := d.demand().Add(ledger.Coin(fee))

	// A wallet input is always added so the transaction has a fee payer.
	picked := 0
	for _, u := range utxos {
		if picked > 0 && supply.Coin >= demand.Coin {
			break
		}
		tx.Inputs = append(tx.Inputs, ledger.Input{Ref: u.Ref})
		supply = supply.Add(u.Output.Value)
		picked++
	}
	if picked == 0 {
		return nil, fmt.Errorf("no spendable records at %s: %w", w.addr, ErrInsufficientFunds)
	}
	change, err := supply.Sub(demand)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}
	if change.Coin > 0 || !change.OnlyCoin() {
		tx.Outputs = append(tx.Outputs, ledger.Output{Address: w.addr, Value: change})
	}

	if d.RunsScripts() {
		need := params.MinCollateral(fee)
		var found bool
		for _, u := range utxos {
			if u.Output.Value.Coin >= need {
				tx.Collateral = []ledger.OutRef{u.Ref}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no collateral of %d: %w", need, ErrInsufficientFunds)
		}
	}

	tx.Fee = fee
	tx.Sign(w.key)
	return &tx, nil
}
