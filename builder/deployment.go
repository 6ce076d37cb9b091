// Package builder is the off-chain half of delivery. It discovers the
// records a message needs by their unique-token identities, assembles and
// balances the transaction, submits it and retries on contention.
package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
	"github.com/compose-network/hyperlane-eutxo/registry"
	"github.com/compose-network/hyperlane-eutxo/replay"
)

var ErrAmbiguousIdentity = errors.New("identity held by more than one record")

// Indexer is the indexing provider. Results may be stale the moment they
// are returned.
type Indexer interface {
	FindByAsset(ctx context.Context, asset ledger.AssetClass) ([]ledger.Record, error)
	RecordsAt(ctx context.Context, addr ledger.Address) ([]ledger.Record, error)
	Record(ctx context.Context, ref ledger.OutRef) (ledger.Record, error)
}

// Submitter is the submission endpoint.
type Submitter interface {
	Submit(ctx context.Context, tx *ledger.Tx) (ledger.TxID, error)
}

// Deployment names one mailbox instance. Every other script of the
// instance is derived from the mailbox identity; the verifier is whatever
// the mailbox state currently trusts.
type Deployment struct {
	LocalDomain     hyperlane.Domain
	MailboxIdentity ledger.AssetClass
}

func (d Deployment) MarkerPolicy() *replay.Policy {
	return replay.NewPolicy(d.MailboxIdentity)
}

func (d Deployment) Mailbox() *mailbox.Validator {
	return mailbox.NewValidator(d.MailboxIdentity, d.MarkerPolicy().Hash())
}

func (d Deployment) Registry() *registry.Script {
	return registry.NewScript(d.MailboxIdentity)
}

// MerkleTreeHook is the accumulator identity validators sign checkpoints of
// this mailbox under.
func (d Deployment) MerkleTreeHook() hyperlane.Bytes32 {
	return hyperlane.ScriptAddress(d.Mailbox().Hash())
}

// Scripts are the deployment-wide scripts a ledger must know.
func (d Deployment) Scripts() []ledger.Script {
	return []ledger.Script{d.Mailbox(), d.MarkerPolicy(), d.Registry()}
}

// locate resolves asset to the single record holding it.
func locate(ctx context.Context, idx Indexer, what string, asset ledger.AssetClass) (ledger.Record, error) {
	recs, err := idx.FindByAsset(ctx, asset)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("discover %s: %w", what, err)
	}
	switch len(recs) {
	case 0:
		return ledger.Record{}, fmt.Errorf("%s %s: %w", what, asset, hyperlane.ErrRecordNotFound)
	case 1:
		return recs[0], nil
	default:
		return ledger.Record{}, fmt.Errorf("%s %s held by %d records: %w", what, asset, len(recs), ErrAmbiguousIdentity)
	}
}
