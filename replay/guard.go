package replay

import (
	"context"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
)

// AssetFinder resolves a unique-token identity to the records holding it.
type AssetFinder interface {
	FindByAsset(ctx context.Context, asset ledger.AssetClass) ([]ledger.Record, error)
}

// Guard answers whether a message was processed with one identity lookup.
type Guard struct {
	policy hyperlane.Hash28
	finder AssetFinder
}

func NewGuard(markerPolicy hyperlane.Hash28, finder AssetFinder) *Guard {
	return &Guard{policy: markerPolicy, finder: finder}
}

func (g *Guard) Processed(ctx context.Context, id hyperlane.Bytes32) (bool, error) {
	recs, err := g.finder.FindByAsset(ctx, mailbox.MarkerAsset(g.policy, id))
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// Marker returns the record holding the marker of id.
func (g *Guard) Marker(ctx context.Context, id hyperlane.Bytes32) (ledger.Record, bool, error) {
	recs, err := g.finder.FindByAsset(ctx, mailbox.MarkerAsset(g.policy, id))
	if err != nil || len(recs) == 0 {
		return ledger.Record{}, false, err
	}
	return recs[0], true, nil
}
