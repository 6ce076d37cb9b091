package devnet

import (
	"context"
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/identity"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/recipient"
	"github.com/compose-network/hyperlane-eutxo/registry"
)

type RecipientKind string

const (
	KindGeneric    RecipientKind = "generic"
	KindCollateral RecipientKind = "collateral"
	KindSynthetic  RecipientKind = "synthetic"
	KindDeferred   RecipientKind = "deferred"
)

const (
	nameState = "state"
	nameVault = "vault"
)

// Recipient is a deployed recipient and the locators of its records.
type Recipient struct {
	Kind      RecipientKind
	Hash      hyperlane.Hash28
	State     ledger.AssetClass
	Auxiliary []ledger.AssetClass
	// Synthetic is the asset a synthetic token receiver mints.
	Synthetic ledger.AssetClass
}

// Address is the 32-byte address messages to r carry.
func (r *Recipient) Address() hyperlane.Bytes32 {
	return hyperlane.ScriptAddress(r.Hash)
}

func (r *Recipient) Category() registry.Category {
	switch r.Kind {
	case KindCollateral, KindSynthetic:
		return registry.CategoryTokenReceiver
	case KindDeferred:
		return registry.CategoryDeferred
	default:
		return registry.CategoryGeneric
	}
}

func (r *Recipient) Registration() registry.Registration {
	return registry.Registration{
		Recipient:    r.Hash,
		StateLocator: r.State,
		Auxiliary:    r.Auxiliary,
		Category:     r.Category(),
	}
}

func namesOf(kind RecipientKind) []string {
	if kind == KindCollateral {
		return []string{nameState, nameVault}
	}
	return []string{nameState}
}

// bind instantiates the scripts of a recipient from its identity policy
// and registers them with the ledger.
func (n *Devnet) bind(m RecipientManifest, p *identity.OneShotPolicy) (*Recipient, error) {
	marker := n.Deployment.MarkerPolicy().Hash()
	state := p.Asset(nameState)
	r := &Recipient{Kind: m.Kind, State: state}
	var scripts []ledger.Script

	switch m.Kind {
	case KindGeneric:
		g := recipient.NewGeneric(state, marker)
		r.Hash = g.Hash()
		scripts = append(scripts, g)
	case KindCollateral:
		t := recipient.NewCollateralReceiver(state, marker)
		r.Hash = t.Hash()
		r.Auxiliary = []ledger.AssetClass{p.Asset(nameVault)}
		scripts = append(scripts, t, recipient.NewVault(state))
	case KindSynthetic:
		t := recipient.NewSyntheticReceiver(state, marker, m.Asset)
		r.Hash = t.Hash()
		r.Synthetic = t.Synthetic
		scripts = append(scripts, t, recipient.NewSyntheticPolicy(state, m.Asset))
	case KindDeferred:
		d := recipient.NewDeferred(state, marker)
		r.Hash = d.Hash()
		scripts = append(scripts, d)
	default:
		return nil, fmt.Errorf("unknown recipient kind %q", m.Kind)
	}

	n.Ledger.RegisterScript(p)
	for _, s := range scripts {
		n.Ledger.RegisterScript(s)
	}
	return r, nil
}

// deploy mints the identities of a new recipient, creates its records and
// registers it.
func (n *Devnet) deploy(ctx context.Context, m RecipientManifest, records func(*Recipient) ([]ledger.Output, error)) (*Recipient, error) {
	var r *Recipient
	p, err := n.mintIdentities(ctx, namesOf(m.Kind), func(p *identity.OneShotPolicy) ([]ledger.Output, error) {
		var err error
		if r, err = n.bind(m, p); err != nil {
			return nil, err
		}
		return records(r)
	})
	if err != nil {
		return nil, err
	}
	if _, err := n.Builder.Register(ctx, r.Registration()); err != nil {
		return nil, fmt.Errorf("register %s recipient: %w", m.Kind, err)
	}
	m.Seed = EncodeOutRef(p.Seed)
	n.Manifest.Recipients = append(n.Manifest.Recipients, m)
	n.logger.Info().
		Str("kind", string(m.Kind)).
		Str("recipient", r.Address().String()).
		Msg("Recipient deployed")
	return r, nil
}

func (n *Devnet) stateRecord(r *Recipient, datum []byte) ledger.Output {
	return ledger.Output{
		Address: ledger.ScriptAddr(r.Hash),
		Value:   n.deposit().WithAsset(r.State, 1),
		Datum:   datum,
	}
}

func (n *Devnet) DeployGeneric(ctx context.Context) (*Recipient, error) {
	return n.deploy(ctx, RecipientManifest{Kind: KindGeneric}, func(r *Recipient) ([]ledger.Output, error) {
		state := recipient.GenericState{Owner: n.Wallet.KeyHash()}
		return []ledger.Output{n.stateRecord(r, state.Encode())}, nil
	})
}

// DeployCollateral deploys a token receiver releasing coin from a vault
// seeded with liquidity.
func (n *Devnet) DeployCollateral(ctx context.Context, routers []recipient.RemoteRouter, liquidity uint64) (*Recipient, error) {
	return n.deploy(ctx, RecipientManifest{Kind: KindCollateral}, func(r *Recipient) ([]ledger.Output, error) {
		state := recipient.RouterState{Owner: n.Wallet.KeyHash(), Routers: routers}
		vault := recipient.NewVault(r.State)
		return []ledger.Output{
			n.stateRecord(r, state.Encode()),
			{
				Address: vault.Address(),
				Value:   ledger.Coin(liquidity).WithAsset(r.Auxiliary[0], 1),
			},
		}, nil
	})
}

// DeploySynthetic deploys a token receiver minting the synthetic asset
// named name.
func (n *Devnet) DeploySynthetic(ctx context.Context, routers []recipient.RemoteRouter, name string) (*Recipient, error) {
	return n.deploy(ctx, RecipientManifest{Kind: KindSynthetic, Asset: name}, func(r *Recipient) ([]ledger.Output, error) {
		state := recipient.RouterState{Owner: n.Wallet.KeyHash(), Routers: routers, Asset: r.Synthetic}
		return []ledger.Output{n.stateRecord(r, state.Encode())}, nil
	})
}

func (n *Devnet) DeployDeferred(ctx context.Context) (*Recipient, error) {
	return n.deploy(ctx, RecipientManifest{Kind: KindDeferred}, func(r *Recipient) ([]ledger.Output, error) {
		state := recipient.DeferredState{Owner: n.Wallet.KeyHash()}
		return []ledger.Output{n.stateRecord(r, state.Encode())}, nil
	})
}
