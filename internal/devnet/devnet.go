// Package devnet bootstraps a complete mailbox deployment on a ledger. It
// backs the end-to-end tests and the relayer's local mode.
package devnet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/builder"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/identity"
	"github.com/compose-network/hyperlane-eutxo/ism"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
	"github.com/compose-network/hyperlane-eutxo/merkle"
	"github.com/compose-network/hyperlane-eutxo/multisig"
)

const (
	nameMailbox  = "mailbox"
	nameVerifier = "ism"
)

var ErrNoSeed = errors.New("wallet has no record to seed identities")

type Options struct {
	Domain hyperlane.Domain
	// Store defaults to an in-memory store.
	Store  ledger.Store
	Params ledger.Params
	// Key defaults to a fresh key.
	Key ed25519.PrivateKey
	// Funds are split over FundRecords genesis records at the wallet.
	Funds       uint64
	FundRecords int
	Validators  map[hyperlane.Domain]multisig.ValidatorSet
	Builder     builder.Options
}

func DefaultOptions(domain hyperlane.Domain) Options {
	return Options{
		Domain:      domain,
		Params:      ledger.DefaultParams(),
		Funds:       1_000_000_000_000,
		FundRecords: 16,
		Builder:     builder.DefaultOptions(),
	}
}

// Devnet is one chain with one mailbox deployment and a funded operator.
type Devnet struct {
	Ledger     *ledger.Ledger
	Key        ed25519.PrivateKey
	Wallet     *builder.Wallet
	Builder    *builder.Builder
	Deployment builder.Deployment
	Verifier   ledger.AssetClass
	Manifest   Manifest

	// prover mirrors the mailbox accumulator for metadata construction.
	prover *merkle.Prover
	opts   Options
	logger zerolog.Logger
}

// New funds a wallet and deploys the mailbox and verifier.
func New(ctx context.Context, opts Options, logger zerolog.Logger) (*Devnet, error) {
	n, err := open(opts, logger)
	if err != nil {
		return nil, err
	}
	if err := n.fund(); err != nil {
		return nil, err
	}
	if err := n.deployCore(ctx); err != nil {
		return nil, err
	}
	if err := n.start(); err != nil {
		return nil, err
	}
	return n, nil
}

func open(opts Options, logger zerolog.Logger) (*Devnet, error) {
	if opts.Store == nil {
		s, err := ledger.NewMemStore()
		if err != nil {
			return nil, err
		}
		opts.Store = s
	}
	if opts.Key == nil {
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		opts.Key = key
	}
	if opts.FundRecords <= 0 {
		opts.FundRecords = 1
	}
	logger = logger.With().Str("component", "devnet").Uint32("domain", uint32(opts.Domain)).Logger()
	l := ledger.New(opts.Store, opts.Params, logger)
	return &Devnet{
		Ledger:   l,
		Key:      opts.Key,
		Wallet:   builder.NewWallet(opts.Key, l),
		Manifest: Manifest{Domain: uint32(opts.Domain)},
		prover:   merkle.NewProver(),
		opts:     opts,
		logger:   logger,
	}, nil
}

func (n *Devnet) Domain() hyperlane.Domain { return n.opts.Domain }

func (n *Devnet) fund() error {
	outs := make([]ledger.Output, n.opts.FundRecords)
	each := n.opts.Funds / uint64(n.opts.FundRecords)
	for i := range outs {
		outs[i] = ledger.Output{Address: n.Wallet.Address(), Value: ledger.Coin(each)}
	}
	_, err := n.Ledger.Genesis(outs...)
	return err
}

func (n *Devnet) deployCore(ctx context.Context) error {
	owner := n.Wallet.KeyHash()
	var sets []ism.DomainSet
	for origin, set := range n.opts.Validators {
		if err := set.Validate(); err != nil {
			return fmt.Errorf("origin %d: %w", origin, err)
		}
		sets = append(sets, ism.DomainSet{Origin: uint32(origin), Validators: set.Validators, Threshold: set.Threshold})
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Origin < sets[j].Origin })

	policy, err := n.mintIdentities(ctx, []string{nameMailbox, nameVerifier}, func(p *identity.OneShotPolicy) ([]ledger.Output, error) {
		n.bindCore(p)
		mbx := mailbox.Datum{
			LocalDomain: uint32(n.opts.Domain),
			DefaultIsm:  n.Verifier,
			Owner:       owner,
		}
		return []ledger.Output{
			{
				Address: n.Deployment.Mailbox().Address(),
				Value:   n.deposit().WithAsset(n.Deployment.MailboxIdentity, 1),
				Datum:   mbx.Encode(),
			},
			{
				Address: ism.NewValidator(n.Verifier).Address(),
				Value:   n.deposit().WithAsset(n.Verifier, 1),
				Datum:   ism.Datum{Owner: owner, Sets: sets}.Encode(),
			},
		}, nil
	})
	if err != nil {
		return err
	}
	n.Manifest.Core = EncodeOutRef(policy.Seed)
	n.logger.Info().
		Str("mailbox", n.Deployment.MailboxIdentity.String()).
		Str("verifier", n.Verifier.String()).
		Msg("Mailbox deployed")
	return nil
}

// bindCore derives the deployment from the core identity policy and makes
// its scripts known to the ledger.
func (n *Devnet) bindCore(p *identity.OneShotPolicy) {
	n.Deployment = builder.Deployment{LocalDomain: n.opts.Domain, MailboxIdentity: p.Asset(nameMailbox)}
	n.Verifier = p.Asset(nameVerifier)
	n.Ledger.RegisterScript(p)
	for _, s := range n.Deployment.Scripts() {
		n.Ledger.RegisterScript(s)
	}
	n.Ledger.RegisterScript(ism.NewValidator(n.Verifier))
}

func (n *Devnet) deposit() ledger.Value {
	return ledger.Coin(n.opts.Builder.Deposit)
}

// mintIdentities consumes a wallet record as the seed of a fresh one-shot
// policy and mints names under it into the outputs build returns.
func (n *Devnet) mintIdentities(ctx context.Context, names []string, build func(*identity.OneShotPolicy) ([]ledger.Output, error)) (*identity.OneShotPolicy, error) {
	recs, err := n.Wallet.Records(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNoSeed
	}
	seed := recs[len(recs)-1]
	p := identity.NewOneShotPolicy(seed.Ref, names...)
	n.Ledger.RegisterScript(p)
	outs, err := build(p)
	if err != nil {
		return nil, err
	}

	d := builder.NewDraft()
	d.Spend(seed, nil)
	for _, name := range p.Names {
		d.Mint(p.Asset(name), 1, nil)
	}
	for _, o := range outs {
		d.Pay(o)
	}
	tx, err := n.Wallet.Complete(ctx, d, n.opts.Params)
	if err != nil {
		return nil, err
	}
	if _, err := n.Ledger.Submit(ctx, tx); err != nil {
		return nil, fmt.Errorf("mint identities %v: %w", names, err)
	}
	return p, nil
}

func (n *Devnet) start() error {
	b, err := builder.New(n.Deployment, n.Ledger, n.Ledger, n.Wallet, n.opts.Params, n.opts.Builder, n.logger)
	if err != nil {
		return err
	}
	n.Builder = b
	return nil
}

// Dispatch sends a message through the builder and mirrors it into the
// local accumulator.
func (n *Devnet) Dispatch(ctx context.Context, destination hyperlane.Domain, to hyperlane.Bytes32, body []byte) (builder.Dispatched, error) {
	out, err := n.Builder.Dispatch(ctx, destination, to, body)
	if err != nil {
		return builder.Dispatched{}, err
	}
	idx, err := n.prover.Insert(out.Message.ID())
	if err != nil {
		return builder.Dispatched{}, err
	}
	if idx != out.LeafIndex {
		return builder.Dispatched{}, fmt.Errorf("accumulator mirror at %d, mailbox at %d", idx, out.LeafIndex)
	}
	return out, nil
}

// Metadata proves the leaf at index against the current root, signed by
// signers.
func (n *Devnet) Metadata(ctx context.Context, index uint32, signers []multisig.CheckpointSigner) (codec.Metadata, error) {
	return multisig.BuildMetadata(ctx, n.opts.Domain, n.Deployment.MerkleTreeHook(), n.prover, index, signers)
}
