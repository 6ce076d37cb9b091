package builder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/ism"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
	"github.com/compose-network/hyperlane-eutxo/multisig"
	"github.com/compose-network/hyperlane-eutxo/registry"
	"github.com/compose-network/hyperlane-eutxo/replay"
)

// RetryPolicy bounds the discover-build-submit loop.
type RetryPolicy struct {
	MaxAttempts     uint64        `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
	}
}

type Options struct {
	Mailbox  MailboxAccess
	Verifier VerifierAccess
	Retry    RetryPolicy
	// Deposit is the coin placed in outputs the builder creates from
	// nothing: markers, stored messages, registry entries and payouts of
	// synthetic assets.
	Deposit uint64
}

func DefaultOptions() Options {
	return Options{
		Mailbox:  SpendMailbox{},
		Verifier: SpendVerifier{},
		Retry:    DefaultRetryPolicy(),
		Deposit:  1_000_000,
	}
}

// Builder assembles and submits transactions for one deployment.
type Builder struct {
	dep       Deployment
	indexer   Indexer
	submitter Submitter
	wallet    *Wallet
	params    ledger.Params
	opts      Options

	guard    *replay.Guard
	registry *registry.Client
	// verifier memoises signer recovery across attempts; its sets are
	// refreshed from the discovered verifier state on every build.
	verifier *multisig.Verifier

	mu    sync.Mutex
	stuck map[hyperlane.Bytes32]StuckReport

	logger zerolog.Logger
}

func New(
	dep Deployment,
	indexer Indexer,
	submitter Submitter,
	wallet *Wallet,
	params ledger.Params,
	opts Options,
	logger zerolog.Logger,
) (*Builder, error) {
	if opts.Mailbox == nil {
		opts.Mailbox = SpendMailbox{}
	}
	if opts.Verifier == nil {
		opts.Verifier = SpendVerifier{}
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry.MaxAttempts = 1
	}
	logger = logger.With().Str("component", "builder").Uint32("domain", uint32(dep.LocalDomain)).Logger()
	verifier, err := multisig.NewVerifier(nil, logger)
	if err != nil {
		return nil, err
	}
	return &Builder{
		dep:       dep,
		indexer:   indexer,
		submitter: submitter,
		wallet:    wallet,
		params:    params,
		opts:      opts,
		guard:     replay.NewGuard(dep.MarkerPolicy().Hash(), indexer),
		registry:  registry.NewClient(dep.Registry().Hash(), indexer),
		verifier:  verifier,
		stuck:     make(map[hyperlane.Bytes32]StuckReport),
		logger:    logger,
	}, nil
}

func (b *Builder) Deployment() Deployment { return b.dep }

func (b *Builder) Wallet() *Wallet { return b.wallet }

// Guard reports on the replay markers of the deployment.
func (b *Builder) Guard() *replay.Guard { return b.guard }

// Build discovers every record msg needs and returns the signed delivery
// transaction. Nothing discovered is reused by a later call.
func (b *Builder) Build(ctx context.Context, msg codec.Message, md codec.Metadata) (*ledger.Tx, error) {
	if msg.Destination != b.dep.LocalDomain {
		return nil, fmt.Errorf("destination %d, local domain %d: %w", msg.Destination, b.dep.LocalDomain, hyperlane.ErrWrongDestination)
	}
	id := msg.ID()
	done, err := b.guard.Processed(ctx, id)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, fmt.Errorf("message %s: %w", id, hyperlane.ErrAlreadyProcessed)
	}

	recipientHash, ok := msg.Recipient.ScriptHash()
	if !ok {
		return nil, fmt.Errorf("recipient %s is not a script: %w", msg.Recipient, hyperlane.ErrRegistrationNotFound)
	}
	reg, _, err := b.registry.Lookup(ctx, recipientHash)
	if err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	mbxRec, err := locate(ctx, b.indexer, "mailbox", b.dep.MailboxIdentity)
	if err != nil {
		return nil, err
	}
	mbx, err := mailbox.DecodeDatum(mbxRec.Output.Datum)
	if err != nil {
		return nil, err
	}
	ismRec, err := locate(ctx, b.indexer, "verifier", mbx.DefaultIsm)
	if err != nil {
		return nil, err
	}
	if err := b.precheck(ismRec, msg, md); err != nil {
		return nil, err
	}

	d := NewDraft()
	procMD := b.opts.Verifier.AttachVerifier(d, ismRec, msg, md)
	markerRedeemer := b.opts.Mailbox.AttachMailbox(d, mbxRec, mailbox.NewProcess(msg, procMD))
	if err := b.attachRecipient(ctx, d, reg, msg); err != nil {
		return nil, err
	}
	marker := b.dep.MarkerPolicy().Marker(id)
	d.Mint(marker, 1, markerRedeemer)
	d.Pay(ledger.Output{
		Address: b.wallet.Address(),
		Value:   ledger.Coin(b.opts.Deposit).WithAsset(marker, 1),
	})
	return b.wallet.Complete(ctx, d, b.params)
}

// precheck verifies the proof off-chain against the discovered verifier
// state so that authenticity failures never reach the ledger.
func (b *Builder) precheck(ismRec ledger.Record, msg codec.Message, md codec.Metadata) error {
	datum, err := ism.DecodeDatum(ismRec.Output.Datum)
	if err != nil {
		return fmt.Errorf("%v: %w", err, hyperlane.ErrUntrustedVerifier)
	}
	set, ok := datum.ValidatorSet(msg.Origin)
	if !ok {
		return fmt.Errorf("no validator set for origin %d: %w", msg.Origin, hyperlane.ErrUntrustedVerifier)
	}
	if err := b.verifier.SetValidators(msg.Origin, set); err != nil {
		return fmt.Errorf("%v: %w", err, hyperlane.ErrUntrustedVerifier)
	}
	return b.verifier.Verify(msg, md)
}
