package ledger

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/compose-network/hyperlane-eutxo"
)

var (
	ErrNoInputs               = errors.New("transaction has no inputs")
	ErrDuplicateInput         = errors.New("duplicate input")
	ErrUnknownScript          = errors.New("unknown script")
	ErrInvalidWitness         = errors.New("invalid witness")
	ErrMissingSignature       = errors.New("missing signature")
	ErrValueNotConserved      = errors.New("value not conserved")
	ErrFeeTooLow              = errors.New("fee below minimum")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrInvalidMint            = errors.New("invalid mint")
	ErrDuplicateMint          = errors.New("unique asset already exists")
)

// Params are the protocol parameters enforced on every submission.
type Params struct {
	MinFeeA           uint64 `yaml:"min_fee_a"`
	MinFeeB           uint64 `yaml:"min_fee_b"`
	CollateralPercent uint64 `yaml:"collateral_percent"`
}

func DefaultParams() Params {
	return Params{MinFeeA: 44, MinFeeB: 155381, CollateralPercent: 150}
}

func (p Params) MinFee(tx *Tx) uint64 {
	return p.MinFeeA*uint64(len(tx.Bytes())) + p.MinFeeB
}

func (p Params) MinCollateral(fee uint64) uint64 {
	return (fee*p.CollateralPercent + 99) / 100
}

// Ledger validates and applies transactions one at a time. A transaction is
// valid only if every script it touches accepts it; a record can be consumed
// by at most one applied transaction.
type Ledger struct {
	mu     sync.Mutex
	store  Store
	params Params

	scriptsMu sync.RWMutex
	spenders  map[hyperlane.Hash28]SpendingValidator
	policies  map[hyperlane.Hash28]MintingPolicy

	logger zerolog.Logger
}

func New(store Store, params Params, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:    store,
		params:   params,
		spenders: make(map[hyperlane.Hash28]SpendingValidator),
		policies: make(map[hyperlane.Hash28]MintingPolicy),
		logger:   logger.With().Str("component", "ledger").Logger(),
	}
}

func (l *Ledger) Params() Params { return l.params }

// RegisterScript makes a script known to the ledger. A script may be both a
// spending validator and a minting policy.
func (l *Ledger) RegisterScript(s Script) {
	l.scriptsMu.Lock()
	defer l.scriptsMu.Unlock()
	if v, ok := s.(SpendingValidator); ok {
		l.spenders[s.Hash()] = v
	}
	if p, ok := s.(MintingPolicy); ok {
		l.policies[s.Hash()] = p
	}
}

func (l *Ledger) spender(h hyperlane.Hash28) (SpendingValidator, bool) {
	l.scriptsMu.RLock()
	defer l.scriptsMu.RUnlock()
	v, ok := l.spenders[h]
	return v, ok
}

func (l *Ledger) policy(h hyperlane.Hash28) (MintingPolicy, bool) {
	l.scriptsMu.RLock()
	defer l.scriptsMu.RUnlock()
	p, ok := l.policies[h]
	return p, ok
}

// Genesis creates records out of thin air under a fresh transaction id. It
// is used to fund wallets.
func (l *Ledger) Genesis(outputs ...Output) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := TxID(blake2b.Sum256([]byte("genesis/" + uuid.NewString())))
	records := make([]Record, len(outputs))
	for i, o := range outputs {
		records[i] = Record{Ref: OutRef{TxID: id, Index: uint32(i)}, Output: o.Clone()}
	}
	if err := l.store.Apply(nil, records); err != nil {
		return nil, err
	}
	return records, nil
}

// Record returns the unspent record at ref.
func (l *Ledger) Record(_ context.Context, ref OutRef) (Record, error) {
	o, ok, err := l.store.Get(ref)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, l.missing(ref)
	}
	return Record{Ref: ref, Output: o}, nil
}

// FindByAsset returns the live records holding asset.
func (l *Ledger) FindByAsset(_ context.Context, asset AssetClass) ([]Record, error) {
	return l.store.FindByAsset(asset)
}

// RecordsAt returns the live records guarded by addr.
func (l *Ledger) RecordsAt(_ context.Context, addr Address) ([]Record, error) {
	return l.store.FindByAddress(addr)
}

func (l *Ledger) missing(ref OutRef) error {
	spent, err := l.store.Spent(ref)
	if err != nil {
		return err
	}
	if spent {
		return fmt.Errorf("%s: %w", ref, hyperlane.ErrRecordAlreadyConsumed)
	}
	return fmt.Errorf("%s: %w", ref, hyperlane.ErrRecordNotFound)
}

func (l *Ledger) resolve(ref OutRef) (Record, error) {
	o, ok, err := l.store.Get(ref)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, l.missing(ref)
	}
	return Record{Ref: ref, Output: o}, nil
}

// Submit validates tx against the current record set and applies it.
func (l *Ledger) Submit(ctx context.Context, tx *Tx) (TxID, error) {
	if err := ctx.Err(); err != nil {
		return TxID{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	id := tx.ID()
	info, err := l.validate(id, tx)
	if err != nil {
		l.logger.Debug().Str("tx", id.String()).Err(err).Msg("Transaction rejected")
		return TxID{}, err
	}

	consumed := make([]OutRef, len(tx.Inputs))
	for i, in := range tx.Inputs {
		consumed[i] = in.Ref
	}
	produced := make([]Record, len(info.Outputs))
	for i, o := range info.Outputs {
		produced[i] = Record{Ref: OutRef{TxID: id, Index: uint32(i)}, Output: o.Clone()}
	}
	if err := l.store.Apply(consumed, produced); err != nil {
		return TxID{}, err
	}
	l.logger.Debug().
		Str("tx", id.String()).
		Int("inputs", len(consumed)).
		Int("outputs", len(produced)).
		Int("mints", len(tx.Mint)).
		Msg("Transaction applied")
	return id, nil
}

func (l *Ledger) validate(id TxID, tx *Tx) (*TxInfo, error) {
	if len(tx.Inputs) == 0 {
		return nil, ErrNoInputs
	}
	info := &TxInfo{
		ID:            id,
		Outputs:       tx.Outputs,
		Mint:          tx.Mint,
		MintRedeemers: tx.MintRedeemers,
		Fee:           tx.Fee,
	}

	seen := make(map[OutRef]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, dup := seen[in.Ref]; dup {
			return nil, fmt.Errorf("%s: %w", in.Ref, ErrDuplicateInput)
		}
		seen[in.Ref] = struct{}{}
		rec, err := l.resolve(in.Ref)
		if err != nil {
			return nil, err
		}
		info.Inputs = append(info.Inputs, ResolvedInput{Record: rec, Redeemer: in.Redeemer})
	}
	for _, ref := range tx.ReferenceInputs {
		rec, err := l.resolve(ref)
		if err != nil {
			return nil, fmt.Errorf("reference input: %w", err)
		}
		info.ReferenceInputs = append(info.ReferenceInputs, rec)
	}

	sigs, err := verifyWitnesses(id, tx.Witnesses)
	if err != nil {
		return nil, err
	}
	info.Signatories = sigs
	for _, in := range info.Inputs {
		if in.Output.Address.IsScript() {
			continue
		}
		if !info.SignedBy(in.Output.Address.Hash) {
			return nil, fmt.Errorf("input %s: %w", in.Ref, ErrMissingSignature)
		}
	}
	for _, k := range tx.RequiredSigners {
		if !info.SignedBy(k) {
			return nil, fmt.Errorf("required signer %s: %w", k, ErrMissingSignature)
		}
	}

	if err := checkBalance(info); err != nil {
		return nil, err
	}
	if minFee := l.params.MinFee(tx); tx.Fee < minFee {
		return nil, fmt.Errorf("fee %d < %d: %w", tx.Fee, minFee, ErrFeeTooLow)
	}
	if runsScripts(info) {
		if err := l.checkCollateral(tx, info); err != nil {
			return nil, err
		}
	}
	if err := l.runScripts(info); err != nil {
		return nil, err
	}
	if err := l.checkUniqueMints(info); err != nil {
		return nil, err
	}
	return info, nil
}

func verifyWitnesses(id TxID, ws []VKeyWitness) ([]hyperlane.Hash28, error) {
	out := make([]hyperlane.Hash28, 0, len(ws))
	for i, w := range ws {
		if len(w.PublicKey) != ed25519.PublicKeySize || !ed25519.Verify(w.PublicKey, id[:], w.Signature) {
			return nil, fmt.Errorf("witness %d: %w", i, ErrInvalidWitness)
		}
		out = append(out, KeyHash(w.PublicKey))
	}
	return out, nil
}

func checkBalance(info *TxInfo) error {
	in := Value{}
	for _, r := range info.Inputs {
		in = in.Add(r.Output.Value)
	}
	out := Coin(info.Fee)
	for _, o := range info.Outputs {
		out = out.Add(o.Value)
	}
	for _, m := range info.Mint {
		switch {
		case m.Amount > 0:
			in = in.WithAsset(m.Asset, uint64(m.Amount))
		case m.Amount < 0:
			out = out.WithAsset(m.Asset, uint64(-m.Amount))
		default:
			return fmt.Errorf("zero mint of %s: %w", m.Asset, ErrInvalidMint)
		}
	}
	if !in.Equal(out) {
		return fmt.Errorf("inputs %d coin / outputs %d coin: %w", in.Coin, out.Coin, ErrValueNotConserved)
	}
	return nil
}

func runsScripts(info *TxInfo) bool {
	if len(info.Mint) > 0 {
		return true
	}
	for _, in := range info.Inputs {
		if in.Output.Address.IsScript() {
			return true
		}
	}
	return false
}

func (l *Ledger) checkCollateral(tx *Tx, info *TxInfo) error {
	var total uint64
	for _, ref := range tx.Collateral {
		rec, err := l.resolve(ref)
		if err != nil {
			return fmt.Errorf("collateral: %w", err)
		}
		if rec.Output.Address.IsScript() || !rec.Output.Value.OnlyCoin() {
			return fmt.Errorf("collateral %s must be coin at a key address: %w", ref, ErrInsufficientCollateral)
		}
		if !info.SignedBy(rec.Output.Address.Hash) {
			return fmt.Errorf("collateral %s: %w", ref, ErrMissingSignature)
		}
		total += rec.Output.Value.Coin
	}
	if need := l.params.MinCollateral(tx.Fee); total < need {
		return fmt.Errorf("collateral %d < %d: %w", total, need, ErrInsufficientCollateral)
	}
	return nil
}

// runScripts evaluates every script against the same view and joins all
// rejections.
func (l *Ledger) runScripts(info *TxInfo) error {
	var errs []error
	for _, in := range info.Inputs {
		if !in.Output.Address.IsScript() {
			continue
		}
		h := in.Output.Address.Hash
		v, ok := l.spender(h)
		if !ok {
			errs = append(errs, &ScriptError{Purpose: PurposeSpend, Script: h, Ref: in.Ref, Err: ErrUnknownScript})
			continue
		}
		ctx := &ScriptContext{Tx: info, Purpose: PurposeSpend, OwnRef: in.Ref, Redeemer: in.Redeemer}
		if err := v.ValidateSpend(ctx); err != nil {
			errs = append(errs, &ScriptError{Purpose: PurposeSpend, Script: h, Ref: in.Ref, Err: err})
		}
	}

	run := make(map[hyperlane.Hash28]struct{})
	for _, m := range info.Mint {
		h := m.Asset.Policy
		if _, done := run[h]; done {
			continue
		}
		run[h] = struct{}{}
		p, ok := l.policy(h)
		if !ok {
			errs = append(errs, &ScriptError{Purpose: PurposeMint, Script: h, Err: ErrUnknownScript})
			continue
		}
		redeemer, _ := info.MintRedeemer(h)
		ctx := &ScriptContext{Tx: info, Purpose: PurposeMint, OwnPolicy: h, Redeemer: redeemer}
		if err := p.ValidateMint(ctx); err != nil {
			errs = append(errs, &ScriptError{Purpose: PurposeMint, Script: h, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (l *Ledger) checkUniqueMints(info *TxInfo) error {
	for _, m := range info.Mint {
		if m.Amount <= 0 {
			continue
		}
		p, _ := l.policy(m.Asset.Policy)
		u, ok := p.(UniqueMinter)
		if !ok {
			continue
		}
		if m.Amount != 1 {
			return fmt.Errorf("%s amount %d: %w", m.Asset, m.Amount, ErrInvalidMint)
		}
		live, err := l.store.FindByAsset(m.Asset)
		if err != nil {
			return err
		}
		if len(live) > 0 {
			return fmt.Errorf("%s: %w: %w", m.Asset, ErrDuplicateMint, u.DuplicateMint(m.Asset))
		}
	}
	return nil
}
