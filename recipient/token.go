package recipient

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
)

const tokenMessageHeaderLen = 32 + 32

// TokenMessage is the body of a token transfer:
// recipient(32) | amount(uint256) | metadata.
type TokenMessage struct {
	Recipient hyperlane.Bytes32
	Amount    *uint256.Int
	Metadata  []byte
}

func (m TokenMessage) Encode() []byte {
	out := make([]byte, tokenMessageHeaderLen, tokenMessageHeaderLen+len(m.Metadata))
	copy(out[:32], m.Recipient[:])
	if m.Amount != nil {
		amt := m.Amount.Bytes32()
		copy(out[32:64], amt[:])
	}
	return append(out, m.Metadata...)
}

func DecodeTokenMessage(b []byte) (TokenMessage, error) {
	if len(b) < tokenMessageHeaderLen {
		return TokenMessage{}, fmt.Errorf("token message of %d bytes: %w", len(b), hyperlane.ErrMalformedMessage)
	}
	m := TokenMessage{
		Amount:   new(uint256.Int).SetBytes(b[32:64]),
		Metadata: hyperlane.CloneBytes(b[64:]),
	}
	copy(m.Recipient[:], b[:32])
	return m, nil
}

// Payout resolves the local address and amount of a token message.
func (m TokenMessage) Payout() (ledger.Address, uint64, error) {
	addr, ok := ledger.AddressFromBytes32(m.Recipient)
	if !ok {
		return ledger.Address{}, 0, fmt.Errorf("token recipient %s: %w", m.Recipient, hyperlane.ErrMalformedMessage)
	}
	if !m.Amount.IsUint64() {
		return ledger.Address{}, 0, fmt.Errorf("amount %s exceeds 64 bits: %w", m.Amount, hyperlane.ErrMalformedMessage)
	}
	return addr, m.Amount.Uint64(), nil
}

type RemoteRouter struct {
	Domain uint32
	Router hyperlane.Bytes32
}

// RouterState is the state of a token receiver. Asset is the synthetic asset
// paid out, zero for collateral receivers.
type RouterState struct {
	Owner    hyperlane.Hash28
	Routers  []RemoteRouter
	Asset    ledger.AssetClass
	Received uint64
	Total    uint64
}

func (s RouterState) Encode() []byte {
	b, err := rlp.EncodeToBytes(s)
	if err != nil {
		panic(fmt.Sprintf("encode router state: %v", err))
	}
	return b
}

func DecodeRouterState(b []byte) (RouterState, error) {
	var s RouterState
	if err := rlp.DecodeBytes(b, &s); err != nil {
		return RouterState{}, fmt.Errorf("router state: %w", err)
	}
	return s, nil
}

func (s RouterState) Router(domain hyperlane.Domain) (hyperlane.Bytes32, bool) {
	for _, r := range s.Routers {
		if r.Domain == uint32(domain) {
			return r.Router, true
		}
	}
	return hyperlane.Bytes32{}, false
}

func (s RouterState) Receive(amount uint64) RouterState {
	s.Routers = append([]RemoteRouter(nil), s.Routers...)
	s.Received++
	s.Total += amount
	return s
}

type TokenMode uint8

const (
	// ModeCollateral releases native coin held by a vault.
	ModeCollateral TokenMode = iota
	// ModeSynthetic mints a bridge-controlled asset.
	ModeSynthetic
)

// TokenReceiver pays out transfers from enrolled remote routers.
type TokenReceiver struct {
	Identity     ledger.AssetClass
	MarkerPolicy hyperlane.Hash28
	Mode         TokenMode
	Vault        hyperlane.Hash28
	Synthetic    ledger.AssetClass
}

// NewCollateralReceiver builds a receiver that releases coin from the vault
// bound to identity.
func NewCollateralReceiver(identity ledger.AssetClass, markerPolicy hyperlane.Hash28) *TokenReceiver {
	return &TokenReceiver{
		Identity:     identity,
		MarkerPolicy: markerPolicy,
		Mode:         ModeCollateral,
		Vault:        NewVault(identity).Hash(),
	}
}

// NewSyntheticReceiver builds a receiver that mints the synthetic asset
// bound to identity.
func NewSyntheticReceiver(identity ledger.AssetClass, markerPolicy hyperlane.Hash28, name string) *TokenReceiver {
	return &TokenReceiver{
		Identity:     identity,
		MarkerPolicy: markerPolicy,
		Mode:         ModeSynthetic,
		Synthetic:    NewSyntheticPolicy(identity, name).Asset(),
	}
}

func (t *TokenReceiver) Hash() hyperlane.Hash28 {
	return ledger.ScriptHashOf("recipient/token",
		t.Identity.IndexKey(), t.MarkerPolicy[:], []byte{byte(t.Mode)}, t.Vault[:], t.Synthetic.IndexKey())
}

func (t *TokenReceiver) Address() ledger.Address {
	return ledger.ScriptAddr(t.Hash())
}

func (t *TokenReceiver) ValidateSpend(ctx *ledger.ScriptContext) error {
	own, ok := ctx.OwnInput()
	if !ok || !own.Output.Value.Has(t.Identity) {
		return ErrMissingIdentity
	}
	state, err := DecodeRouterState(own.Output.Datum)
	if err != nil {
		return err
	}
	r, err := mailbox.DecodeRecipientRedeemer(ctx.Redeemer)
	if err != nil {
		return err
	}

	switch r.Action {
	case mailbox.RecipientHandle:
		return t.handle(ctx.Tx, own, state, r.Handle)
	case mailbox.RecipientControl:
		if len(r.Payload) > 0 {
			if _, err := DecodeRouterState(r.Payload); err != nil {
				return err
			}
		}
		return control(ctx.Tx, own, t.Identity, state.Owner, r.Payload)
	default:
		return fmt.Errorf("action %d: %w", r.Action, ErrUnknownAction)
	}
}

func (t *TokenReceiver) handle(tx *ledger.TxInfo, own ledger.ResolvedInput, state RouterState, h mailbox.Handle) error {
	if err := requireMarker(tx, t.MarkerPolicy, h.MessageID); err != nil {
		return err
	}
	if state.Asset != t.Synthetic {
		return fmt.Errorf("state pays %s, receiver pays %s: %w", state.Asset, t.Synthetic, ErrBadPayout)
	}
	router, ok := state.Router(hyperlane.Domain(h.Origin))
	if !ok || router != h.Sender {
		return fmt.Errorf("sender %s is not the router of %d: %w", h.Sender, h.Origin, hyperlane.ErrUnauthorized)
	}
	msg, err := DecodeTokenMessage(h.Body)
	if err != nil {
		return err
	}
	to, amount, err := msg.Payout()
	if err != nil {
		return err
	}
	if err := continueWith(tx, own, t.Identity, state.Receive(amount).Encode()); err != nil {
		return err
	}

	switch t.Mode {
	case ModeCollateral:
		return t.checkRelease(tx, to, amount)
	case ModeSynthetic:
		return t.checkMint(tx, to, amount)
	default:
		return fmt.Errorf("mode %d: %w", t.Mode, ErrUnknownAction)
	}
}

func (t *TokenReceiver) checkRelease(tx *ledger.TxInfo, to ledger.Address, amount uint64) error {
	vault := ledger.ScriptAddr(t.Vault)
	var in, out uint64
	for _, r := range tx.InputsAt(vault) {
		in += r.Output.Value.Coin
	}
	for _, o := range tx.OutputsAt(vault) {
		out += o.Value.Coin
	}
	if in < out || in-out != amount {
		return fmt.Errorf("vault released %d, transfer is %d: %w", int64(in)-int64(out), amount, ErrBadPayout)
	}
	if paidTo(tx, to, func(v ledger.Value) uint64 { return v.Coin }) < amount {
		return fmt.Errorf("recipient %s not paid %d: %w", to, amount, ErrBadPayout)
	}
	return nil
}

func (t *TokenReceiver) checkMint(tx *ledger.TxInfo, to ledger.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if n := tx.Minted(t.Synthetic); n < 0 || uint64(n) != amount {
		return fmt.Errorf("minted %d, transfer is %d: %w", n, amount, ErrBadPayout)
	}
	if paidTo(tx, to, func(v ledger.Value) uint64 { return v.Quantity(t.Synthetic) }) < amount {
		return fmt.Errorf("recipient %s not paid %d: %w", to, amount, ErrBadPayout)
	}
	return nil
}

func paidTo(tx *ledger.TxInfo, addr ledger.Address, qty func(ledger.Value) uint64) uint64 {
	var n uint64
	for _, o := range tx.OutputsAt(addr) {
		n += qty(o.Value)
	}
	return n
}
