package ledger

import (
	"crypto/ed25519"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/blake2b"

	"github.com/compose-network/hyperlane-eutxo"
)

// Input consumes a record. Redeemer is handed to the guarding script and is
// ignored for key-guarded records.
type Input struct {
	Ref      OutRef
	Redeemer []byte
}

// MintRedeemer is the instruction handed to one minting policy.
type MintRedeemer struct {
	Policy   hyperlane.Hash28
	Redeemer []byte
}

type VKeyWitness struct {
	PublicKey []byte
	Signature []byte
}

// Tx is an atomic state transition. Every script it touches must accept or
// the whole transaction is void.
type Tx struct {
	Inputs          []Input
	ReferenceInputs []OutRef
	Outputs         []Output
	Mint            []MintEntry
	MintRedeemers   []MintRedeemer
	Collateral      []OutRef
	Fee             uint64
	RequiredSigners []hyperlane.Hash28

	Witnesses []VKeyWitness
}

type rlpAsset struct {
	Policy   hyperlane.Hash28
	Name     string
	Quantity uint64
}

type rlpValue struct {
	Coin   uint64
	Assets []rlpAsset
}

type rlpOutput struct {
	Kind  uint8
	Hash  hyperlane.Hash28
	Value rlpValue
	Datum []byte
}

type rlpMint struct {
	Policy hyperlane.Hash28
	Name   string
	Amount uint64
	Burn   bool
}

type rlpBody struct {
	Inputs          []Input
	ReferenceInputs []OutRef
	Outputs         []rlpOutput
	Mint            []rlpMint
	MintRedeemers   []MintRedeemer
	Collateral      []OutRef
	Fee             uint64
	RequiredSigners []hyperlane.Hash28
}

type rlpTx struct {
	Body      rlpBody
	Witnesses []VKeyWitness
}

func toRLPValue(v Value) rlpValue {
	out := rlpValue{Coin: v.Coin}
	for _, a := range v.SortedAssets() {
		out.Assets = append(out.Assets, rlpAsset{Policy: a.Policy, Name: a.Name, Quantity: v.Assets[a]})
	}
	return out
}

func fromRLPValue(v rlpValue) Value {
	out := Value{Coin: v.Coin}
	for _, a := range v.Assets {
		out = out.WithAsset(AssetClass{Policy: a.Policy, Name: a.Name}, a.Quantity)
	}
	return out
}

func toRLPOutput(o Output) rlpOutput {
	return rlpOutput{Kind: uint8(o.Address.Kind), Hash: o.Address.Hash, Value: toRLPValue(o.Value), Datum: o.Datum}
}

func fromRLPOutput(o rlpOutput) Output {
	return Output{
		Address: Address{Kind: CredentialKind(o.Kind), Hash: o.Hash},
		Value:   fromRLPValue(o.Value),
		Datum:   hyperlane.CloneBytes(o.Datum),
	}
}

// EncodeOutput is the storage form of an output.
func EncodeOutput(o Output) ([]byte, error) {
	return rlp.EncodeToBytes(toRLPOutput(o))
}

func DecodeOutput(b []byte) (Output, error) {
	var o rlpOutput
	if err := rlp.DecodeBytes(b, &o); err != nil {
		return Output{}, fmt.Errorf("decode output: %w", err)
	}
	return fromRLPOutput(o), nil
}

func (tx *Tx) body() rlpBody {
	b := rlpBody{
		Inputs:          tx.Inputs,
		ReferenceInputs: tx.ReferenceInputs,
		MintRedeemers:   tx.MintRedeemers,
		Collateral:      tx.Collateral,
		Fee:             tx.Fee,
		RequiredSigners: tx.RequiredSigners,
	}
	for _, o := range tx.Outputs {
		b.Outputs = append(b.Outputs, toRLPOutput(o))
	}
	mint := append([]MintEntry(nil), tx.Mint...)
	sortMint(mint)
	for _, m := range mint {
		e := rlpMint{Policy: m.Asset.Policy, Name: m.Asset.Name}
		if m.Amount < 0 {
			e.Amount, e.Burn = uint64(-m.Amount), true
		} else {
			e.Amount = uint64(m.Amount)
		}
		b.Mint = append(b.Mint, e)
	}
	return b
}

// BodyBytes is the signed part of the transaction.
func (tx *Tx) BodyBytes() []byte {
	b, err := rlp.EncodeToBytes(tx.body())
	if err != nil {
		// Every field is a fixed rlp-encodable kind.
		panic(fmt.Sprintf("encode tx body: %v", err))
	}
	return b
}

func (tx *Tx) Bytes() []byte {
	b, err := rlp.EncodeToBytes(rlpTx{Body: tx.body(), Witnesses: tx.Witnesses})
	if err != nil {
		panic(fmt.Sprintf("encode tx: %v", err))
	}
	return b
}

func DecodeTx(b []byte) (*Tx, error) {
	var raw rlpTx
	if err := rlp.DecodeBytes(b, &raw); err != nil {
		return nil, fmt.Errorf("decode tx: %w", err)
	}
	tx := &Tx{
		Inputs:          raw.Body.Inputs,
		ReferenceInputs: raw.Body.ReferenceInputs,
		MintRedeemers:   raw.Body.MintRedeemers,
		Collateral:      raw.Body.Collateral,
		Fee:             raw.Body.Fee,
		RequiredSigners: raw.Body.RequiredSigners,
		Witnesses:       raw.Witnesses,
	}
	for _, o := range raw.Body.Outputs {
		tx.Outputs = append(tx.Outputs, fromRLPOutput(o))
	}
	for _, m := range raw.Body.Mint {
		amt := int64(m.Amount)
		if m.Burn {
			amt = -amt
		}
		tx.Mint = append(tx.Mint, MintEntry{Asset: AssetClass{Policy: m.Policy, Name: m.Name}, Amount: amt})
	}
	return tx, nil
}

func (tx *Tx) ID() TxID {
	return TxID(blake2b.Sum256(tx.BodyBytes()))
}

// Sign appends a witness over the body. Any later change to the body
// invalidates it.
func (tx *Tx) Sign(key ed25519.PrivateKey) {
	id := tx.ID()
	pub := key.Public().(ed25519.PublicKey)
	tx.Witnesses = append(tx.Witnesses, VKeyWitness{
		PublicKey: append([]byte(nil), pub...),
		Signature: ed25519.Sign(key, id[:]),
	})
}

func (tx *Tx) Redeemer(policy hyperlane.Hash28) ([]byte, bool) {
	for _, r := range tx.MintRedeemers {
		if r.Policy == policy {
			return r.Redeemer, true
		}
	}
	return nil, false
}

// KeyHash is the 28-byte credential of an ed25519 public key.
func KeyHash(pub ed25519.PublicKey) hyperlane.Hash28 {
	h, _ := blake2b.New(28, nil)
	h.Write(pub)
	var out hyperlane.Hash28
	copy(out[:], h.Sum(nil))
	return out
}

// ScriptHashOf derives the identity of a script from its kind and the
// parameters it was instantiated with.
func ScriptHashOf(kind string, params ...[]byte) hyperlane.Hash28 {
	h, _ := blake2b.New(28, nil)
	h.Write([]byte(kind))
	for _, p := range params {
		var n [4]byte
		n[0], n[1], n[2], n[3] = byte(len(p)>>24), byte(len(p)>>16), byte(len(p)>>8), byte(len(p))
		h.Write(n[:])
		h.Write(p)
	}
	var out hyperlane.Hash28
	copy(out[:], h.Sum(nil))
	return out
}
