package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/compose-network/hyperlane-eutxo"
)

type TxID [32]byte

func (id TxID) String() string {
	return hex.EncodeToString(id[:])
}

// OutRef names a record by the transaction that produced it.
type OutRef struct {
	TxID  TxID
	Index uint32
}

func (r OutRef) String() string {
	return fmt.Sprintf("%s#%d", r.TxID, r.Index)
}

func (r OutRef) Bytes() []byte {
	out := make([]byte, 36)
	copy(out[:32], r.TxID[:])
	binary.BigEndian.PutUint32(out[32:], r.Index)
	return out
}

func OutRefFromBytes(b []byte) (OutRef, error) {
	if len(b) != 36 {
		return OutRef{}, fmt.Errorf("outref is %d bytes", len(b))
	}
	var r OutRef
	copy(r.TxID[:], b[:32])
	r.Index = binary.BigEndian.Uint32(b[32:])
	return r, nil
}

// AssetClass is a (policy, name) pair. For a unique-token identity it is the
// durable locator of the record currently holding that token.
type AssetClass struct {
	Policy hyperlane.Hash28
	Name   string
}

func NewAssetClass(policy hyperlane.Hash28, name []byte) AssetClass {
	return AssetClass{Policy: policy, Name: string(name)}
}

func (a AssetClass) String() string {
	return a.Policy.String() + "." + hex.EncodeToString([]byte(a.Name))
}

func (a AssetClass) IsZero() bool {
	return a == AssetClass{}
}

// IndexKey is a byte key whose prefixes never collide between assets.
func (a AssetClass) IndexKey() []byte {
	out := make([]byte, 0, 28+1+len(a.Name))
	out = append(out, a.Policy[:]...)
	out = append(out, byte(len(a.Name)))
	return append(out, a.Name...)
}

type CredentialKind uint8

const (
	CredentialKey CredentialKind = iota
	CredentialScript
)

// Address is the payment credential guarding a record.
type Address struct {
	Kind CredentialKind
	Hash hyperlane.Hash28
}

func KeyAddr(h hyperlane.Hash28) Address    { return Address{Kind: CredentialKey, Hash: h} }
func ScriptAddr(h hyperlane.Hash28) Address { return Address{Kind: CredentialScript, Hash: h} }

func (a Address) IsScript() bool { return a.Kind == CredentialScript }

// Bytes32 widens the address to the cross-chain 32-byte form.
func (a Address) Bytes32() hyperlane.Bytes32 {
	if a.IsScript() {
		return hyperlane.ScriptAddress(a.Hash)
	}
	return hyperlane.KeyAddress(a.Hash)
}

// AddressFromBytes32 narrows a cross-chain address into a ledger address.
func AddressFromBytes32(b hyperlane.Bytes32) (Address, bool) {
	if h, ok := b.ScriptHash(); ok {
		return ScriptAddr(h), true
	}
	if h, ok := b.KeyHash(); ok {
		return KeyAddr(h), true
	}
	return Address{}, false
}

func (a Address) String() string {
	if a.IsScript() {
		return "script:" + a.Hash.String()
	}
	return "key:" + a.Hash.String()
}

func (a Address) IndexKey() []byte {
	out := make([]byte, 0, 29)
	out = append(out, byte(a.Kind))
	return append(out, a.Hash[:]...)
}

// Output is the content of a record: who guards it, what it holds, and the
// state it carries.
type Output struct {
	Address Address
	Value   Value
	Datum   []byte
}

func (o Output) Clone() Output {
	return Output{Address: o.Address, Value: o.Value.Clone(), Datum: hyperlane.CloneBytes(o.Datum)}
}

// Record is an unspent output.
type Record struct {
	Ref    OutRef
	Output Output
}

// MintEntry is a signed change in the supply of one asset.
type MintEntry struct {
	Asset  AssetClass
	Amount int64
}

func sortMint(m []MintEntry) {
	sort.Slice(m, func(i, j int) bool {
		return string(m[i].Asset.IndexKey()) < string(m[j].Asset.IndexKey())
	})
}
