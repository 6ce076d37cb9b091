package codec

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/hyperlane-eutxo"
)

var domainSeparatorTag = []byte("HYPERLANE")

// Checkpoint is a commitment to the accumulator root at Index, signed by the
// origin's validators.
type Checkpoint struct {
	Origin         hyperlane.Domain
	MerkleTreeHook hyperlane.Bytes32
	Root           hyperlane.Bytes32
	Index          uint32
	MessageID      hyperlane.Bytes32
}

// DomainHash binds a checkpoint to its origin domain and accumulator.
func DomainHash(origin hyperlane.Domain, hook hyperlane.Bytes32) hyperlane.Bytes32 {
	var o [4]byte
	binary.BigEndian.PutUint32(o[:], uint32(origin))
	return hyperlane.Bytes32(crypto.Keccak256Hash(o[:], hook[:], domainSeparatorTag))
}

func (c Checkpoint) Digest() hyperlane.Bytes32 {
	domain := DomainHash(c.Origin, c.MerkleTreeHook)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], c.Index)
	return hyperlane.Bytes32(crypto.Keccak256Hash(domain[:], c.Root[:], idx[:], c.MessageID[:]))
}

// SigningHash applies the personal-sign prefix to Digest; validators sign
// this value.
func (c Checkpoint) SigningHash() hyperlane.Bytes32 {
	d := c.Digest()
	return hyperlane.BytesToBytes32(accounts.TextHash(d[:]))
}
