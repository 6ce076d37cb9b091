package merkle

import (
	"errors"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/hyperlane-eutxo"
)

const (
	Depth     = hyperlane.TreeDepth
	MaxLeaves = uint64(1)<<Depth - 1
)

var ErrTreeFull = errors.New("merkle tree full")

// Proof holds the sibling hashes from leaf to root.
type Proof [Depth]hyperlane.Bytes32

var zeroHashes = func() [Depth + 1]hyperlane.Bytes32 {
	var z [Depth + 1]hyperlane.Bytes32
	for i := 1; i <= Depth; i++ {
		z[i] = hashPair(z[i-1], z[i-1])
	}
	return z
}()

func hashPair(a, b hyperlane.Bytes32) hyperlane.Bytes32 {
	return hyperlane.Bytes32(crypto.Keccak256Hash(a[:], b[:]))
}

// ZeroHash returns the root of an empty subtree of the given height.
func ZeroHash(height int) hyperlane.Bytes32 {
	return zeroHashes[height]
}

// Tree is the append-only incremental accumulator stored on chain. Only the
// left frontier is kept, so insert and root are O(Depth).
type Tree struct {
	Branch [Depth]hyperlane.Bytes32
	Count  uint32
}

func (t *Tree) Insert(leaf hyperlane.Bytes32) error {
	if uint64(t.Count) >= MaxLeaves {
		return ErrTreeFull
	}
	t.Count++
	size := t.Count
	node := leaf
	for i := 0; i < Depth; i++ {
		if size&1 == 1 {
			t.Branch[i] = node
			return nil
		}
		node = hashPair(t.Branch[i], node)
		size >>= 1
	}
	// size has a set bit below Depth whenever Count <= MaxLeaves.
	return ErrTreeFull
}

func (t Tree) Root() hyperlane.Bytes32 {
	var current hyperlane.Bytes32
	for i := 0; i < Depth; i++ {
		if (t.Count>>i)&1 == 1 {
			current = hashPair(t.Branch[i], current)
		} else {
			current = hashPair(current, zeroHashes[i])
		}
	}
	return current
}

// BranchRoot folds leaf with its proof at index into a root.
func BranchRoot(leaf hyperlane.Bytes32, proof Proof, index uint32) hyperlane.Bytes32 {
	current := leaf
	for i := 0; i < Depth; i++ {
		if (index>>i)&1 == 1 {
			current = hashPair(proof[i], current)
		} else {
			current = hashPair(current, proof[i])
		}
	}
	return current
}

// Verify reports whether leaf is included at index under root.
func Verify(root, leaf hyperlane.Bytes32, proof Proof, index uint32) bool {
	return BranchRoot(leaf, proof, index) == root
}
