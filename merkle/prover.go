package merkle

import (
	"fmt"
	"sync"

	"github.com/compose-network/hyperlane-eutxo"
)

// Prover mirrors the on-chain tree off chain and keeps every leaf so it can
// produce inclusion proofs against the current root.
type Prover struct {
	mu     sync.RWMutex
	leaves []hyperlane.Bytes32
}

func NewProver() *Prover {
	return &Prover{}
}

func (p *Prover) Insert(leaf hyperlane.Bytes32) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if uint64(len(p.leaves)) >= MaxLeaves {
		return 0, ErrTreeFull
	}
	p.leaves = append(p.leaves, leaf)
	return uint32(len(p.leaves) - 1), nil
}

func (p *Prover) Count() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return uint32(len(p.leaves))
}

func (p *Prover) Root() hyperlane.Bytes32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	level := p.leaves
	for d := 0; d < Depth; d++ {
		level = nextLevel(level, d)
	}
	if len(level) == 0 {
		return zeroHashes[Depth]
	}
	return level[0]
}

// Proof returns the sibling path of leaf index against the current root.
func (p *Prover) Proof(index uint32) (Proof, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var proof Proof
	if int(index) >= len(p.leaves) {
		return proof, fmt.Errorf("leaf %d not in tree of %d leaves", index, len(p.leaves))
	}
	level := p.leaves
	idx := int(index)
	for d := 0; d < Depth; d++ {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof[d] = level[sibling]
		} else {
			proof[d] = zeroHashes[d]
		}
		level = nextLevel(level, d)
		idx >>= 1
	}
	return proof, nil
}

func nextLevel(level []hyperlane.Bytes32, height int) []hyperlane.Bytes32 {
	next := make([]hyperlane.Bytes32, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		right := zeroHashes[height]
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, hashPair(level[i], right))
	}
	return next
}

func (p *Prover) Leaf(index uint32) (hyperlane.Bytes32, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(index) >= len(p.leaves) {
		return hyperlane.Bytes32{}, false
	}
	return p.leaves[index], true
}
