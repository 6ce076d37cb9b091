package merkle

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/hyperlane-eutxo"
)

func leaf(i int) hyperlane.Bytes32 {
	return hyperlane.Bytes32(crypto.Keccak256Hash([]byte{byte(i), byte(i >> 8)}))
}

func TestTree_EmptyRoot(t *testing.T) {
	var tree Tree
	assert.Equal(t, ZeroHash(Depth), tree.Root())
	assert.Equal(t, NewProver().Root(), tree.Root())
}

func TestTree_MatchesProver(t *testing.T) {
	var tree Tree
	p := NewProver()
	for i := 0; i < 37; i++ {
		require.NoError(t, tree.Insert(leaf(i)))
		idx, err := p.Insert(leaf(i))
		require.NoError(t, err)
		assert.Equal(t, uint32(i), idx)
		require.Equal(t, p.Root(), tree.Root(), "after %d leaves", i+1)
	}
	assert.Equal(t, uint32(37), tree.Count)
	assert.Equal(t, uint32(37), p.Count())
}

func TestProver_ProofsVerify(t *testing.T) {
	p := NewProver()
	for i := 0; i < 10; i++ {
		_, err := p.Insert(leaf(i))
		require.NoError(t, err)
	}
	root := p.Root()
	for i := uint32(0); i < 10; i++ {
		proof, err := p.Proof(i)
		require.NoError(t, err)
		assert.True(t, Verify(root, leaf(int(i)), proof, i))
		assert.False(t, Verify(root, leaf(int(i)+1), proof, i))
		assert.False(t, Verify(root, leaf(int(i)), proof, i+1))
	}

	_, err := p.Proof(10)
	assert.Error(t, err)
}

func TestProver_ProofGoesStaleAfterInsert(t *testing.T) {
	p := NewProver()
	for i := 0; i < 5; i++ {
		_, err := p.Insert(leaf(i))
		require.NoError(t, err)
	}
	proof, err := p.Proof(2)
	require.NoError(t, err)
	require.True(t, Verify(p.Root(), leaf(2), proof, 2))

	_, err = p.Insert(leaf(5))
	require.NoError(t, err)
	assert.False(t, Verify(p.Root(), leaf(2), proof, 2), "old proof against grown root")

	proof, err = p.Proof(2)
	require.NoError(t, err)
	assert.True(t, Verify(p.Root(), leaf(2), proof, 2))
}

func TestTree_FullTreeRejectsInsert(t *testing.T) {
	tree := Tree{Count: uint32(MaxLeaves)}
	assert.ErrorIs(t, tree.Insert(leaf(0)), ErrTreeFull)
}
