package multisig

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/merkle"
)

// CheckpointSigner is the external checkpoint-signing collaborator.
type CheckpointSigner interface {
	Address() common.Address
	SignCheckpoint(ctx context.Context, cp codec.Checkpoint) ([]byte, error)
}

// LocalSigner signs checkpoints with an in-process secp256k1 key.
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (s *LocalSigner) Address() common.Address { return s.addr }

func (s *LocalSigner) PublicKey() []byte {
	return crypto.CompressPubkey(&s.key.PublicKey)
}

func (s *LocalSigner) SignCheckpoint(_ context.Context, cp codec.Checkpoint) ([]byte, error) {
	hash := cp.SigningHash()
	sig, err := crypto.Sign(hash[:], s.key)
	if err != nil {
		return nil, fmt.Errorf("sign checkpoint: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// BuildMetadata assembles the proof bundle for the leaf at leafIndex using
// the prover's current root as the signed checkpoint.
func BuildMetadata(
	ctx context.Context,
	origin hyperlane.Domain,
	hook hyperlane.Bytes32,
	prover *merkle.Prover,
	leafIndex uint32,
	signers []CheckpointSigner,
) (codec.Metadata, error) {
	count := prover.Count()
	if count == 0 || leafIndex >= count {
		return codec.Metadata{}, fmt.Errorf("leaf %d not in tree of %d leaves", leafIndex, count)
	}
	proof, err := prover.Proof(leafIndex)
	if err != nil {
		return codec.Metadata{}, err
	}
	signedIndex := count - 1
	signedID, _ := prover.Leaf(signedIndex)
	cp := codec.Checkpoint{
		Origin:         origin,
		MerkleTreeHook: hook,
		Root:           prover.Root(),
		Index:          signedIndex,
		MessageID:      signedID,
	}
	md := codec.Metadata{
		MerkleTreeHook:  hook,
		LeafIndex:       leafIndex,
		MessageID:       signedID,
		Proof:           proof,
		CheckpointIndex: signedIndex,
	}
	for _, s := range signers {
		sig, err := s.SignCheckpoint(ctx, cp)
		if err != nil {
			return codec.Metadata{}, fmt.Errorf("signer %s: %w", s.Address(), err)
		}
		md.Signatures = append(md.Signatures, sig)
	}
	return md, nil
}
