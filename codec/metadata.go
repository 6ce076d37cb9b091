package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/merkle"
)

const (
	SignatureLen = 65

	// accumulator(32) | leaf_index(4) | message_id(32) | proof(32*depth) | checkpoint_index(4)
	metadataFixedLen = 32 + 4 + 32 + 32*hyperlane.TreeDepth + 4
)

// Metadata is the proof bundle the relayer attaches to an inbound message.
type Metadata struct {
	MerkleTreeHook  hyperlane.Bytes32
	LeafIndex       uint32
	MessageID       hyperlane.Bytes32
	Proof           merkle.Proof
	CheckpointIndex uint32
	// Signatures are 65-byte r||s||v values over the checkpoint signing hash.
	Signatures [][]byte
}

// Clone returns a copy of md that shares no signature bytes with it.
func (md Metadata) Clone() Metadata {
	md.Signatures = hyperlane.CloneByteSlices(md.Signatures)
	return md
}

func (md Metadata) Encode() []byte {
	out := make([]byte, metadataFixedLen, metadataFixedLen+len(md.Signatures)*SignatureLen)
	copy(out[0:32], md.MerkleTreeHook[:])
	binary.BigEndian.PutUint32(out[32:36], md.LeafIndex)
	copy(out[36:68], md.MessageID[:])
	pos := 68
	for _, h := range md.Proof {
		copy(out[pos:pos+32], h[:])
		pos += 32
	}
	binary.BigEndian.PutUint32(out[pos:pos+4], md.CheckpointIndex)
	for _, sig := range md.Signatures {
		var s [SignatureLen]byte
		copy(s[:], sig)
		out = append(out, s[:]...)
	}
	return out
}

func DecodeMetadata(b []byte) (Metadata, error) {
	if len(b) < metadataFixedLen {
		return Metadata{}, fmt.Errorf("metadata is %d bytes, need at least %d: %w",
			len(b), metadataFixedLen, hyperlane.ErrMalformedMessage)
	}
	sigBytes := b[metadataFixedLen:]
	if len(sigBytes)%SignatureLen != 0 {
		return Metadata{}, fmt.Errorf("signature section of %d bytes is not a multiple of %d: %w",
			len(sigBytes), SignatureLen, hyperlane.ErrMalformedMessage)
	}
	var md Metadata
	copy(md.MerkleTreeHook[:], b[0:32])
	md.LeafIndex = binary.BigEndian.Uint32(b[32:36])
	copy(md.MessageID[:], b[36:68])
	pos := 68
	for i := range md.Proof {
		copy(md.Proof[i][:], b[pos:pos+32])
		pos += 32
	}
	md.CheckpointIndex = binary.BigEndian.Uint32(b[pos : pos+4])
	for i := 0; i < len(sigBytes); i += SignatureLen {
		md.Signatures = append(md.Signatures, append([]byte(nil), sigBytes[i:i+SignatureLen]...))
	}
	return md, nil
}

// Checkpoint reconstructs the signed checkpoint for msg. The root is
// recomputed from the inclusion proof of msg's id at LeafIndex, so a proof
// for any other message yields a different checkpoint.
func (md Metadata) Checkpoint(msg Message) (Checkpoint, error) {
	id := msg.ID()
	if md.CheckpointIndex < md.LeafIndex {
		return Checkpoint{}, fmt.Errorf("checkpoint index %d precedes leaf index %d: %w",
			md.CheckpointIndex, md.LeafIndex, hyperlane.ErrBindingMismatch)
	}
	if md.CheckpointIndex == md.LeafIndex && md.MessageID != id {
		return Checkpoint{}, fmt.Errorf("signed message id %s is not %s: %w",
			md.MessageID, id, hyperlane.ErrBindingMismatch)
	}
	return Checkpoint{
		Origin:         msg.Origin,
		MerkleTreeHook: md.MerkleTreeHook,
		Root:           merkle.BranchRoot(id, md.Proof, md.LeafIndex),
		Index:          md.CheckpointIndex,
		MessageID:      md.MessageID,
	}, nil
}
