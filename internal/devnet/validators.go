package devnet

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/hyperlane-eutxo/multisig"
)

// NewSigners generates n in-process checkpoint signers.
func NewSigners(n int) ([]*multisig.LocalSigner, error) {
	out := make([]*multisig.LocalSigner, n)
	for i := range out {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		out[i] = multisig.NewLocalSigner(key)
	}
	return out, nil
}

// SetOf is the validator set of signers with the given threshold.
func SetOf(signers []*multisig.LocalSigner, threshold uint8) multisig.ValidatorSet {
	vals := make([]common.Address, len(signers))
	for i, s := range signers {
		vals[i] = s.Address()
	}
	return multisig.ValidatorSet{Validators: vals, Threshold: threshold}
}

// AsSigners widens signers to the collaborator interface.
func AsSigners(signers ...*multisig.LocalSigner) []multisig.CheckpointSigner {
	out := make([]multisig.CheckpointSigner, len(signers))
	for i, s := range signers {
		out[i] = s
	}
	return out
}
