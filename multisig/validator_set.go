package multisig

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
)

var (
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrInvalidValidatorSet = errors.New("invalid validator set")
)

// ValidatorSet is the trusted signer set of one origin domain.
type ValidatorSet struct {
	Validators []common.Address
	Threshold  uint8
}

func (s ValidatorSet) Validate() error {
	if s.Threshold == 0 {
		return fmt.Errorf("threshold is zero: %w", ErrInvalidValidatorSet)
	}
	if int(s.Threshold) > len(s.Validators) {
		return fmt.Errorf("threshold %d exceeds %d validators: %w",
			s.Threshold, len(s.Validators), ErrInvalidValidatorSet)
	}
	seen := make(map[common.Address]struct{}, len(s.Validators))
	for _, v := range s.Validators {
		if _, ok := seen[v]; ok {
			return fmt.Errorf("duplicate validator %s: %w", v, ErrInvalidValidatorSet)
		}
		seen[v] = struct{}{}
	}
	return nil
}

func (s ValidatorSet) Contains(addr common.Address) bool {
	for _, v := range s.Validators {
		if v == addr {
			return true
		}
	}
	return false
}

// Signature is one validator signature. PublicKey is optional: when present
// (33 or 65 bytes) the signature is verified against it, otherwise the key
// is recovered from the 65-byte signature.
type Signature struct {
	PublicKey []byte
	Sig       []byte
}

// SignaturesFromMetadata lifts the recoverable signatures of a metadata blob.
func SignaturesFromMetadata(md codec.Metadata) []Signature {
	out := make([]Signature, len(md.Signatures))
	for i, s := range md.Signatures {
		out[i] = Signature{Sig: hyperlane.CloneBytes(s)}
	}
	return out
}

// SignerAddress derives the canonical address of the key that produced sig
// over hash.
func SignerAddress(hash hyperlane.Bytes32, sig Signature) (common.Address, error) {
	if len(sig.Sig) < 64 {
		return common.Address{}, fmt.Errorf("signature is %d bytes: %w", len(sig.Sig), ErrInvalidSignature)
	}
	if len(sig.PublicKey) > 0 {
		pub, err := parsePublicKey(sig.PublicKey)
		if err != nil {
			return common.Address{}, err
		}
		if !crypto.VerifySignature(crypto.FromECDSAPub(pub), hash[:], sig.Sig[:64]) {
			return common.Address{}, fmt.Errorf("signature does not match key: %w", ErrInvalidSignature)
		}
		return crypto.PubkeyToAddress(*pub), nil
	}
	if len(sig.Sig) != 65 {
		return common.Address{}, fmt.Errorf("recoverable signature is %d bytes: %w", len(sig.Sig), ErrInvalidSignature)
	}
	rsv := hyperlane.CloneBytes(sig.Sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	if rsv[64] > 1 {
		return common.Address{}, fmt.Errorf("recovery id %d: %w", sig.Sig[64], ErrInvalidSignature)
	}
	pub, err := crypto.SigToPub(hash[:], rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover: %v: %w", err, ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func parsePublicKey(b []byte) (*ecdsa.PublicKey, error) {
	switch len(b) {
	case 33:
		pub, err := crypto.DecompressPubkey(b)
		if err != nil {
			return nil, fmt.Errorf("decompress key: %v: %w", err, ErrInvalidSignature)
		}
		return pub, nil
	case 65:
		pub, err := crypto.UnmarshalPubkey(b)
		if err != nil {
			return nil, fmt.Errorf("unmarshal key: %v: %w", err, ErrInvalidSignature)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("public key is %d bytes: %w", len(b), ErrInvalidSignature)
	}
}

// CountSigners returns the number of distinct members of set that produced a
// valid signature over the checkpoint. Invalid or foreign signatures are
// skipped; the second result lists why each was skipped.
func CountSigners(set ValidatorSet, cp codec.Checkpoint, sigs []Signature, recoverFn RecoverFunc) (int, []error) {
	if recoverFn == nil {
		recoverFn = SignerAddress
	}
	hash := cp.SigningHash()
	seen := make(map[common.Address]struct{}, len(sigs))
	var skipped []error
	for i, sig := range sigs {
		addr, err := recoverFn(hash, sig)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("signature %d: %w", i, err))
			continue
		}
		if !set.Contains(addr) {
			skipped = append(skipped, fmt.Errorf("signature %d: signer %s not in set: %w", i, addr, ErrInvalidSignature))
			continue
		}
		seen[addr] = struct{}{}
	}
	return len(seen), skipped
}

// RecoverFunc maps a signature over hash to the signer's address.
type RecoverFunc func(hash hyperlane.Bytes32, sig Signature) (common.Address, error)

// CheckThreshold is the stateless verification used by on-chain validators.
func CheckThreshold(set ValidatorSet, cp codec.Checkpoint, sigs []Signature) error {
	if err := set.Validate(); err != nil {
		return fmt.Errorf("origin %d: %v: %w", cp.Origin, err, hyperlane.ErrUntrustedVerifier)
	}
	n, _ := CountSigners(set, cp, sigs, nil)
	if n < int(set.Threshold) {
		return fmt.Errorf("%d of %d valid signatures for origin %d: %w",
			n, set.Threshold, cp.Origin, hyperlane.ErrThresholdNotMet)
	}
	return nil
}
