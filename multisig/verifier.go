package multisig

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
)

const defaultRecoveryCacheSize = 4096

// Verifier checks checkpoints against per-origin validator sets. It holds no
// ledger state and is safe for concurrent use.
type Verifier struct {
	mu   sync.RWMutex
	sets map[hyperlane.Domain]ValidatorSet

	// Recovery is a pure function of (hash, signature); memoising it is safe.
	recovered *lru.Cache[string, common.Address]

	logger zerolog.Logger
}

func NewVerifier(sets map[hyperlane.Domain]ValidatorSet, logger zerolog.Logger) (*Verifier, error) {
	cache, err := lru.New[string, common.Address](defaultRecoveryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("recovery cache: %w", err)
	}
	v := &Verifier{
		sets:      make(map[hyperlane.Domain]ValidatorSet, len(sets)),
		recovered: cache,
		logger:    logger.With().Str("component", "multisig.verifier").Logger(),
	}
	for origin, set := range sets {
		if err := v.SetValidators(origin, set); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (v *Verifier) SetValidators(origin hyperlane.Domain, set ValidatorSet) error {
	if err := set.Validate(); err != nil {
		return fmt.Errorf("origin %d: %w", origin, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sets[origin] = ValidatorSet{
		Validators: append([]common.Address(nil), set.Validators...),
		Threshold:  set.Threshold,
	}
	return nil
}

func (v *Verifier) ValidatorSet(origin hyperlane.Domain) (ValidatorSet, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	set, ok := v.sets[origin]
	return set, ok
}

// Verify checks that metadata proves msg was dispatched at its origin and
// that enough of the origin's validators signed the checkpoint.
func (v *Verifier) Verify(msg codec.Message, md codec.Metadata) error {
	cp, err := md.Checkpoint(msg)
	if err != nil {
		return err
	}
	return v.VerifyCheckpoint(cp, SignaturesFromMetadata(md))
}

func (v *Verifier) VerifyCheckpoint(cp codec.Checkpoint, sigs []Signature) error {
	set, ok := v.ValidatorSet(cp.Origin)
	if !ok {
		v.logger.Warn().
			Uint32("origin", uint32(cp.Origin)).
			Msg("No validator set for origin")
		return fmt.Errorf("no validator set for origin %d: %w", cp.Origin, hyperlane.ErrUntrustedVerifier)
	}

	n, skipped := CountSigners(set, cp, sigs, v.recoverSigner)
	for _, err := range skipped {
		v.logger.Debug().Err(err).Uint32("origin", uint32(cp.Origin)).Msg("Skipping signature")
	}
	if n < int(set.Threshold) {
		v.logger.Warn().
			Uint32("origin", uint32(cp.Origin)).
			Uint32("index", cp.Index).
			Int("valid", n).
			Uint8("threshold", set.Threshold).
			Msg("Checkpoint threshold not met")
		return fmt.Errorf("%d of %d valid signatures for origin %d: %w",
			n, set.Threshold, cp.Origin, hyperlane.ErrThresholdNotMet)
	}
	return nil
}

func (v *Verifier) recoverSigner(hash hyperlane.Bytes32, sig Signature) (common.Address, error) {
	key := string(hash[:]) + string([]byte{byte(len(sig.PublicKey))}) + string(sig.PublicKey) + string(sig.Sig)
	if addr, ok := v.recovered.Get(key); ok {
		return addr, nil
	}
	addr, err := SignerAddress(hash, sig)
	if err != nil {
		return common.Address{}, err
	}
	v.recovered.Add(key, addr)
	return addr, nil
}
