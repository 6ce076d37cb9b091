package ledger

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/hyperlane-eutxo"
)

const testFee = 1_000

var errRejected = errors.New("rejected by test script")

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testParams() Params {
	return Params{MinFeeA: 0, MinFeeB: testFee, CollateralPercent: 150}
}

func testKey(seed string) ed25519.PrivateKey {
	s := sha256.Sum256([]byte(seed))
	return ed25519.NewKeyFromSeed(s[:])
}

func keyAddr(k ed25519.PrivateKey) Address {
	return KeyAddr(KeyHash(k.Public().(ed25519.PublicKey)))
}

// stubScript is a spending validator and minting policy whose verdict is
// fixed.
type stubScript struct {
	name   string
	reject bool
	calls  int
}

func (s *stubScript) Hash() hyperlane.Hash28 { return ScriptHashOf("stub", []byte(s.name)) }

func (s *stubScript) ValidateSpend(*ScriptContext) error {
	s.calls++
	if s.reject {
		return errRejected
	}
	return nil
}

func (s *stubScript) ValidateMint(*ScriptContext) error {
	s.calls++
	if s.reject {
		return errRejected
	}
	return nil
}

type uniqueStub struct {
	stubScript
}

func (u *uniqueStub) DuplicateMint(AssetClass) error { return hyperlane.ErrAlreadyProcessed }

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	store, err := NewMemStore()
	require.NoError(t, err)
	return New(store, testParams(), testLogger())
}

func fund(t *testing.T, l *Ledger, key ed25519.PrivateKey, coins ...uint64) []Record {
	t.Helper()
	outs := make([]Output, len(coins))
	for i, c := range coins {
		outs[i] = Output{Address: keyAddr(key), Value: Coin(c)}
	}
	recs, err := l.Genesis(outs...)
	require.NoError(t, err)
	return recs
}
