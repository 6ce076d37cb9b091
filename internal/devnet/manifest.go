package devnet

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/identity"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

// Manifest records the seeds every script of a deployment was instantiated
// from, so a later process can register the same scripts again.
type Manifest struct {
	Domain     uint32              `yaml:"domain"`
	Core       string              `yaml:"core_seed"`
	Recipients []RecipientManifest `yaml:"recipients"`
}

type RecipientManifest struct {
	Kind RecipientKind `yaml:"kind"`
	Seed string        `yaml:"seed"`
	// Asset names the synthetic asset of a synthetic token receiver.
	Asset string `yaml:"asset,omitempty"`
}

func EncodeOutRef(r ledger.OutRef) string {
	return hex.EncodeToString(r.Bytes())
}

func DecodeOutRef(s string) (ledger.OutRef, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ledger.OutRef{}, fmt.Errorf("outref %q: %w", s, err)
	}
	return ledger.OutRefFromBytes(b)
}

func LoadManifest(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

func (m Manifest) Save(path string) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Restore reopens a deployment described by m on opts.Store. Nothing is
// submitted; the scripts are registered and the builder started.
func Restore(opts Options, m Manifest, logger zerolog.Logger) (*Devnet, []*Recipient, error) {
	if opts.Domain == 0 {
		opts.Domain = hyperlane.Domain(m.Domain)
	}
	n, err := open(opts, logger)
	if err != nil {
		return nil, nil, err
	}
	seed, err := DecodeOutRef(m.Core)
	if err != nil {
		return nil, nil, err
	}
	n.bindCore(identity.NewOneShotPolicy(seed, nameMailbox, nameVerifier))

	recipients := make([]*Recipient, 0, len(m.Recipients))
	for _, rm := range m.Recipients {
		seed, err := DecodeOutRef(rm.Seed)
		if err != nil {
			return nil, nil, err
		}
		r, err := n.bind(rm, identity.NewOneShotPolicy(seed, namesOf(rm.Kind)...))
		if err != nil {
			return nil, nil, err
		}
		recipients = append(recipients, r)
	}
	n.Manifest = m
	if err := n.start(); err != nil {
		return nil, nil, err
	}
	return n, recipients, nil
}
