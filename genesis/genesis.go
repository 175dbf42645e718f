// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package genesis defines the bootstrap configuration of the engine: token
// allocations, the emergency signer set, cancellers and initial parameters.
// The signer set and cancellers are fixed here, outside normal governance.
package genesis

import (
	"math/big"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/agora-dao/agora/agora"
)

// Amount is a big integer that decodes from decimal or 0x-prefixed YAML strings.
type Amount big.Int

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return errors.Errorf("invalid amount %q", s)
	}
	*a = Amount(*v)
	return nil
}

// Big returns the amount as *big.Int, nil-safe.
func (a *Amount) Big() *big.Int {
	if a == nil {
		return nil
	}
	return (*big.Int)(a)
}

// Address wraps agora.Address for YAML decoding.
type Address struct {
	agora.Address
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := agora.ParseAddress(s)
	if err != nil {
		return errors.WithMessagef(err, "address %q", s)
	}
	a.Address = parsed
	return nil
}

// Allocation is one genesis token grant.
type Allocation struct {
	Address Address `yaml:"address"`
	Balance *Amount `yaml:"balance"`
}

// Param overrides one parameter's initial registration.
type Param struct {
	Name      string  `yaml:"name"`
	Value     *Amount `yaml:"value"`
	Lower     *Amount `yaml:"lower"`
	Upper     *Amount `yaml:"upper"`
	Emergency bool    `yaml:"emergency"`
}

// Emergency is the multisig configuration.
type Emergency struct {
	Threshold int       `yaml:"threshold"`
	Signers   []Address `yaml:"signers"`
}

// Genesis is the bootstrap configuration.
type Genesis struct {
	LaunchTime  uint64       `yaml:"launchTime"`
	Allocations []Allocation `yaml:"allocations"`
	Params      []Param      `yaml:"params"`
	Emergency   Emergency    `yaml:"emergency"`
	Cancellers  []Address    `yaml:"cancellers"`
}

// Load reads and validates a genesis file.
func Load(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read genesis file")
	}
	return Parse(data)
}

// Parse decodes and validates genesis YAML.
func Parse(data []byte) (*Genesis, error) {
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, errors.Wrap(err, "parse genesis")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks internal consistency.
func (g *Genesis) Validate() error {
	if g.Emergency.Threshold <= 0 {
		return errors.New("emergency threshold must be positive")
	}
	if g.Emergency.Threshold > len(g.Emergency.Signers) {
		return errors.Errorf("emergency threshold %d exceeds signer count %d",
			g.Emergency.Threshold, len(g.Emergency.Signers))
	}
	seen := make(map[agora.Address]bool)
	for _, s := range g.Emergency.Signers {
		if s.IsZero() {
			return errors.New("zero emergency signer address")
		}
		if seen[s.Address] {
			return errors.Errorf("duplicate emergency signer %v", s.Address)
		}
		seen[s.Address] = true
	}
	for _, a := range g.Allocations {
		if a.Balance == nil || a.Balance.Big().Sign() < 0 {
			return errors.Errorf("invalid balance for %v", a.Address.Address)
		}
	}
	for _, p := range g.Params {
		if p.Name == "" || p.Value == nil || p.Lower == nil || p.Upper == nil {
			return errors.Errorf("incomplete parameter override %q", p.Name)
		}
	}
	return nil
}

// ParamInits returns the initial parameter set: the stock defaults with the
// genesis overrides applied on top.
func (g *Genesis) ParamInits() []agora.ParamInit {
	inits := agora.DefaultParams()
	byName := make(map[string]int, len(inits))
	for i, init := range inits {
		byName[init.Name] = i
	}
	for _, p := range g.Params {
		init := agora.ParamInit{
			Name:      p.Name,
			Value:     p.Value.Big(),
			Lower:     p.Lower.Big(),
			Upper:     p.Upper.Big(),
			Emergency: p.Emergency,
		}
		if i, ok := byName[p.Name]; ok {
			inits[i] = init
		} else {
			inits = append(inits, init)
		}
	}
	return inits
}

// SignerAddresses returns the emergency signer set as plain addresses.
func (g *Genesis) SignerAddresses() []agora.Address {
	out := make([]agora.Address, 0, len(g.Emergency.Signers))
	for _, s := range g.Emergency.Signers {
		out = append(out, s.Address)
	}
	return out
}

// CancellerAddresses returns the canceller set as plain addresses.
func (g *Genesis) CancellerAddresses() []agora.Address {
	out := make([]agora.Address, 0, len(g.Cancellers))
	for _, c := range g.Cancellers {
		out = append(out, c.Address)
	}
	return out
}
