// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package agora

import "math/big"

// Canonical names of governance-mutable parameters.
const (
	KeyProposalThreshold       = "proposalThreshold"
	KeyQuorumPercentage        = "quorumPercentage"
	KeyVotingDelay             = "votingDelay"
	KeyVotingPeriod            = "votingPeriod"
	KeyTimelockDelay           = "timelockDelay"
	KeyGracePeriod             = "gracePeriod"
	KeyMaxActions              = "maxActions"
	KeyMetaGovernanceThreshold = "metaGovernanceThreshold"
	KeyRatificationWindow      = "ratificationWindow"
)

// Builtin addresses reserved by the engine.
var (
	// GovernanceAddress is the engine's own address. Proposals whose
	// actions call it are held to the meta-governance threshold.
	GovernanceAddress = BytesToAddress([]byte("agora-governance"))
	// TreasuryAddress funds FundTransfer actions.
	TreasuryAddress = BytesToAddress([]byte("agora-treasury"))
	// EmergencyAddress is recorded as the actor of emergency changes.
	EmergencyAddress = BytesToAddress([]byte("agora-emergency"))
)

const (
	hour = 3600
	day  = 24 * hour
)

// Bound is an inclusive value range.
type Bound struct {
	Lower *big.Int
	Upper *big.Int
}

// Covers reports whether v lies within the bound.
func (b Bound) Covers(v *big.Int) bool {
	return v.Cmp(b.Lower) >= 0 && v.Cmp(b.Upper) <= 0
}

// CoversRange reports whether [lower, upper] lies within the bound.
func (b Bound) CoversRange(lower, upper *big.Int) bool {
	return lower.Cmp(upper) <= 0 && b.Covers(lower) && b.Covers(upper)
}

// absoluteBounds are hard limits on parameter bounds. They are compiled in
// and cannot be changed by any governance path, so governance can never vote
// itself into an unrecoverable configuration.
var absoluteBounds = map[string]Bound{
	KeyProposalThreshold:       {big.NewInt(1), new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)},
	KeyQuorumPercentage:        {big.NewInt(1), big.NewInt(20)},
	KeyVotingDelay:             {big.NewInt(hour), big.NewInt(14 * day)},
	KeyVotingPeriod:            {big.NewInt(day), big.NewInt(30 * day)},
	KeyTimelockDelay:           {big.NewInt(hour), big.NewInt(30 * day)},
	KeyGracePeriod:             {big.NewInt(day), big.NewInt(90 * day)},
	KeyMaxActions:              {big.NewInt(1), big.NewInt(50)},
	KeyMetaGovernanceThreshold: {big.NewInt(50), big.NewInt(90)},
	KeyRatificationWindow:      {big.NewInt(day), big.NewInt(30 * day)},
}

// AbsoluteBound returns the hard limit for the named parameter.
func AbsoluteBound(name string) (Bound, bool) {
	b, ok := absoluteBounds[name]
	return b, ok
}

// ParamInit is the initial registration of one parameter.
type ParamInit struct {
	Name      string
	Value     *big.Int
	Lower     *big.Int
	Upper     *big.Int
	Emergency bool // eligible for the emergency change path
}

// DefaultParams returns the stock parameter set used when the genesis
// config does not override it. Durations are in seconds.
func DefaultParams() []ParamInit {
	return []ParamInit{
		{KeyProposalThreshold, big.NewInt(10_000_000), big.NewInt(1), new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil), false},
		{KeyQuorumPercentage, big.NewInt(4), big.NewInt(1), big.NewInt(20), true},
		{KeyVotingDelay, big.NewInt(day), big.NewInt(hour), big.NewInt(14 * day), false},
		{KeyVotingPeriod, big.NewInt(3 * day), big.NewInt(day), big.NewInt(30 * day), false},
		{KeyTimelockDelay, big.NewInt(2 * day), big.NewInt(hour), big.NewInt(30 * day), true},
		{KeyGracePeriod, big.NewInt(14 * day), big.NewInt(day), big.NewInt(90 * day), false},
		{KeyMaxActions, big.NewInt(10), big.NewInt(1), big.NewInt(50), false},
		{KeyMetaGovernanceThreshold, big.NewInt(60), big.NewInt(50), big.NewInt(90), false},
		{KeyRatificationWindow, big.NewInt(7 * day), big.NewInt(day), big.NewInt(30 * day), false},
	}
}
