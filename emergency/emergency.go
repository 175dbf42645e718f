// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package emergency implements the multisignature-gated override path. A
// fixed signer set, configured at genesis outside normal governance, can
// pause the system or change whitelisted parameters immediately. Every
// action opens a ratification window; actions left unratified past their
// deadline are surfaced, never auto-reverted.
package emergency

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/gov"
	"github.com/agora-dao/agora/kv"
	"github.com/agora-dao/agora/log"
	"github.com/agora-dao/agora/params"
)

var logger = log.WithContext("pkg", "emergency")

var (
	counterKey = []byte("id")
	pausedKey  = []byte("paused")
)

// Op is the kind of emergency action.
type Op uint8

const (
	OpPause Op = iota
	OpResume
	OpParameterChange
)

func (o Op) String() string {
	switch o {
	case OpPause:
		return "pause"
	case OpResume:
		return "resume"
	case OpParameterChange:
		return "parameterChange"
	default:
		return "unknown"
	}
}

// ActionRecord is the persisted record of one emergency action.
type ActionRecord struct {
	ID             uint64   `json:"id"`
	Op             Op       `json:"op"`
	Name           string   `json:"name,omitempty"`
	Value          *big.Int `json:"value,omitempty"`
	OldValue       *big.Int `json:"oldValue,omitempty"`
	TakenAt        uint64   `json:"takenAt"`
	Deadline       uint64   `json:"deadline"`
	Ratified       bool     `json:"ratified"`
	RatifiedBy     uint64   `json:"ratifiedBy,omitempty"`
	OverdueFlagged bool     `json:"overdueFlagged"`
}

// Controller is the emergency controller.
type Controller struct {
	mu        sync.Mutex
	actions   kv.GetPutter
	store     kv.GetPutter
	signers   map[agora.Address]bool
	threshold int
	params    *params.Store
}

// New creates a controller with the given signer set and approval threshold.
func New(store kv.GetPutter, par *params.Store, signers []agora.Address, threshold int) *Controller {
	set := make(map[agora.Address]bool, len(signers))
	for _, s := range signers {
		set[s] = true
	}
	return &Controller{
		actions:   kv.Bucket("a/").NewStore(store),
		store:     store,
		signers:   set,
		threshold: threshold,
		params:    par,
	}
}

// Digest returns the message signers approve for the given action. The nonce
// is the id the action will be recorded under, preventing signature replay.
func Digest(op Op, name string, value *big.Int, nonce uint64) agora.Bytes32 {
	if value == nil {
		value = new(big.Int)
	}
	body, err := rlp.EncodeToBytes(struct {
		Op    uint8
		Name  string
		Value *big.Int
		Nonce uint64
	}{uint8(op), name, value, nonce})
	if err != nil {
		panic(err)
	}
	return agora.Blake2b([]byte("agora.emergency"), body)
}

// verify checks that sigs carries at least threshold distinct authorized
// signatures over digest. Partial collections are never observable state:
// the caller only mutates once this passes.
func (c *Controller) verify(digest agora.Bytes32, sigs [][]byte) error {
	seen := make(map[agora.Address]bool)
	for _, sig := range sigs {
		pub, err := crypto.SigToPub(digest.Bytes(), sig)
		if err != nil {
			return errors.WithMessage(gov.ErrNotAuthorized, "malformed signature")
		}
		addr := agora.Address(crypto.PubkeyToAddress(*pub))
		if !c.signers[addr] {
			return errors.WithMessagef(gov.ErrNotAuthorized, "%v is not an authorized signer", addr)
		}
		seen[addr] = true
	}
	if len(seen) < c.threshold {
		return errors.WithMessagef(gov.ErrInsufficientSignatures,
			"%d of %d required approvals", len(seen), c.threshold)
	}
	return nil
}

func idKey(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

func (c *Controller) nextID() (uint64, error) {
	var id uint64
	data, err := c.store.Get(counterKey)
	if err != nil {
		if !c.store.IsNotFound(err) {
			return 0, err
		}
	} else {
		id = binary.BigEndian.Uint64(data)
	}
	return id + 1, nil
}

// NextNonce returns the nonce signers must sign over for the next action.
func (c *Controller) NextNonce() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextID()
}

func (c *Controller) getAction(id uint64) (*ActionRecord, error) {
	data, err := c.actions.Get(idKey(id))
	if err != nil {
		if c.actions.IsNotFound(err) {
			return nil, errors.WithMessagef(gov.ErrUnknownEmergency, "emergency action %d", id)
		}
		return nil, err
	}
	var rec ActionRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Controller) putAction(rec *ActionRecord) error {
	data, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return err
	}
	return c.actions.Put(idKey(rec.ID), data)
}

func (c *Controller) record(op Op, name string, value, old *big.Int, now uint64) (*ActionRecord, error) {
	id, err := c.nextID()
	if err != nil {
		return nil, err
	}
	window, err := c.params.GetUint64(agora.KeyRatificationWindow)
	if err != nil {
		return nil, err
	}
	rec := &ActionRecord{
		ID:       id,
		Op:       op,
		Name:     name,
		Value:    value,
		OldValue: old,
		TakenAt:  now,
		Deadline: now + window,
	}
	if err := c.putAction(rec); err != nil {
		return nil, err
	}
	if err := c.store.Put(counterKey, idKey(id)); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Controller) setPaused(paused bool) error {
	if paused {
		return c.store.Put(pausedKey, []byte{1})
	}
	return c.store.Put(pausedKey, []byte{0})
}

// SetPaused flips the pause flag without a signature bundle. Reserved for
// governance-approved pause control actions; the multisig path goes through
// Pause and Resume.
func (c *Controller) SetPaused(paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPaused(paused)
}

// Paused reports whether the emergency pause is in effect.
func (c *Controller) Paused() (bool, error) {
	data, err := c.store.Get(pausedKey)
	if err != nil {
		if c.store.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return len(data) == 1 && data[0] == 1, nil
}

// Pause halts execution-side mutation immediately, bypassing voting and
// timelock, provided the signature threshold is met.
func (c *Controller) Pause(sigs [][]byte, now uint64) (*ActionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.nextID()
	if err != nil {
		return nil, err
	}
	if err := c.verify(Digest(OpPause, "", nil, id), sigs); err != nil {
		return nil, err
	}
	if err := c.setPaused(true); err != nil {
		return nil, err
	}
	rec, err := c.record(OpPause, "", nil, nil, now)
	if err != nil {
		return nil, err
	}
	logger.Warn("system paused by emergency multisig", "action", rec.ID)
	return rec, nil
}

// Resume lifts the pause, provided the signature threshold is met.
func (c *Controller) Resume(sigs [][]byte, now uint64) (*ActionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.nextID()
	if err != nil {
		return nil, err
	}
	if err := c.verify(Digest(OpResume, "", nil, id), sigs); err != nil {
		return nil, err
	}
	if err := c.setPaused(false); err != nil {
		return nil, err
	}
	rec, err := c.record(OpResume, "", nil, nil, now)
	if err != nil {
		return nil, err
	}
	logger.Warn("system resumed by emergency multisig", "action", rec.ID)
	return rec, nil
}

// ParameterChange sets a whitelisted parameter immediately, bypassing voting
// and timelock. The new value must still satisfy the parameter's bounds,
// which by construction lie within the absolute limits.
func (c *Controller) ParameterChange(name string, value *big.Int, sigs [][]byte, now uint64) (*ActionRecord, *gov.ParameterChangedEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	eligible, err := c.params.EmergencyEligible(name)
	if err != nil {
		return nil, nil, err
	}
	if !eligible {
		return nil, nil, errors.WithMessagef(gov.ErrNotEmergencyEligible, "parameter %q", name)
	}

	id, err := c.nextID()
	if err != nil {
		return nil, nil, err
	}
	if err := c.verify(Digest(OpParameterChange, name, value, id), sigs); err != nil {
		return nil, nil, err
	}

	ev, err := c.params.Set(name, value, agora.EmergencyAddress, now)
	if err != nil {
		return nil, nil, err
	}
	rec, err := c.record(OpParameterChange, name, value, ev.OldValue, now)
	if err != nil {
		return nil, nil, err
	}
	logger.Warn("emergency parameter change", "action", rec.ID, "name", name, "old", ev.OldValue, "new", value)
	return rec, ev, nil
}

// Ratify marks the emergency action ratified by the given proposal. Called
// when a proposal carrying an EmergencyRatify action executes.
func (c *Controller) Ratify(actionID, proposalID, now uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.getAction(actionID)
	if err != nil {
		return err
	}
	rec.Ratified = true
	rec.RatifiedBy = proposalID
	if err := c.putAction(rec); err != nil {
		return err
	}
	logger.Info("emergency action ratified", "action", actionID, "proposal", proposalID)
	return nil
}

// Unratify reverts a ratification. Rollback path of the action journal.
func (c *Controller) Unratify(actionID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.getAction(actionID)
	if err != nil {
		return err
	}
	rec.Ratified = false
	rec.RatifiedBy = 0
	return c.putAction(rec)
}

// Action returns the record of the given emergency action.
func (c *Controller) Action(id uint64) (*ActionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getAction(id)
}

// Actions returns all emergency action records, in id order.
func (c *Controller) Actions() ([]*ActionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*ActionRecord
	iter := c.actions.NewIterator(kv.Range{})
	defer iter.Release()
	for iter.Next() {
		var rec ActionRecord
		if err := rlp.DecodeBytes(iter.Value(), &rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, iter.Error()
}

// Outstanding returns actions whose ratification window lapsed without a
// ratifying proposal. The outstanding condition is observable only; the
// actions themselves stay in effect until governance reverses them.
func (c *Controller) Outstanding(now uint64) ([]*ActionRecord, error) {
	all, err := c.Actions()
	if err != nil {
		return nil, err
	}
	var out []*ActionRecord
	for _, rec := range all {
		if !rec.Ratified && now > rec.Deadline {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FlagOverdue marks newly overdue actions and returns them, so the caller
// can emit the outstanding-ratification condition exactly once per action.
func (c *Controller) FlagOverdue(now uint64) ([]*ActionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var flagged []*ActionRecord
	iter := c.actions.NewIterator(kv.Range{})
	defer iter.Release()
	for iter.Next() {
		var rec ActionRecord
		if err := rlp.DecodeBytes(iter.Value(), &rec); err != nil {
			return nil, err
		}
		if rec.Ratified || rec.OverdueFlagged || now <= rec.Deadline {
			continue
		}
		rec.OverdueFlagged = true
		if err := c.putAction(&rec); err != nil {
			return nil, err
		}
		flagged = append(flagged, &rec)
	}
	return flagged, iter.Error()
}
