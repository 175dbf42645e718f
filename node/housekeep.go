// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"context"
	"time"

	"github.com/agora-dao/agora/gov"
)

// Run drives the periodic housekeeping sweep until ctx is done. There are no
// per-proposal timers; every deadline is rechecked against the clock each
// tick, which keeps restarts trivial.
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.opts.HousekeepInterval)
	defer ticker.Stop()

	logger.Info("housekeeping started", "interval", n.opts.HousekeepInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.Housekeep(n.now())
		}
	}
}

// Housekeep performs one sweep: finalizes ended voting windows, expires
// stale timelock entries, flags overdue ratifications and prunes snapshots
// no open proposal can still reference.
func (n *Node) Housekeep(now uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	open, err := n.registry.Open()
	if err != nil {
		logger.Error("housekeeping: open index scan failed", "err", err)
		return
	}
	metricOpenProposals().Set(int64(len(open)))

	var minSnapshot uint64
	if n.opts.SnapshotRetention < now {
		minSnapshot = now - n.opts.SnapshotRetention
	}

	for _, id := range open {
		p, err := n.registry.Get(id)
		if err != nil {
			logger.Error("housekeeping: load proposal failed", "id", id, "err", err)
			continue
		}
		if p.SnapshotIndex < minSnapshot {
			minSnapshot = p.SnapshotIndex
		}

		switch p.Status {
		case gov.StatePending:
			if now >= p.VotingEnd {
				if _, err := n.finalize(id); err != nil {
					logger.Error("housekeeping: finalize failed", "id", id, "err", err)
				}
			}
		case gov.StateQueued:
			expired, err := n.timelock.MarkExpired(id, now)
			if err != nil {
				logger.Error("housekeeping: expire check failed", "id", id, "err", err)
				continue
			}
			if expired {
				logger.Info("timelock entry expired unexecuted", "id", id)
				n.post(&gov.ProposalStateChangedEvent{ProposalID: id, Old: gov.StateQueued, New: gov.StateExpired})
			}
		}
	}

	flagged, err := n.emergency.FlagOverdue(now)
	if err != nil {
		logger.Error("housekeeping: overdue scan failed", "err", err)
	} else {
		for _, rec := range flagged {
			logger.Warn("emergency action ratification overdue", "action", rec.ID, "deadline", rec.Deadline)
			n.post(&gov.RatificationOverdueEvent{ActionID: rec.ID, Deadline: rec.Deadline})
		}
	}
	if outstanding, err := n.emergency.Outstanding(now); err == nil {
		metricOutstanding().Set(int64(len(outstanding)))
	}

	if minSnapshot > 0 {
		if pruned, err := n.ledger.PruneSnapshots(minSnapshot); err != nil {
			logger.Error("housekeeping: snapshot prune failed", "err", err)
		} else if pruned > 0 {
			logger.Debug("pruned ledger snapshots", "count", pruned, "before", minSnapshot)
		}
	}
}
