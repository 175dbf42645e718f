// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package auditdb persists the engine's outbound events as an append-only
// audit log, queryable by indexers and portals.
package auditdb

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	// sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const schema = `CREATE TABLE IF NOT EXISTS audit (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	proposal_id INTEGER NOT NULL DEFAULT 0,
	actor TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	old_value TEXT NOT NULL DEFAULT '',
	new_value TEXT NOT NULL DEFAULT '',
	ts INTEGER NOT NULL,
	payload TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_type ON audit(type);
CREATE INDEX IF NOT EXISTS audit_proposal ON audit(proposal_id);`

// Record is one audit log entry.
type Record struct {
	Seq        uint64 `json:"seq"`
	Type       string `json:"type"`
	ProposalID uint64 `json:"proposalID,omitempty"`
	Actor      string `json:"actor,omitempty"`
	Name       string `json:"name,omitempty"`
	OldValue   string `json:"oldValue,omitempty"`
	NewValue   string `json:"newValue,omitempty"`
	Timestamp  uint64 `json:"timestamp"`
	Payload    string `json:"payload,omitempty"`
}

// OrderType of query results.
type OrderType string

const (
	ASC  OrderType = "ASC"
	DESC OrderType = "DESC"
)

// Filter narrows a query.
type Filter struct {
	Type       string
	ProposalID uint64 // 0 matches any
	Order      OrderType
	Offset     uint64
	Limit      uint64
}

// AuditDB manages the audit log.
type AuditDB struct {
	path string
	db   *sql.DB
	wmu  sync.Mutex
}

// New opens (or creates) the audit db at path.
func New(path string) (*AuditDB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open audit db")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init audit db schema")
	}
	return &AuditDB{path: path, db: db}, nil
}

var memSeq atomic.Uint64

// NewMem creates an in-memory audit db, for test & dev. Each call gets its
// own database.
func NewMem() (*AuditDB, error) {
	dsn := fmt.Sprintf("file:auditdb-mem-%d?mode=memory&cache=shared", memSeq.Add(1))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open audit db")
	}
	// a memory db vanishes when its last connection closes
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init audit db schema")
	}
	return &AuditDB{db: db}, nil
}

// Write appends a record, filling in its sequence number.
func (a *AuditDB) Write(rec *Record) error {
	a.wmu.Lock()
	defer a.wmu.Unlock()

	res, err := a.db.Exec(
		`INSERT INTO audit(type, proposal_id, actor, name, old_value, new_value, ts, payload)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Type, rec.ProposalID, rec.Actor, rec.Name, rec.OldValue, rec.NewValue, rec.Timestamp, rec.Payload,
	)
	if err != nil {
		return errors.Wrap(err, "write audit record")
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.Seq = uint64(seq)
	return nil
}

// Query returns records matching the filter, in sequence order.
func (a *AuditDB) Query(f *Filter) ([]*Record, error) {
	if f == nil {
		f = &Filter{}
	}
	query := `SELECT seq, type, proposal_id, actor, name, old_value, new_value, ts, payload FROM audit WHERE 1=1`
	var args []any
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if f.ProposalID != 0 {
		query += ` AND proposal_id = ?`
		args = append(args, f.ProposalID)
	}
	if f.Order == DESC {
		query += ` ORDER BY seq DESC`
	} else {
		query += ` ORDER BY seq ASC`
	}
	limit := f.Limit
	if limit == 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT %d OFFSET %d`, limit, f.Offset)

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query audit records")
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Seq, &rec.Type, &rec.ProposalID, &rec.Actor, &rec.Name,
			&rec.OldValue, &rec.NewValue, &rec.Timestamp, &rec.Payload); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Path returns the db file path, empty for in-memory instances.
func (a *AuditDB) Path() string {
	return a.path
}

// Close closes the db.
func (a *AuditDB) Close() error {
	return a.db.Close()
}
