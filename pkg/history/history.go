// Package history persists run-summary metadata across simulator
// invocations — it never snapshots live simulation state (routing
// tables, MAC tables, scheduler queues are all in-memory only, per the
// "no persistence of simulation state" non-goal). Grounded on the
// teacher's pkg/storage/storage.go BoltDB run ledger, extended with the
// two things a per-topology simulation ledger needs that a flat
// packet-capture run ledger doesn't: a secondary index so a caller can
// ask "every past run of this topology" without a full bucket scan, and
// protocol-outcome fields (which bridges converged to root, how many
// routes each router installed) that only this domain has.
package history

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	runBucket      = "runs"
	topologyBucket = "runs_by_topology"
)

// Store wraps a BoltDB instance holding simulation run summaries.
type Store struct {
	db *bbolt.DB
}

// RunSummary captures the outcome of one simulation run.
type RunSummary struct {
	ID           uint64        `json:"id"`
	TopologyPath string        `json:"topology_path"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	SimSeconds   float64       `json:"sim_seconds"`
	NodeCount    int           `json:"node_count"`
	LinkCount    int           `json:"link_count"`
	FramesSent   uint64        `json:"frames_sent"`
	Errors       uint64        `json:"errors"`

	// StpRootBridges names every switch that, at the end of this run,
	// reported IsRoot() true for at least one of its Spanning Tree
	// instances (per §8 property 4, a converged single-instance domain
	// has exactly one; a PVST domain may have more than one, one per
	// VLAN).
	StpRootBridges []string `json:"stp_root_bridges,omitempty"`

	// RouteCounts maps router node name to the number of routes
	// installed in its table at the end of this run (static plus
	// dynamically-learned), letting a caller spot a router that never
	// converged without re-running the simulation.
	RouteCounts map[string]int `json:"route_counts,omitempty"`
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(topologyBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun appends a run summary, assigning it the next sequence id and
// indexing it under its topology path for RunsForTopology.
func (s *Store) RecordRun(summary RunSummary) error {
	if s == nil || s.db == nil {
		return errors.New("history: store not initialised")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runBucket))
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		summary.ID = id

		data, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		if err := b.Put(itob(id), data); err != nil {
			return err
		}

		byTopo := tx.Bucket([]byte(topologyBucket))
		return byTopo.Put(topologyIndexKey(summary.TopologyPath, id), itob(id))
	})
}

// Runs returns the most recent run summaries, most recent first, up to
// limit entries (defaulting to 20 when limit <= 0).
func (s *Store) Runs(limit int) ([]RunSummary, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history: store not initialised")
	}
	if limit <= 0 {
		limit = 20
	}

	summaries := make([]RunSummary, 0, limit)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(summaries) < limit; k, v = c.Prev() {
			var rec RunSummary
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			summaries = append(summaries, rec)
		}
		return nil
	})
	return summaries, err
}

// RunsForTopology returns the most recent run summaries recorded against
// topologyPath, most recent first, up to limit entries (defaulting to 20
// when limit <= 0). Unlike Runs, this never scans a record belonging to a
// different topology, however large the run bucket has grown.
func (s *Store) RunsForTopology(topologyPath string, limit int) ([]RunSummary, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history: store not initialised")
	}
	if limit <= 0 {
		limit = 20
	}

	var ids []uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		prefix := topologyIndexKey(topologyPath, 0)[:len(topologyPath)+1]
		c := tx.Bucket([]byte(topologyBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			ids = append(ids, btoi(v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Index keys sort oldest-first (the run id is the trailing,
	// big-endian-encoded suffix); reverse so the result matches Runs'
	// most-recent-first order, then cap at limit.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	summaries := make([]RunSummary, 0, len(ids))
	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runBucket))
		for _, id := range ids {
			v := b.Get(itob(id))
			if v == nil {
				continue
			}
			var rec RunSummary
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			summaries = append(summaries, rec)
		}
		return nil
	})
	return summaries, err
}

// topologyIndexKey builds the runs_by_topology key: the topology path, a
// NUL separator (paths never contain one), then the run id so entries for
// the same topology sort oldest-first under Seek/Next.
func topologyIndexKey(topologyPath string, id uint64) []byte {
	key := append([]byte(topologyPath), 0)
	return append(key, itob(id)...)
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}

func itob(v uint64) []byte {
	var b [8]byte
	for i := uint(0); i < 8; i++ {
		b[7-i] = byte(v >> (i * 8))
	}
	return b[:]
}

func btoi(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
