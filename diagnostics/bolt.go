package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("diagnostics report not found")

var bucketRequests = []byte("requests")

// BoltStore keeps reports in a local bbolt file keyed by request ID.
type BoltStore struct {
	db *bbolt.DB
}

var _ Recorder = (*BoltStore)(nil)

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRequests); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketRequests, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Record(_ context.Context, report Report) error {
	if report.RequestID == "" {
		return fmt.Errorf("record diagnostics: missing request id")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRequests).Put([]byte(report.RequestID), data)
	})
}

func (s *BoltStore) Get(requestID string) (Report, error) {
	var report Report
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRequests).Get([]byte(requestID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, requestID)
		}
		return json.Unmarshal(data, &report)
	})
	return report, err
}

// List returns up to limit reports, most recent first. limit <= 0 returns all.
func (s *BoltStore) List(limit int) ([]Report, error) {
	reports := make([]Report, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRequests).ForEach(func(_, v []byte) error {
			var r Report
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			reports = append(reports, r)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list diagnostics: %w", err)
	}

	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].StartedAt.Equal(reports[j].StartedAt) {
			return reports[i].StartedAt.After(reports[j].StartedAt)
		}
		return reports[i].RequestID < reports[j].RequestID
	})
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
