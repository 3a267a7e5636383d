// Package webhookdedup persists the set of processed checkout session
// ids so a redelivered webhook never books a tour twice.
package webhookdedup

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketSessions = []byte("processed_sessions")

// Store is a bbolt-backed set of processed session ids.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open webhook store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MarkProcessed records a session id. It returns false when the id was
// already present, i.e. the webhook is a redelivery.
func (s *Store) MarkProcessed(sessionID string) (bool, error) {
	first := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b.Get([]byte(sessionID)) != nil {
			return nil
		}
		first = true
		return b.Put([]byte(sessionID), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark session processed: %w", err)
	}
	return first, nil
}

// Unmark removes a session id so a retry of the same delivery is
// treated as first again. Called when processing fails after the mark.
func (s *Store) Unmark(sessionID string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(sessionID))
	})
	if err != nil {
		return fmt.Errorf("failed to unmark session: %w", err)
	}
	return nil
}
