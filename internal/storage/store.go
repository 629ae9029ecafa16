// Package storage owns all persisted state: the SQLite schema, the single
// writer task every mutation flows through, the cleanup task, and the read
// queries the HTTP API serves.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// ErrDbBusy marks a transient lock conflict; the writer retries with backoff.
var ErrDbBusy = errors.New("database busy")

// ErrDbFatal marks schema mismatches and I/O failures; the process exits.
var ErrDbFatal = errors.New("database fatal")

const busyTimeout = 5 * time.Second

// Store wraps the write connection (one, serialized) and the pooled read
// connections.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB
	path    string
}

// Open opens (creating if needed) the database with WAL journaling, NORMAL
// synchronous writes, and a 5s busy timeout, then applies migrations.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	if path == ":memory:" {
		// WAL has no meaning for an in-memory database.
		dsn = path + "?_busy_timeout=5000&_foreign_keys=on"
	}

	writeDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrDbFatal, path, err)
	}
	writeDB.SetMaxOpenConns(1)

	if err := Migrate(writeDB); err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("%w: migrating %s: %v", ErrDbFatal, path, err)
	}

	store := &Store{writeDB: writeDB, path: path}

	// In-memory databases exist per connection; readers share the writer.
	if path == ":memory:" {
		store.readDB = writeDB
		return store, nil
	}

	readDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("%w: opening read pool: %v", ErrDbFatal, err)
	}
	readDB.SetMaxOpenConns(4)
	store.readDB = readDB
	return store, nil
}

// ReadDB returns the pooled read-only handle. Readers never begin write
// transactions.
func (s *Store) ReadDB() *sql.DB {
	return s.readDB
}

// Close closes both handles.
func (s *Store) Close() error {
	if s.readDB != nil && s.readDB != s.writeDB {
		_ = s.readDB.Close()
	}
	return s.writeDB.Close()
}

// isBusy reports whether an error is a transient lock conflict.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// withRetry runs fn inside a transaction, retrying busy conflicts with
// exponential backoff up to the busy timeout, then gives up with ErrDbBusy.
// The observation behind a dropped batch is lost from storage but counted.
func (s *Store) withRetry(fn func(tx *sql.Tx) error) error {
	backoff := 50 * time.Millisecond
	deadline := time.Now().Add(busyTimeout)

	for {
		err := s.runTx(fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		if time.Now().After(deadline) {
			log.Warn().Err(err).Msg("write batch dropped after busy retries")
			return fmt.Errorf("%w: %v", ErrDbBusy, err)
		}
		time.Sleep(backoff)
		if backoff < time.Second {
			backoff *= 2
		}
	}
}

func (s *Store) runTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.writeDB.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
