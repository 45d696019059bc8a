package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

type SQLiteStorage struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStorage opens the storage with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStorage(filename string) (SQLiteStorage, error) {
	if filename == "" {
		filename = ":memory:"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteStorage{}, fmt.Errorf("open sqlite db %q: %w", filename, err)
	}
	// one connection keeps in-memory dbs alive and avoids "database is locked"
	db.SetMaxOpenConns(1)
	statements := []string{
		"PRAGMA journal_mode=WAL",
		`CREATE TABLE IF NOT EXISTS buckets (
			name TEXT PRIMARY KEY,
			created_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			bucket TEXT NOT NULL,
			key TEXT NOT NULL,
			stored_at INTEGER,
			bytes BLOB,
			PRIMARY KEY (bucket, key)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return SQLiteStorage{}, fmt.Errorf("init sqlite db %q: %w", filename, err)
		}
	}
	return SQLiteStorage{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s SQLiteStorage) Open(ctx context.Context, name string) (Bucket, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO buckets (name, created_at) VALUES (?, ?)",
		name, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", name, err)
	}
	return SQLiteBucket{name: name, storage: s}, nil
}

func (s SQLiteStorage) Keys(ctx context.Context) ([]string, error) {
	// entries without a bucket row are listed too, so they can be deleted
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM buckets
		UNION SELECT DISTINCT bucket FROM entries
		ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s SQLiteStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	entries, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE bucket = ?", name)
	if err != nil {
		return false, err
	}
	buckets, err := tx.ExecContext(ctx, "DELETE FROM buckets WHERE name = ?", name)
	if err != nil {
		return false, err
	}
	entryRows, err := entries.RowsAffected()
	if err != nil {
		return false, err
	}
	bucketRows, err := buckets.RowsAffected()
	if err != nil {
		return false, err
	}
	return entryRows+bucketRows > 0, tx.Commit()
}

type SQLiteBucket struct {
	name    string
	storage SQLiteStorage
}

func (b SQLiteBucket) Name() string {
	return b.name
}

// AddAll writes all entries in one transaction.
func (b SQLiteBucket) AddAll(ctx context.Context, entries []Entry) error {
	b.storage.writeMutex.Lock()
	defer b.storage.writeMutex.Unlock()
	tx, err := b.storage.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM buckets WHERE name = ?)", b.name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", b.name, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrBucketDeleted, b.name)
	}
	for _, e := range entries {
		if e.Key == "" {
			return ErrEmptyKey
		}
		_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO entries
			(bucket, key, stored_at, bytes) VALUES (?, ?, ?, ?)`,
			b.name, e.Key, e.StoredAt.Unix(), e.Bytes)
		if err != nil {
			return fmt.Errorf("store %q: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

func (b SQLiteBucket) Put(ctx context.Context, entry Entry) error {
	return b.AddAll(ctx, []Entry{entry})
}

func (b SQLiteBucket) Match(ctx context.Context, key string) (Entry, bool, error) {
	entry := Entry{Key: key}
	var storedAt int64
	err := b.storage.db.QueryRowContext(ctx,
		"SELECT stored_at, bytes FROM entries WHERE bucket = ? AND key = ?",
		b.name, key).Scan(&storedAt, &entry.Bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	entry.StoredAt = time.Unix(storedAt, 0)
	return entry, true, nil
}

func (b SQLiteBucket) Keys(ctx context.Context) ([]string, error) {
	rows, err := b.storage.db.QueryContext(ctx,
		"SELECT key FROM entries WHERE bucket = ? ORDER BY key", b.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
