// Package cache keeps a local SQLite copy of every content node kit so a
// restarted process can rehydrate without scanning the relational store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go-content-cache/internal/pubcache"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// KitStore is a SQLite-backed store of serialized kits, one row per node.
type KitStore struct {
	db *sqlx.DB
}

// New opens the SQLite database at filePath and ensures the kits table exists.
func New(filePath string) (*KitStore, error) {
	db, err := sqlx.Connect("sqlite", filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite kit store: %w", err)
	}
	// one writer at a time; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA journal_mode=WAL;")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode on sqlite kit store: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS kits (
		id INTEGER PRIMARY KEY,
		level INTEGER NOT NULL,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kits_level ON kits (level, id);
	`
	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kit store schema: %w", err)
	}

	return &KitStore{db: db}, nil
}

const upsertKit = `INSERT OR REPLACE INTO kits (id, level, payload, updated_at) VALUES (?, ?, ?, ?)`

// Put stores one kit, replacing any previous one. A delete kit removes the row.
func (c *KitStore) Put(ctx context.Context, kit pubcache.ContentNodeKit) error {
	if kit.IsDelete() {
		return c.Delete(ctx, kit.Node.ID)
	}
	payload, err := json.Marshal(kit)
	if err != nil {
		return fmt.Errorf("failed to encode kit %d: %w", kit.Node.ID, err)
	}
	if _, err := c.db.ExecContext(ctx, upsertKit, kit.Node.ID, kit.Node.Level, payload, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to put kit %d: %w", kit.Node.ID, err)
	}
	return nil
}

// PutAll stores kits in one transaction.
func (c *KitStore) PutAll(ctx context.Context, kits []pubcache.ContentNodeKit) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin kit store transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, kit := range kits {
		if kit.IsDelete() {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kits WHERE id = ?`, kit.Node.ID); err != nil {
				return fmt.Errorf("failed to delete kit %d: %w", kit.Node.ID, err)
			}
			continue
		}
		payload, err := json.Marshal(kit)
		if err != nil {
			return fmt.Errorf("failed to encode kit %d: %w", kit.Node.ID, err)
		}
		if _, err := tx.ExecContext(ctx, upsertKit, kit.Node.ID, kit.Node.Level, payload, now); err != nil {
			return fmt.Errorf("failed to put kit %d: %w", kit.Node.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit kits: %w", err)
	}
	return nil
}

// Delete removes the kit of one node.
func (c *KitStore) Delete(ctx context.Context, id int) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM kits WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete kit %d: %w", id, err)
	}
	return nil
}

// All returns every stored kit ordered by level, so parents come before children.
func (c *KitStore) All(ctx context.Context) ([]pubcache.ContentNodeKit, error) {
	var rows []struct {
		ID      int    `db:"id"`
		Payload []byte `db:"payload"`
	}
	if err := c.db.SelectContext(ctx, &rows, `SELECT id, payload FROM kits ORDER BY level, id`); err != nil {
		return nil, fmt.Errorf("failed to read kits: %w", err)
	}
	kits := make([]pubcache.ContentNodeKit, 0, len(rows))
	for _, row := range rows {
		var kit pubcache.ContentNodeKit
		if err := json.Unmarshal(row.Payload, &kit); err != nil {
			return nil, fmt.Errorf("failed to decode kit %d: %w", row.ID, err)
		}
		kits = append(kits, kit)
	}
	return kits, nil
}

// Count returns the number of stored kits.
func (c *KitStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM kits`); err != nil {
		return 0, fmt.Errorf("failed to count kits: %w", err)
	}
	return n, nil
}

// Clear removes every stored kit.
func (c *KitStore) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM kits`); err != nil {
		return fmt.Errorf("failed to clear kits: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *KitStore) Close() error {
	return c.db.Close()
}
