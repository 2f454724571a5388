// internal/database/database.go
package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DB wraps the PostgreSQL connection used for document snapshots.
type DB struct {
	conn *sqlx.DB
}

// Document is a persisted snapshot: the buffer in its wire form plus the
// state vector it was taken at. The request log is not persisted.
type Document struct {
	ID        string          `db:"id"`
	Content   json.RawMessage `db:"content"`
	Vector    string          `db:"vector"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	content    JSONB NOT NULL,
	vector     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewDB connects to PostgreSQL and ensures the snapshot table exists.
func NewDB(host, port, user, password, name string) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, name)

	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetDocument loads a snapshot by id. Returns (nil, nil) when the document
// does not exist.
func (db *DB) GetDocument(id string) (*Document, error) {
	var doc Document
	err := db.conn.Get(&doc, `SELECT id, content, vector, created_at, updated_at FROM documents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return &doc, nil
}

// SaveDocument upserts a snapshot.
func (db *DB) SaveDocument(id string, content []byte, vector string) error {
	_, err := db.conn.Exec(`
		INSERT INTO documents (id, content, vector, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content, vector = EXCLUDED.vector, updated_at = now()`,
		id, content, vector)
	if err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	return nil
}

// DeleteDocument removes a snapshot.
func (db *DB) DeleteDocument(id string) error {
	_, err := db.conn.Exec(`DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}
