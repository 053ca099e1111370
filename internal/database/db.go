package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the SQLite database connection
type DB struct {
	db  *sql.DB
	ids *IDGenerator
}

// Open opens a connection to the SQLite database at the specified path and
// applies the schema
func Open(path string) (*DB, error) {
	// WAL keeps a row either fully written or absent if the process dies mid-insert
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(1) // SQLite works best with a single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Test the connection
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := New(conn)
	if err := db.Init(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// New wraps an already opened connection. The schema is not applied.
func New(conn *sql.DB) *DB {
	return &DB{db: conn, ids: NewIDGenerator(time.Now)}
}

// Init initializes the database schema by creating all tables and indexes
func (d *DB) Init(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, Schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SetIDGenerator replaces the generator used to stamp new rows
func (d *DB) SetIDGenerator(g *IDGenerator) {
	d.ids = g
}

// Close closes the database connection
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Conn returns the underlying *sql.DB connection for direct use
func (d *DB) Conn() *sql.DB {
	return d.db
}

// Health checks if the database connection is healthy
func (d *DB) Health(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
