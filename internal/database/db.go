// Package database provides the BoltDB-backed store for direwatch
package database

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/direwatch/direwatch/pkg/logger"
)

// Database buckets
const (
	// BucketRuns stores execution history records
	BucketRuns = "runs"
)

// Manager manages the BoltDB database connection
type Manager struct {
	DB      *bolt.DB
	path    string
	logger  *zap.Logger
	mu      sync.RWMutex
	isOpen  bool
	options *Options
}

// Options represents database options
type Options struct {
	Path     string        `json:"path"`
	FileMode uint32        `json:"file_mode"`
	Timeout  time.Duration `json:"timeout"`
	ReadOnly bool          `json:"read_only"`
}

// DefaultOptions returns default database options
func DefaultOptions() *Options {
	home, _ := os.UserHomeDir()
	return &Options{
		Path:     filepath.Join(home, ".direwatch", "direwatch.db"),
		FileMode: 0600,
		Timeout:  1 * time.Second,
	}
}

// NewManager creates a new database manager
func NewManager(options *Options) *Manager {
	if options == nil {
		options = DefaultOptions()
	}

	return &Manager{
		path:    options.Path,
		logger:  logger.Get(),
		options: options,
	}
}

// Open opens the database connection and initializes the buckets
func (m *Manager) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isOpen {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(m.path, os.FileMode(m.options.FileMode), &bolt.Options{
		Timeout:  m.options.Timeout,
		ReadOnly: m.options.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	m.DB = db
	m.isOpen = true

	if !m.options.ReadOnly {
		if err := m.initBuckets(); err != nil {
			m.DB.Close()
			m.isOpen = false
			return fmt.Errorf("failed to initialize buckets: %w", err)
		}
	}

	m.logger.Debug("Database opened", zap.String("path", m.path))
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isOpen || m.DB == nil {
		return nil
	}

	if err := m.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	m.isOpen = false
	return nil
}

// initBuckets initializes all required buckets
func (m *Manager) initBuckets() error {
	return m.DB.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketRuns)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", BucketRuns, err)
		}
		return nil
	})
}

// IsOpen checks if the database is open
func (m *Manager) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isOpen
}

// Transaction executes a function within a database transaction
func (m *Manager) Transaction(writable bool, fn func(*bolt.Tx) error) error {
	if !m.IsOpen() {
		return fmt.Errorf("database is not open")
	}

	if writable {
		return m.DB.Update(fn)
	}
	return m.DB.View(fn)
}

// Put stores a key-value pair in a bucket
func (m *Manager) Put(bucket, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return m.Transaction(true, func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return b.Put([]byte(key), data)
	})
}
