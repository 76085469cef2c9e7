// Package config holds the immutable connection configuration and its DSN
// rendering for the native engine.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Journal modes accepted by the native engine.
const (
	JournalDelete   = "DELETE"
	JournalTruncate = "TRUNCATE"
	JournalPersist  = "PERSIST"
	JournalMemory   = "MEMORY"
	JournalWAL      = "WAL"
	JournalOff      = "OFF"
)

// Synchronous levels accepted by the native engine.
const (
	SyncOff    = "OFF"
	SyncNormal = "NORMAL"
	SyncFull   = "FULL"
	SyncExtra  = "EXTRA"
)

// Config describes one database connection. The zero value is not useful;
// start from Default and derive with the With* transforms.
//
// Config is a value type: every With* returns a modified copy, so a Config
// handed to a connection can never change under it.
type Config struct {
	// Path is the database file path, or ":memory:" for an in-memory
	// database private to the connection.
	Path string

	// BusyTimeout is how long the engine retries when another connection
	// holds a conflicting lock.
	BusyTimeout time.Duration

	// JournalMode selects the engine's journaling strategy.
	JournalMode string

	// Synchronous selects how aggressively the engine flushes to disk.
	Synchronous string

	// ForeignKeys enables foreign key constraint enforcement.
	ForeignKeys bool

	// CacheKB is the page cache size in kibibytes. Zero keeps the engine
	// default.
	CacheKB int

	// ReadOnly opens the database without write access.
	ReadOnly bool
}

// Default returns the baseline configuration: in-memory database, WAL-style
// durability settings that match what the engine recommends for embedded use.
func Default() Config {
	return Config{
		Path:        ":memory:",
		BusyTimeout: 5 * time.Second,
		JournalMode: JournalWAL,
		Synchronous: SyncNormal,
		ForeignKeys: true,
	}
}

// WithPath returns a copy with the database file path set.
func (c Config) WithPath(path string) Config {
	c.Path = path
	return c
}

// WithBusyTimeout returns a copy with the lock retry window set.
func (c Config) WithBusyTimeout(d time.Duration) Config {
	c.BusyTimeout = d
	return c
}

// WithJournalMode returns a copy with the journal mode set.
func (c Config) WithJournalMode(mode string) Config {
	c.JournalMode = mode
	return c
}

// WithSynchronous returns a copy with the synchronous level set.
func (c Config) WithSynchronous(level string) Config {
	c.Synchronous = level
	return c
}

// WithForeignKeys returns a copy with foreign key enforcement toggled.
func (c Config) WithForeignKeys(on bool) Config {
	c.ForeignKeys = on
	return c
}

// WithCacheKB returns a copy with the page cache size set.
func (c Config) WithCacheKB(kb int) Config {
	c.CacheKB = kb
	return c
}

// WithReadOnly returns a copy opened without write access.
func (c Config) WithReadOnly(on bool) Config {
	c.ReadOnly = on
	return c
}

// Validate checks the configuration for values the engine would reject.
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("config: path must not be empty")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("config: busy timeout must not be negative")
	}
	if c.CacheKB < 0 {
		return fmt.Errorf("config: cache size must not be negative")
	}

	switch strings.ToUpper(c.JournalMode) {
	case "", JournalDelete, JournalTruncate, JournalPersist, JournalMemory, JournalWAL, JournalOff:
	default:
		return fmt.Errorf("config: unknown journal mode %q", c.JournalMode)
	}

	switch strings.ToUpper(c.Synchronous) {
	case "", SyncOff, SyncNormal, SyncFull, SyncExtra:
	default:
		return fmt.Errorf("config: unknown synchronous level %q", c.Synchronous)
	}

	return nil
}

// DSN renders the connection string the SQLite adapter understands.
//
// The parameter names follow mattn/go-sqlite3's connection string format:
// _busy_timeout in milliseconds, _journal_mode, _synchronous, _foreign_keys,
// cache_size in negative kibibytes, mode=ro for read-only.
func (c Config) DSN() string {
	params := url.Values{}

	if c.BusyTimeout > 0 {
		params.Set("_busy_timeout", fmt.Sprintf("%d", c.BusyTimeout.Milliseconds()))
	}
	if c.JournalMode != "" {
		params.Set("_journal_mode", strings.ToUpper(c.JournalMode))
	}
	if c.Synchronous != "" {
		params.Set("_synchronous", strings.ToUpper(c.Synchronous))
	}
	if c.ForeignKeys {
		params.Set("_foreign_keys", "on")
	}
	if c.CacheKB > 0 {
		// Negative cache_size means "size in KiB" to the engine.
		params.Set("_cache_size", fmt.Sprintf("-%d", c.CacheKB))
	}
	if c.ReadOnly {
		params.Set("mode", "ro")
	}

	if len(params) == 0 {
		return c.Path
	}

	// Encode with stable key order so the same Config always renders the
	// same DSN (url.Values.Encode sorts by key).
	return c.Path + "?" + params.Encode()
}
