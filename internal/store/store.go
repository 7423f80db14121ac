package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3" // CGO driver: FTS5 + R-tree + math functions
	_ "modernc.org/sqlite"          // Pure Go fallback driver

	yserrors "github.com/yetidevworks/yetisearch-sub000/internal/errors"
	"github.com/yetidevworks/yetisearch-sub000/internal/logging"
)

// Config configures the storage handle.
type Config struct {
	// Path is the database file. Empty means in-memory.
	Path string
	// Driver selects the SQLite driver: "sqlite3" (CGO, default) or
	// "modernc" (pure Go).
	Driver string
	// ExternalContent switches new indexes to the external-content layout.
	ExternalContent bool
	// ExclusiveLock guards the database with a cross-process file lock.
	ExclusiveLock bool
	// StatementCacheSize bounds the prepared-statement LRU (default 50).
	StatementCacheSize int
	// Tokenizer splits text for the term vocabulary. Defaults to a plain
	// whitespace split; the engine injects its analyzer here.
	Tokenizer func(string) []string
	// Logger receives storage diagnostics. Nil discards.
	Logger *slog.Logger
}

// capabilities records what the connected runtime supports. A missing
// capability activates a documented fallback, never an error.
type capabilities struct {
	fts5      bool
	rtree     bool
	mathFuncs bool
}

// Storage is a single-connection handle over one search database. Writes
// are serialised behind mu; reads share the same connection sequentially,
// matching the single-threaded-per-handle model.
type Storage struct {
	mu     sync.Mutex
	db     *sql.DB
	cfg    Config
	caps   capabilities
	stmts  *stmtCache
	lock   *flock.Flock
	log    *slog.Logger
	closed bool

	indexes map[string]*indexMeta

	// onWrite, when set, is invoked with the index name after any
	// successful mutation. The engine uses it to invalidate caches.
	onWrite func(index string)
}

// Connect opens (or creates) the database and probes its capabilities.
func Connect(cfg Config) (*Storage, error) {
	if cfg.StatementCacheSize <= 0 {
		cfg.StatementCacheSize = 50
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	driver := "sqlite3"
	if strings.EqualFold(cfg.Driver, "modernc") {
		driver = "sqlite"
	}

	dsn := ":memory:"
	var lock *flock.Flock
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, yserrors.Wrap(yserrors.ErrCodeStorageConnect, "create database directory", err)
		}
		if cfg.ExclusiveLock {
			lock = flock.New(cfg.Path + ".lock")
			ok, err := lock.TryLock()
			if err != nil {
				return nil, yserrors.Wrap(yserrors.ErrCodeStorageLocked, "acquire exclusive lock", err)
			}
			if !ok {
				return nil, yserrors.New(yserrors.ErrCodeStorageLocked, "database locked by another process")
			}
		}
		if err := validateIntegrity(driver, cfg.Path); err != nil {
			if lock != nil {
				_ = lock.Unlock()
			}
			return nil, yserrors.Wrap(yserrors.ErrCodeStorageCorrupt, "database failed integrity check", err)
		}
		dsn = cfg.Path
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, yserrors.Wrap(yserrors.ErrCodeStorageConnect, "open database", err)
	}

	// One connection: WAL allows concurrent readers in other handles while
	// this handle serialises its own work.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Tuned for bulk writes; durability is the caller's trade-off.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = OFF",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			if lock != nil {
				_ = lock.Unlock()
			}
			return nil, yserrors.Wrap(yserrors.ErrCodeStorageConnect, "set pragma", err)
		}
	}
	_, _ = db.Exec("PRAGMA optimize")

	s := &Storage{
		db:      db,
		cfg:     cfg,
		lock:    lock,
		log:     log,
		indexes: make(map[string]*indexMeta),
	}
	s.stmts = newStmtCache(db, cfg.StatementCacheSize)
	s.caps = probeCapabilities(db)
	log.Debug("storage connected",
		"driver", driver,
		"fts5", s.caps.fts5,
		"rtree", s.caps.rtree,
		"math", s.caps.mathFuncs)

	if err := s.initGlobalMeta(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// validateIntegrity runs a quick integrity check before reusing an
// existing database file. Corruption surfaces as a storage error; the
// library never deletes user data on its own.
func validateIntegrity(driver, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open(driver, path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// probeCapabilities discovers FTS5, R-tree and SQL math support by
// attempting each feature against a throwaway object.
func probeCapabilities(db *sql.DB) capabilities {
	var caps capabilities

	if _, err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS _probe_fts USING fts5(x)`); err == nil {
		caps.fts5 = true
		_, _ = db.Exec(`DROP TABLE IF EXISTS _probe_fts`)
	}
	if _, err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS _probe_rtree USING rtree(id, minx, maxx)`); err == nil {
		caps.rtree = true
		_, _ = db.Exec(`DROP TABLE IF EXISTS _probe_rtree`)
	}
	var v float64
	if err := db.QueryRow(`SELECT cos(0.0) + sin(0.0) + sqrt(4.0)`).Scan(&v); err == nil {
		caps.mathFuncs = true
	}
	return caps
}

// initGlobalMeta creates the cross-index settings table.
func (s *Storage) initGlobalMeta() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS yetisearch_metadata (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	)`)
	return yserrors.Wrap(yserrors.ErrCodeStorageSchema, "create metadata table", err)
}

// SetGlobalMeta stores a cross-index setting.
func (s *Storage) SetGlobalMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO yetisearch_metadata(key, value, updated_at)
		VALUES (?, ?, strftime('%s','now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "write metadata", err)
}

// GetGlobalMeta reads a cross-index setting. Missing keys return "".
func (s *Storage) GetGlobalMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM yetisearch_metadata WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, yserrors.Wrap(yserrors.ErrCodeStorageRead, "read metadata", err)
}

// OnWrite registers the engine's cache-invalidation hook.
func (s *Storage) OnWrite(fn func(index string)) {
	s.onWrite = fn
}

// notifyWrite fires the write hook outside any transaction.
func (s *Storage) notifyWrite(index string) {
	if s.onWrite != nil {
		s.onWrite(index)
	}
}

// HasRTree reports whether the runtime provides the R-tree module.
func (s *Storage) HasRTree() bool { return s.caps.rtree }

// HasMathFunctions reports whether SQL trigonometry is available.
func (s *Storage) HasMathFunctions() bool { return s.caps.mathFuncs }

// Optimize runs PRAGMA optimize plus an FTS merge on every index.
func (s *Storage) Optimize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return yserrors.ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "optimize", err)
	}
	names, err := s.listIndicesLocked(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		stmt := fmt.Sprintf(`INSERT INTO %s(%s) VALUES('optimize')`, quoteIdent(name+"_fts"), quoteIdent(name+"_fts"))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.log.Warn("fts optimize failed", "index", name, "error", err)
		}
	}
	return nil
}

// Close releases the connection, prepared statements and the file lock.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stmts.purge()
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return yserrors.Wrap(yserrors.ErrCodeStorageConnect, "close database", err)
}

// quoteIdent quotes an SQL identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
