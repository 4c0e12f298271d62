package stream

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"goalfeed/internal/telemetry"

	_ "modernc.org/sqlite"
)

const (
	maxStoreBytes  int64 = 1 << 30 // 1 GiB
	evictBatchSize       = 100
	vacuumInterval       = 50
)

// Store persists raw stream messages in a FIFO SQLite database capped at
// ~1 GiB. Oldest rows are evicted when the budget is exceeded. All methods
// are nil-safe so the listener can run with persistence disabled.
type Store struct {
	db           *sql.DB
	mu           sync.Mutex
	cachedSize   int64
	evictCounter int
}

func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	var avMode int
	if err := db.QueryRow(`PRAGMA auto_vacuum`).Scan(&avMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("read auto_vacuum: %w", err)
	}
	if avMode != 2 { // 2 = INCREMENTAL
		if _, err := db.Exec(`PRAGMA auto_vacuum = INCREMENTAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("set auto_vacuum: %w", err)
		}
		if _, err := db.Exec(`VACUUM`); err != nil {
			telemetry.Warnf("payload store: VACUUM to enable auto_vacuum failed: %v", err)
		}
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS stream_payloads (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			kind      TEXT    NOT NULL,
			received  TEXT    NOT NULL,
			byte_size INTEGER NOT NULL,
			raw       BLOB    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sp_received ON stream_payloads(received)`,
		`CREATE INDEX IF NOT EXISTS idx_sp_kind     ON stream_payloads(kind)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init payload schema (%s): %w", stmt, err)
		}
	}

	var size int64
	row := db.QueryRow(`SELECT COALESCE(SUM(byte_size), 0) FROM stream_payloads`)
	if err := row.Scan(&size); err != nil {
		db.Close()
		return nil, fmt.Errorf("read current store size: %w", err)
	}

	telemetry.Infof("payload store: opened %s (%s stored)", path, humanize.Bytes(uint64(size)))

	return &Store{db: db, cachedSize: size}, nil
}

// Insert stores a raw message asynchronously.
func (s *Store) Insert(kind string, raw []byte) {
	if s == nil {
		return
	}
	rawLen := int64(len(raw))
	rawCopy := make([]byte, rawLen)
	copy(rawCopy, raw)

	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		_, err := s.db.Exec(
			`INSERT INTO stream_payloads (kind, received, byte_size, raw) VALUES (?, ?, ?, ?)`,
			kind,
			time.Now().UTC().Format(time.RFC3339Nano),
			rawLen,
			rawCopy,
		)
		if err != nil {
			telemetry.Warnf("payload store: insert failed: %v", err)
			return
		}

		s.cachedSize += rawLen
		if s.cachedSize > maxStoreBytes {
			s.evict()
		}
	}()
}

func (s *Store) evict() {
	for s.cachedSize > maxStoreBytes {
		var freed int64
		err := s.db.QueryRow(
			`WITH deleted AS (
				DELETE FROM stream_payloads
				WHERE id IN (SELECT id FROM stream_payloads ORDER BY id ASC LIMIT ?)
				RETURNING byte_size
			)
			SELECT COALESCE(SUM(byte_size), 0) FROM deleted`,
			evictBatchSize,
		).Scan(&freed)
		if err != nil {
			telemetry.Warnf("payload store: eviction query failed: %v", err)
			break
		}
		if freed == 0 {
			telemetry.Warnf("payload store: eviction freed 0 bytes, cachedSize=%s",
				humanize.Bytes(uint64(s.cachedSize)))
			break
		}
		s.cachedSize -= freed
		s.evictCounter++

		if s.evictCounter%vacuumInterval == 0 {
			if _, err := s.db.Exec(`PRAGMA incremental_vacuum`); err != nil {
				telemetry.Warnf("payload store: incremental_vacuum failed: %v", err)
			}
		}
	}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
