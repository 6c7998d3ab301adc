package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tappytrade.io/internal/persistence/save"
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/engine"
	"tappytrade.io/internal/sim/tuning"
)

var ErrClosed = errors.New("indexdb: closed")

// SQLiteStore keeps save documents in a sqlite database and indexes audit
// and catch-up entries beside them. One writer goroutine owns the
// connection; saves and loads are answered synchronously, index writes are
// queued and dropped when the queue is full.
type SQLiteStore struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropAudit   atomic.Uint64
	dropCatchUp atomic.Uint64
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqCatchUp
	reqSave
	reqLoad
	reqQuery
)

type req struct {
	kind reqKind

	audit   engine.AuditEntry
	catchUp engine.CatchUpEntry

	player string
	doc    []byte
	limit  int

	resp chan result
}

type result struct {
	doc      []byte
	catchUps []engine.CatchUpEntry
	err      error
}

type Stats struct {
	DropAuditTotal   uint64 `json:"drop_audit_total"`
	DropCatchUpTotal uint64 `json:"drop_catch_up_total"`
	QueueDepth       int    `json:"queue_depth"`
	QueueCapacity    int    `json:"queue_capacity"`
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			player TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			doc TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player TEXT NOT NULL,
			at INTEGER NOT NULL,
			op TEXT NOT NULL,
			ok INTEGER NOT NULL,
			code TEXT,
			money REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_player_at ON audits(player, at);`,
		`CREATE TABLE IF NOT EXISTS catchups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player TEXT NOT NULL,
			at INTEGER NOT NULL,
			offline_sec REAL NOT NULL,
			applied_sec REAL NOT NULL,
			capped INTEGER NOT NULL,
			cycles INTEGER NOT NULL,
			harvests INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_catchups_player_at ON catchups(player, at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteStore) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropAuditTotal:   s.dropAudit.Load(),
		DropCatchUpTotal: s.dropCatchUp.Load(),
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
	}
}

func (s *SQLiteStore) WriteAudit(entry engine.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

func (s *SQLiteStore) WriteCatchUp(entry engine.CatchUpEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqCatchUp, catchUp: entry}:
	default:
		s.dropCatchUp.Add(1)
	}
	return nil
}

// call hands r to the writer and waits for its answer.
func (s *SQLiteStore) call(ctx context.Context, r req) (result, error) {
	if s.closed.Load() {
		return result{}, ErrClosed
	}
	r.resp = make(chan result, 1)
	select {
	case s.ch <- r:
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	select {
	case res := <-r.resp:
		return res, res.err
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

func (s *SQLiteStore) Save(ctx context.Context, player string, data []byte) error {
	_, err := s.call(ctx, req{kind: reqSave, player: player, doc: data})
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, player string) ([]byte, error) {
	res, err := s.call(ctx, req{kind: reqLoad, player: player})
	if err != nil {
		return nil, err
	}
	return res.doc, nil
}

// RecentCatchUps returns up to limit catch-up entries for player, newest first.
func (s *SQLiteStore) RecentCatchUps(ctx context.Context, player string, limit int) ([]engine.CatchUpEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	res, err := s.call(ctx, req{kind: reqQuery, player: player, limit: limit})
	if err != nil {
		return nil, err
	}
	return res.catchUps, nil
}

// UpsertCatalogs records the catalogs and tuning the server runs with.
func (s *SQLiteStore) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	add := func(name, digest string, v any) {
		if b, err := json.Marshal(v); err == nil {
			rows = append(rows, kv{name: name, digest: digest, json: b})
		}
	}
	add("resources", cats.Resources.Digest, cats.Resources.Defs)
	add("subplots", cats.Subplots.Digest, cats.Subplots.Defs)
	add("buildings", cats.Buildings.Digest, cats.Buildings.Defs)
	add("plots", cats.Plots.Digest, cats.Plots)
	add("achievements", cats.Achievements.Digest, cats.Achievements.Defs)
	add("government", cats.Government.Digest, cats.Government)
	add("daily_rewards", cats.Daily.Digest, cats.Daily.Rewards)
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() bool {
		if tx != nil {
			return true
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return false
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
		return true
	}
	commit := func() error {
		if tx == nil {
			return nil
		}
		err := tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
		return err
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
	}

	flush := time.NewTicker(commitMaxWait)
	defer flush.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				_ = commit()
				return
			}
			r = rr
		case <-flush.C:
			if time.Since(lastCommit) >= commitMaxWait {
				_ = commit()
			}
			continue
		}

		switch r.kind {
		case reqAudit:
			if !begin() {
				continue
			}
			a := r.audit
			if _, err := tx.Exec(`INSERT INTO audits(player,at,op,ok,code,money) VALUES(?,?,?,?,?,?)`,
				a.Player, a.Time, a.Op, a.OK, a.Code, a.Money); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqCatchUp:
			if !begin() {
				continue
			}
			c := r.catchUp
			raw, _ := json.Marshal(c.Summary)
			if _, err := tx.Exec(`INSERT INTO catchups(player,at,offline_sec,applied_sec,capped,cycles,harvests,raw_json) VALUES(?,?,?,?,?,?,?,?)`,
				c.Player, c.Time, c.Summary.OfflineSec, c.Summary.AppliedSec, c.Summary.Capped,
				c.Summary.WorkerCycles, c.Summary.Harvests, string(raw)); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSave:
			r.resp <- result{err: s.saveLocked(ctx, &tx, r.player, r.doc, commit)}
			continue

		case reqLoad:
			if err := commit(); err != nil {
				r.resp <- result{err: err}
				continue
			}
			var doc string
			err := s.db.QueryRowContext(ctx, `SELECT doc FROM saves WHERE player=?`, r.player).Scan(&doc)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				r.resp <- result{err: save.ErrNotFound}
			case err != nil:
				r.resp <- result{err: err}
			default:
				r.resp <- result{doc: []byte(doc)}
			}
			continue

		case reqQuery:
			_ = commit()
			out, err := s.queryCatchUps(ctx, r.player, r.limit)
			r.resp <- result{catchUps: out, err: err}
			continue
		}

		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			_ = commit()
		}
	}
}

// saveLocked writes a save inside the pending batch and commits it so the
// document is durable before the caller hears back.
func (s *SQLiteStore) saveLocked(ctx context.Context, tx **sql.Tx, player string, doc []byte, commit func() error) error {
	if *tx == nil {
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		*tx = txx
	}
	var tag struct {
		SaveSchemaVersion int `json:"saveSchemaVersion"`
	}
	_ = json.Unmarshal(doc, &tag)
	if _, err := (*tx).Exec(`INSERT OR REPLACE INTO saves(player,schema_version,doc,updated_at) VALUES(?,?,?,?)`,
		player, tag.SaveSchemaVersion, string(doc), time.Now().UnixMilli()); err != nil {
		_ = (*tx).Rollback()
		*tx = nil
		return fmt.Errorf("insert save: %w", err)
	}
	return commit()
}

func (s *SQLiteStore) queryCatchUps(ctx context.Context, player string, limit int) ([]engine.CatchUpEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, raw_json FROM catchups WHERE player=? ORDER BY at DESC, id DESC LIMIT ?`, player, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.CatchUpEntry
	for rows.Next() {
		var (
			at  int64
			raw string
		)
		if err := rows.Scan(&at, &raw); err != nil {
			return nil, err
		}
		e := engine.CatchUpEntry{Time: at, Player: player}
		if err := json.Unmarshal([]byte(raw), &e.Summary); err != nil {
			return nil, fmt.Errorf("catch-up row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
