package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"tappytrade.io/internal/persistence/indexdb"
	"tappytrade.io/internal/persistence/remotesync"
	"tappytrade.io/internal/persistence/save"
	"tappytrade.io/internal/persistence/snapshot"
)

// saveBackend is the primary save store plus whatever has to be closed with
// it. index is set whenever a sqlite database is open, even if saves go
// elsewhere, so catch-up reports and audits still get indexed.
type saveBackend struct {
	name    string
	store   save.Store
	index   *indexdb.SQLiteStore
	closers []io.Closer
}

func (b *saveBackend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i].Close()
	}
}

func openSaveBackend(ctx context.Context, backend, dataDir, redisURL string, disableDB bool) (*saveBackend, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = "file"
	}
	b := &saveBackend{name: backend}

	if !disableDB || backend == "sqlite" {
		idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "farms.sqlite"))
		if err != nil {
			return nil, err
		}
		b.index = idx
		b.closers = append(b.closers, idx)
	}

	switch backend {
	case "file":
		b.store = snapshot.NewFileStore(filepath.Join(dataDir, "saves"))
	case "sqlite":
		b.store = b.index
	case "memory":
		b.store = save.NewMemStore()
	case "redis":
		if strings.TrimSpace(redisURL) == "" {
			b.Close()
			return nil, fmt.Errorf("store=redis but TT_REDIS_URL is empty")
		}
		rdb, err := remotesync.Dial(ctx, redisURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, rdb)
		b.store = remotesync.NewRedisStore(rdb, envString("TT_REDIS_PREFIX", remotesync.DefaultPrefix), 0)
	default:
		b.Close()
		return nil, fmt.Errorf("unsupported save store: %s", backend)
	}
	return b, nil
}
