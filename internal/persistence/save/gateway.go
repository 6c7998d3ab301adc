package save

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"tappytrade.io/internal/sim/clock"
	"tappytrade.io/internal/sim/farm"
)

// ErrNotFound means there is no usable save. Callers treat it as a first run.
var ErrNotFound = errors.New("save: not found")

// Store is the raw read/write pair behind the gateway. Load returns
// ErrNotFound when the player has never saved.
type Store interface {
	Load(ctx context.Context, player string) ([]byte, error)
	Save(ctx context.Context, player string, data []byte) error
}

// Replicator receives every successfully stored document. It must not block.
type Replicator interface {
	Enqueue(player string, data []byte) bool
}

// Decode parses, migrates and validates a save document. Malformed data is
// ErrNotFound; schema violations in current-version documents are logged
// and absorbed by validation.
func Decode(data []byte, r farm.Rules, nowMillis int64, logger *log.Logger) (*farm.State, error) {
	var doc Doc
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return nil, ErrNotFound
	}
	if VersionOf(doc) == farm.SchemaVersion {
		if err := CheckSchema(doc); err != nil && logger != nil {
			logger.Printf("corrupted save, clamping: %v", err)
		}
	}
	Migrate(doc, r.Tune.BaseInventoryCap)
	return Validate(doc, r, nowMillis), nil
}

type Gateway struct {
	store  Store
	rules  farm.Rules
	clock  clock.Clock
	logger *log.Logger

	mu       sync.Mutex
	replicas []Replicator
}

func NewGateway(store Store, rules farm.Rules, clk clock.Clock, logger *log.Logger) *Gateway {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Gateway{store: store, rules: rules, clock: clk, logger: logger}
}

func (g *Gateway) AddReplicator(r Replicator) {
	if r == nil {
		return
	}
	g.mu.Lock()
	g.replicas = append(g.replicas, r)
	g.mu.Unlock()
}

// Load returns the player's state, or ErrNotFound for a first run or an
// unreadable save.
func (g *Gateway) Load(ctx context.Context, player string) (*farm.State, error) {
	data, err := g.store.Load(ctx, player)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load save %s: %w", player, err)
	}
	st, err := Decode(data, g.rules, clock.Millis(g.clock), g.logger)
	if err != nil {
		g.logger.Printf("unreadable save player=%s bytes=%d", player, len(data))
		return nil, err
	}
	return st, nil
}

// Save encodes st and writes it through the store, then hands the document
// to every replicator.
func (g *Gateway) Save(ctx context.Context, player string, st *farm.State) error {
	data, err := Encode(st)
	if err != nil {
		return err
	}
	if err := g.store.Save(ctx, player, data); err != nil {
		return fmt.Errorf("store save %s: %w", player, err)
	}
	g.mu.Lock()
	replicas := g.replicas
	g.mu.Unlock()
	for _, r := range replicas {
		r.Enqueue(player, data)
	}
	return nil
}

// MemStore keeps documents in memory.
type MemStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func NewMemStore() *MemStore { return &MemStore{docs: map[string][]byte{}} }

func (m *MemStore) Load(_ context.Context, player string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.docs[player]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemStore) Save(_ context.Context, player string, data []byte) error {
	m.mu.Lock()
	m.docs[player] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}
