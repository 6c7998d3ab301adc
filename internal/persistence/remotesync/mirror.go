package remotesync

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Target is where mirrored documents go.
type Target interface {
	Save(ctx context.Context, player string, data []byte) error
}

type Stats struct {
	QueueDepth          int    `json:"queue_depth"`
	QueueCapacity       int    `json:"queue_capacity"`
	EnqueuedTotal       uint64 `json:"enqueued_total"`
	QueueSaturatedTotal uint64 `json:"queue_saturated_total"`
	DroppedTotal        uint64 `json:"dropped_total"`
	PushSuccessTotal    uint64 `json:"push_success_total"`
	PushFailTotal       uint64 `json:"push_fail_total"`
	LastSuccessUnix     int64  `json:"last_success_unix"`
	LastErrorUnix       int64  `json:"last_error_unix"`
}

type job struct {
	player string
	data   []byte
}

// Mirror pushes documents to a Target from a bounded queue. Enqueue never
// blocks longer than the configured wait.
type Mirror struct {
	target Target
	logger *log.Logger

	jobs        chan job
	enqueueWait time.Duration
	pushTimeout time.Duration
	backoff     time.Duration
	wg          sync.WaitGroup
	closeOnce   sync.Once

	enqueuedTotal       atomic.Uint64
	queueSaturatedTotal atomic.Uint64
	droppedTotal        atomic.Uint64
	pushSuccessTotal    atomic.Uint64
	pushFailTotal       atomic.Uint64
	lastSuccessUnix     atomic.Int64
	lastErrorUnix       atomic.Int64
}

func NewMirror(target Target, workers, queueCapacity int, enqueueWait time.Duration, logger *log.Logger) *Mirror {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 256
	}
	if enqueueWait <= 0 {
		enqueueWait = 25 * time.Millisecond
	}
	m := &Mirror{
		target:      target,
		logger:      logger,
		jobs:        make(chan job, queueCapacity),
		enqueueWait: enqueueWait,
		pushTimeout: 5 * time.Second,
		backoff:     200 * time.Millisecond,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for j := range m.jobs {
				m.pushOne(j)
			}
		}()
	}
	return m
}

// Enqueue queues a copy of data for player. It reports false when the
// document was dropped.
func (m *Mirror) Enqueue(player string, data []byte) bool {
	if m == nil || m.target == nil {
		return false
	}
	m.enqueuedTotal.Add(1)
	j := job{player: player, data: append([]byte(nil), data...)}

	select {
	case m.jobs <- j:
		return true
	default:
	}

	m.queueSaturatedTotal.Add(1)
	timer := time.NewTimer(m.enqueueWait)
	defer timer.Stop()
	select {
	case m.jobs <- j:
		return true
	case <-timer.C:
		dropped := m.droppedTotal.Add(1)
		m.printf("remote sync drop player=%s reason=queue_saturated dropped_total=%d", player, dropped)
		return false
	}
}

// Close drains the queue and waits for the workers.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		close(m.jobs)
		m.wg.Wait()
	})
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(m.jobs),
		QueueCapacity:       cap(m.jobs),
		EnqueuedTotal:       m.enqueuedTotal.Load(),
		QueueSaturatedTotal: m.queueSaturatedTotal.Load(),
		DroppedTotal:        m.droppedTotal.Load(),
		PushSuccessTotal:    m.pushSuccessTotal.Load(),
		PushFailTotal:       m.pushFailTotal.Load(),
		LastSuccessUnix:     m.lastSuccessUnix.Load(),
		LastErrorUnix:       m.lastErrorUnix.Load(),
	}
}

func (m *Mirror) pushOne(j job) {
	const maxAttempts = 3
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), m.pushTimeout)
		err = m.target.Save(ctx, j.player, j.data)
		cancel()
		if err == nil {
			m.pushSuccessTotal.Add(1)
			m.lastSuccessUnix.Store(time.Now().UTC().Unix())
			return
		}
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt*attempt) * m.backoff)
		}
	}
	m.pushFailTotal.Add(1)
	m.lastErrorUnix.Store(time.Now().UTC().Unix())
	m.printf("remote sync push failed player=%s err=%v", j.player, err)
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
