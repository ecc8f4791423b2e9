package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMaxLatencySamples = 1000

// Metrics はディスパッチと返信のメトリクスを収集する
type Metrics struct {
	dispatched     atomic.Uint64
	succeeded      atomic.Uint64
	failed         atomic.Uint64
	totalLatencyNs atomic.Uint64

	mu                sync.RWMutex
	startTime         time.Time
	latencies         []time.Duration
	maxLatencySamples int
	perWorker         map[int]*WorkerStats
}

// WorkerStats はワーカーごとの集計
type WorkerStats struct {
	Dispatched uint64 `json:"dispatched"`
	Succeeded  uint64 `json:"succeeded"`
	Failed     uint64 `json:"failed"`
}

// Config はメトリクスの設定
type Config struct {
	MaxLatencySamples int
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(Config{})
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(cfg Config) *Metrics {
	if cfg.MaxLatencySamples <= 0 {
		cfg.MaxLatencySamples = defaultMaxLatencySamples
	}
	return &Metrics{
		startTime:         time.Now(),
		latencies:         make([]time.Duration, 0, cfg.MaxLatencySamples),
		maxLatencySamples: cfg.MaxLatencySamples,
		perWorker:         make(map[int]*WorkerStats),
	}
}

// worker は呼び出し側がロックを保持している前提
func (m *Metrics) worker(id int) *WorkerStats {
	ws, ok := m.perWorker[id]
	if !ok {
		ws = &WorkerStats{}
		m.perWorker[id] = ws
	}
	return ws
}

// RecordDispatch はワーカーへのディスパッチを記録する
func (m *Metrics) RecordDispatch(workerID int) {
	m.dispatched.Add(1)

	m.mu.Lock()
	m.worker(workerID).Dispatched++
	m.mu.Unlock()
}

// RecordSuccess は成功した返信を記録する
func (m *Metrics) RecordSuccess(workerID int, latency time.Duration) {
	m.succeeded.Add(1)
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	m.worker(workerID).Succeeded++
	if len(m.latencies) < m.maxLatencySamples {
		m.latencies = append(m.latencies, latency)
	}
	m.mu.Unlock()
}

// RecordFailure は失敗した返信を記録する
func (m *Metrics) RecordFailure(workerID int, latency time.Duration) {
	m.failed.Add(1)
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	m.worker(workerID).Failed++
	m.mu.Unlock()
}

// Dispatched はディスパッチ数を返す
func (m *Metrics) Dispatched() uint64 {
	return m.dispatched.Load()
}

// Succeeded は成功数を返す
func (m *Metrics) Succeeded() uint64 {
	return m.succeeded.Load()
}

// Failed は失敗数を返す
func (m *Metrics) Failed() uint64 {
	return m.failed.Load()
}

// Completed は返信済みの件数を返す
func (m *Metrics) Completed() uint64 {
	return m.succeeded.Load() + m.failed.Load()
}

// InFlight は返信待ちの件数を返す
func (m *Metrics) InFlight() uint64 {
	d, c := m.Dispatched(), m.Completed()
	if c >= d {
		return 0
	}
	return d - c
}

// Throughput は開始からの平均完了数/秒を返す
func (m *Metrics) Throughput() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.Completed()) / elapsed
}

// AverageLatency は平均レイテンシを返す
func (m *Metrics) AverageLatency() time.Duration {
	total := m.Completed()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNs.Load() / total)
}

// P99Latency はP99レイテンシを返す（サンプルベース）
func (m *Metrics) P99Latency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// FailureRate は失敗率を返す（0.0〜1.0）
func (m *Metrics) FailureRate() float64 {
	total := m.Completed()
	if total == 0 {
		return 0
	}
	return float64(m.failed.Load()) / float64(total)
}

// PerWorker はワーカーごとの集計のコピーを返す
func (m *Metrics) PerWorker() map[int]WorkerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int]WorkerStats, len(m.perWorker))
	for id, ws := range m.perWorker {
		out[id] = *ws
	}
	return out
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	Dispatched     uint64              `json:"dispatched"`
	Succeeded      uint64              `json:"succeeded"`
	Failed         uint64              `json:"failed"`
	InFlight       uint64              `json:"in_flight"`
	Throughput     float64             `json:"throughput"`
	AverageLatency time.Duration       `json:"average_latency_ns"`
	P99Latency     time.Duration       `json:"p99_latency_ns"`
	FailureRate    float64             `json:"failure_rate"`
	PerWorker      map[int]WorkerStats `json:"per_worker"`
	Elapsed        time.Duration       `json:"elapsed_ns"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Dispatched:     m.Dispatched(),
		Succeeded:      m.Succeeded(),
		Failed:         m.Failed(),
		InFlight:       m.InFlight(),
		Throughput:     m.Throughput(),
		AverageLatency: m.AverageLatency(),
		P99Latency:     m.P99Latency(),
		FailureRate:    m.FailureRate(),
		PerWorker:      m.PerWorker(),
		Elapsed:        time.Since(m.startTime),
	}
}
