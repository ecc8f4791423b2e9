package coordinator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tiemma/sonic-distribute/internal/node"
)

// WorkerInfo はワーカー1つの状態
type WorkerInfo struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Current   string    `json:"current,omitempty"`
	Handled   uint64    `json:"handled"`
	Queued    bool      `json:"queued"`
	SpawnedAt time.Time `json:"spawned_at"`
	ReadyAt   time.Time `json:"ready_at,omitempty"`
}

// Status は実行全体の状態
type Status struct {
	RunID     string    `json:"run_id"`
	State     string    `json:"state"`
	Workers   int       `json:"workers"`
	Live      int       `json:"live"`
	Idle      int       `json:"idle"`
	Busy      int       `json:"busy"`
	InFlight  int       `json:"in_flight"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Status は現在の状態を返す
func (c *Coordinator) Status() Status {
	return Status{
		RunID:     c.runID,
		State:     c.State().String(),
		Workers:   c.numWorkers,
		Live:      c.cluster.LiveCount(),
		Idle:      c.ready.Len(),
		Busy:      c.cluster.CountByStatus(node.StatusBusy),
		InFlight:  c.InFlight(),
		Succeeded: c.success.Size(),
		Failed:    c.failure.Size(),
		StartedAt: c.startedAt,
	}
}

// Workers は全ワーカーの状態をID順で返す
func (c *Coordinator) Workers() []WorkerInfo {
	nodes := c.cluster.Nodes()
	infos := make([]WorkerInfo, 0, len(nodes))
	for _, n := range nodes {
		infos = append(infos, WorkerInfo{
			ID:        n.ID(),
			Name:      n.Name(),
			Status:    n.Status().String(),
			Current:   n.Current(),
			Handled:   n.Handled(),
			Queued:    c.ready.Contains(n.ID()),
			SpawnedAt: n.SpawnedAt(),
			ReadyAt:   n.ReadyAt(),
		})
	}
	return infos
}

// Report は実行結果をフォーマットして返す
func (c *Coordinator) Report() string {
	snap := c.metrics.Snapshot()

	end := c.stoppedAt
	if end.IsZero() {
		end = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, `
================================================================================
                         RUN REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Start Time:     %s
  End Time:       %s
  Duration:       %v
  Workers:        %d

ITEM METRICS
------------
  Dispatched:       %d
  Succeeded:        %d
  Failed:           %d
  Failure Rate:     %.2f%%
  Throughput:       %.2f items/s
  Avg Latency:      %v
  P99 Latency:      %v

PER WORKER
----------
`,
		c.runID,
		c.startedAt.Format("2006-01-02 15:04:05"),
		end.Format("2006-01-02 15:04:05"),
		end.Sub(c.startedAt).Round(time.Millisecond),
		c.numWorkers,
		snap.Dispatched,
		snap.Succeeded,
		snap.Failed,
		snap.FailureRate*100,
		snap.Throughput,
		snap.AverageLatency.Round(time.Microsecond),
		snap.P99Latency.Round(time.Microsecond),
	)

	ids := make([]int, 0, len(snap.PerWorker))
	for id := range snap.PerWorker {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		ws := snap.PerWorker[id]
		fmt.Fprintf(&b, "  %-10s  dispatched=%d succeeded=%d failed=%d\n",
			node.Name(id), ws.Dispatched, ws.Succeeded, ws.Failed)
	}

	b.WriteString("\n================================================================================\n")
	return b.String()
}
