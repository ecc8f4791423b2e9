package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/tiemma/sonic-distribute/internal/coordinator"
	"github.com/tiemma/sonic-distribute/internal/events"
	"github.com/tiemma/sonic-distribute/internal/logger"
	"github.com/tiemma/sonic-distribute/internal/metrics"
)

const defaultBroadcastInterval = time.Second

// Provider は API が公開する実行状態の取得元
type Provider interface {
	Status() coordinator.Status
	Workers() []coordinator.WorkerInfo
	Metrics() metrics.Snapshot
}

// Ensure Coordinator implements Provider
var _ Provider = (*coordinator.Coordinator)(nil)

// Server はステータスAPIサーバー
type Server struct {
	addr     string
	provider Provider
	bus      *events.Bus
	interval time.Duration

	mu        sync.RWMutex
	wsClients map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
// bus が nil の場合、WebSocket には定期的なステータスのみ配信する
func NewServer(addr string, provider Provider, bus *events.Bus) *Server {
	return &Server{
		addr:      addr,
		provider:  provider,
		bus:       bus,
		interval:  defaultBroadcastInterval,
		wsClients: make(map[*websocket.Conn]bool),
	}
}

// Handler は API のルーティングを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/workers", s.handleWorkers)
	mux.HandleFunc("/api/metrics", s.handleMetrics)

	// WebSocket
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始し、ctx がキャンセルされるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// バックグラウンドでステータスとイベントを配信
	go s.broadcastLoop(ctx)
	go s.forwardEvents(ctx)

	logger.Info("", "Status API listening on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.provider.Status())
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.provider.Workers())
}

// MetricsResponse はメトリクスレスポンス
type MetricsResponse struct {
	Dispatched   uint64  `json:"dispatched"`
	Succeeded    uint64  `json:"succeeded"`
	Failed       uint64  `json:"failed"`
	InFlight     uint64  `json:"in_flight"`
	Throughput   float64 `json:"throughput"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
	FailureRate  float64 `json:"failure_rate"`
}

func newMetricsResponse(snap metrics.Snapshot) MetricsResponse {
	return MetricsResponse{
		Dispatched:   snap.Dispatched,
		Succeeded:    snap.Succeeded,
		Failed:       snap.Failed,
		InFlight:     snap.InFlight,
		Throughput:   snap.Throughput,
		AvgLatencyMs: float64(snap.AverageLatency) / float64(time.Millisecond),
		P99LatencyMs: float64(snap.P99Latency) / float64(time.Millisecond),
		FailureRate:  snap.FailureRate,
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, newMetricsResponse(s.provider.Metrics()))
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// 接続直後に現在の状態を送る
	s.send(ws, map[string]any{
		"type":   "status",
		"status": s.provider.Status(),
	})

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

// ClientCount は接続中の WebSocket クライアント数を返す
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) send(ws *websocket.Conn, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	_ = websocket.Message.Send(ws, string(jsonData))
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.ClientCount() == 0 {
				continue
			}
			s.broadcast(map[string]any{
				"type":    "status",
				"status":  s.provider.Status(),
				"metrics": newMetricsResponse(s.provider.Metrics()),
			})
		}
	}
}

// forwardEvents は実行イベントを WebSocket クライアントへ転送する
func (s *Server) forwardEvents(ctx context.Context) {
	if s.bus == nil {
		return
	}

	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(map[string]any{
				"type":  "event",
				"event": ev,
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("", "Failed to encode JSON: %v", err)
	}
}
