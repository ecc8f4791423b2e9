package node

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tiemma/sonic-distribute/internal/logger"
	"github.com/tiemma/sonic-distribute/internal/protocol"
	"github.com/tiemma/sonic-distribute/internal/transport"
)

// ErrDisconnected は切断済みノードへの操作を示す
var ErrDisconnected = errors.New("node disconnected")

// Status はワーカーの状態を表す
type Status int

const (
	StatusSpawned Status = iota
	StatusReady
	StatusBusy
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusSpawned:
		return "spawned"
	case StatusReady:
		return "ready"
	case StatusBusy:
		return "busy"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Node はコーディネーター側から見た1つのワーカー
type Node struct {
	id   int
	conn transport.Conn

	mu        sync.RWMutex
	status    Status
	current   string // 処理中のアイテムID
	handled   uint64
	spawnedAt time.Time
	readyAt   time.Time
}

// New は新しいノードを作成する
func New(id int, conn transport.Conn) *Node {
	return &Node{
		id:        id,
		conn:      conn,
		status:    StatusSpawned,
		spawnedAt: time.Now(),
	}
}

// ID はワーカーIDを返す
func (n *Node) ID() int {
	return n.id
}

// Name はログ用のラベルを返す
func (n *Node) Name() string {
	return Name(n.id)
}

// Name はワーカーIDのラベルを返す
func Name(id int) string {
	return fmt.Sprintf("WORKER-%d", id)
}

// Status は現在の状態を返す
func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

// IsLive は切断されていないかどうかを返す
func (n *Node) IsLive() bool {
	return n.Status() != StatusDisconnected
}

// MarkReady はハンドシェイク完了または処理完了でディスパッチ可能にする
// Spawned か Busy からのみ遷移できる
func (n *Node) MarkReady() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.status {
	case StatusSpawned:
		n.readyAt = time.Now()
	case StatusBusy:
		n.handled++
		n.current = ""
	default:
		return fmt.Errorf("node %s cannot become ready from %s", Name(n.id), n.status)
	}

	n.status = StatusReady
	return nil
}

// MarkBusy はアイテムをディスパッチ中にする
func (n *Node) MarkBusy(itemID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.status != StatusReady {
		return fmt.Errorf("node %s cannot accept work while %s", Name(n.id), n.status)
	}

	n.status = StatusBusy
	n.current = itemID
	return nil
}

// MarkDisconnected は切断済みにし、処理中だったアイテムIDを返す
func (n *Node) MarkDisconnected() (itemID string, wasLive bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.status == StatusDisconnected {
		return "", false
	}

	itemID = n.current
	n.status = StatusDisconnected
	n.current = ""
	return itemID, true
}

// Current は処理中のアイテムIDを返す
func (n *Node) Current() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

// Handled は完了したアイテム数を返す
func (n *Node) Handled() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.handled
}

// SpawnedAt は起動時刻を返す
func (n *Node) SpawnedAt() time.Time {
	return n.spawnedAt
}

// ReadyAt はハンドシェイク完了時刻を返す
func (n *Node) ReadyAt() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.readyAt
}

// Send はワーカーにメッセージを送信する
func (n *Node) Send(m protocol.Message) error {
	if !n.IsLive() {
		return fmt.Errorf("send to %s: %w", Name(n.id), ErrDisconnected)
	}
	if err := n.conn.Send(m); err != nil {
		return fmt.Errorf("send to %s: %w", Name(n.id), err)
	}
	return nil
}

// Recv はワーカーからの次のメッセージを受信する
func (n *Node) Recv() (protocol.Message, error) {
	return n.conn.Recv()
}

// Disconnect は接続を閉じてワーカーを終了させる
func (n *Node) Disconnect() error {
	n.MarkDisconnected()

	if err := n.conn.Close(); err != nil {
		logger.Warn(n.Name(), "Disconnect finished with error: %v", err)
		return err
	}

	logger.Info(n.Name(), "Gracefully shut down worker")
	return nil
}

// Close は状態を変えずに接続だけを閉じる
func (n *Node) Close() error {
	return n.conn.Close()
}
