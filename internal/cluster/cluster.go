// Package cluster provides the coordinator's table of worker nodes.
package cluster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tiemma/sonic-distribute/internal/logger"
	"github.com/tiemma/sonic-distribute/internal/node"
)

// Manager はワーカーテーブルの基本操作を定義するインターフェース
type Manager interface {
	AddNode(n *node.Node) error
	RemoveNode(id int) error
	GetNode(id int) (*node.Node, bool)
	Nodes() []*node.Node
	DisconnectAll(ctx context.Context, stagger time.Duration) error
	Size() int
	LiveCount() int
}

// Ensure Cluster implements Manager
var _ Manager = (*Cluster)(nil)

// Cluster はワーカーIDからノードへの対応を管理する
type Cluster struct {
	mu    sync.RWMutex
	nodes map[int]*node.Node
}

// New は新しいクラスタを作成する
func New() *Cluster {
	return &Cluster{
		nodes: make(map[int]*node.Node),
	}
}

// AddNode はクラスタにノードを追加する
func (c *Cluster) AddNode(n *node.Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.nodes[n.ID()]; exists {
		return fmt.Errorf("worker %d already exists in cluster", n.ID())
	}

	c.nodes[n.ID()] = n
	logger.Debug("", "Worker %d added to cluster", n.ID())
	return nil
}

// RemoveNode はクラスタからノードを削除する
func (c *Cluster) RemoveNode(id int) error {
	c.mu.Lock()
	n, exists := c.nodes[id]
	if !exists {
		c.mu.Unlock()
		return fmt.Errorf("worker %d not found in cluster", id)
	}
	delete(c.nodes, id)
	c.mu.Unlock()

	if n.IsLive() {
		_ = n.Disconnect()
	}
	logger.Debug("", "Worker %d removed from cluster", id)
	return nil
}

// GetNode はワーカーIDでノードを取得する
func (c *Cluster) GetNode(id int) (*node.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n, exists := c.nodes[id]
	return n, exists
}

// IsLive はワーカーIDが切断されていないノードを指すかどうかを返す
func (c *Cluster) IsLive(id int) bool {
	n, ok := c.GetNode(id)
	return ok && n.IsLive()
}

// Nodes は全てのノードをID順で返す
func (c *Cluster) Nodes() []*node.Node {
	c.mu.RLock()
	nodes := make([]*node.Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID() < nodes[j].ID()
	})
	return nodes
}

// Size はクラスタ内のノード数を返す
func (c *Cluster) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

// LiveCount は切断されていないノード数を返す
func (c *Cluster) LiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, n := range c.nodes {
		if n.IsLive() {
			count++
		}
	}
	return count
}

// CountByStatus は指定した状態のノード数を返す
func (c *Cluster) CountByStatus(status node.Status) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, n := range c.nodes {
		if n.Status() == status {
			count++
		}
	}
	return count
}

// DisconnectAll は全てのライブノードをID順に切断する
// 切断要求の間に stagger だけ待ち、全ての接続が閉じるまで待機する
func (c *Cluster) DisconnectAll(ctx context.Context, stagger time.Duration) error {
	nodes := c.Nodes()
	logger.Info("", "Disconnecting all workers in cluster (count: %d)", len(nodes))

	g := new(errgroup.Group)
	first := true
	for _, n := range nodes {
		if !n.IsLive() {
			continue
		}

		if !first && stagger > 0 {
			select {
			case <-ctx.Done():
				// 残りは待たずに切断する
				stagger = 0
			case <-time.After(stagger):
			}
		}
		first = false

		g.Go(n.Disconnect)
	}

	if err := g.Wait(); err != nil {
		logger.Warn("", "Some workers did not shut down cleanly: %v", err)
		return err
	}

	logger.Info("", "All workers disconnected")
	return nil
}
