package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tiemma/sonic-distribute/internal/cluster"
	"github.com/tiemma/sonic-distribute/internal/events"
	"github.com/tiemma/sonic-distribute/internal/logger"
	"github.com/tiemma/sonic-distribute/internal/metrics"
	"github.com/tiemma/sonic-distribute/internal/node"
	"github.com/tiemma/sonic-distribute/internal/protocol"
	"github.com/tiemma/sonic-distribute/internal/queue"
	"github.com/tiemma/sonic-distribute/internal/readiness"
	"github.com/tiemma/sonic-distribute/internal/transport"
)

// Label はコーディネーターのログラベル
const Label = "MASTER"

const (
	defaultShutdownStagger = 100 * time.Millisecond
	inboxSize              = 64
)

var (
	// ErrNotRunning は RUNNING 以外の状態での操作を示す
	ErrNotRunning = errors.New("coordinator is not running")
	// ErrNoWorkers はライブワーカーが残っていないことを示す
	ErrNoWorkers = errors.New("no live workers")
	// ErrWorkerLost は処理中にワーカーが切断されたことを示す
	ErrWorkerLost = errors.New("worker disconnected")
)

// State はコーディネーターの状態を表す
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config はコーディネーターの設定
type Config struct {
	NumWorkers      int               // ワーカー数（0でCPU数）
	ShutdownStagger time.Duration     // 切断要求の間隔
	Spawner         transport.Spawner // ワーカーの起動方法
	Bus             *events.Bus       // nil ならイベントを発行しない
	RunID           string            // 空なら UUID を生成
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		NumWorkers:      0,
		ShutdownStagger: defaultShutdownStagger,
	}
}

// pending は返信待ちのアイテム
type pending struct {
	workerID     int
	payload      json.RawMessage
	dispatchedAt time.Time
}

// inbound はリーダーからハンドラーへ渡されるメッセージ
type inbound struct {
	node *node.Node
	msg  protocol.Message
	err  error
}

// Coordinator はワーカープールを起動し、アイテムを配布して結果を収集する
type Coordinator struct {
	cfg        Config
	runID      string
	numWorkers int

	cluster *cluster.Cluster
	ready   *readiness.Queue
	metrics *metrics.Metrics
	bus     *events.Bus
	success *queue.Queue[protocol.Envelope]
	failure *queue.Queue[protocol.Envelope]

	state   atomic.Int32
	started atomic.Bool

	mu       sync.Mutex
	inflight map[string]pending

	inbox    chan inbound
	readers  sync.WaitGroup
	loopDone chan struct{}
	stopOnce sync.Once

	startedAt time.Time
	stoppedAt time.Time
}

// New は新しいコーディネーターを作成する
func New(cfg Config) *Coordinator {
	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	return &Coordinator{
		cfg:        cfg,
		runID:      runID,
		numWorkers: numWorkers,
		cluster:    cluster.New(),
		ready:      readiness.New(),
		metrics:    metrics.New(),
		bus:        cfg.Bus,
		success:    queue.New[protocol.Envelope](),
		failure:    queue.New[protocol.Envelope](),
		inflight:   make(map[string]pending),
		inbox:      make(chan inbound, inboxSize),
		loopDone:   make(chan struct{}),
	}
}

// RunID は実行IDを返す
func (c *Coordinator) RunID() string {
	return c.runID
}

// NumWorkers は起動するワーカー数を返す
func (c *Coordinator) NumWorkers() int {
	return c.numWorkers
}

// State は現在の状態を返す
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Cluster はワーカーテーブルを返す
func (c *Coordinator) Cluster() *cluster.Cluster {
	return c.cluster
}

// Success は成功キューを返す
func (c *Coordinator) Success() *queue.Queue[protocol.Envelope] {
	return c.success
}

// Failure は失敗キューを返す
func (c *Coordinator) Failure() *queue.Queue[protocol.Envelope] {
	return c.failure
}

// Metrics は現在のメトリクスのスナップショットを返す
func (c *Coordinator) Metrics() metrics.Snapshot {
	return c.metrics.Snapshot()
}

// Bus はイベントバスを返す
func (c *Coordinator) Bus() *events.Bus {
	return c.bus
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	logger.Debug(Label, "State changed to %s", s)
	c.bus.Publish(events.NewStateChangedEvent(c.runID, s.String()))
}

func (c *Coordinator) transition(from, to State) bool {
	if !c.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	logger.Debug(Label, "State changed to %s", to)
	c.bus.Publish(events.NewStateChangedEvent(c.runID, to.String()))
	return true
}

// Start は全ワーカーを起動し、ハンドシェイクの完了を待つ
// ctx はハンドシェイクの待機にのみ使われ、ワーカーの寿命には影響しない
func (c *Coordinator) Start(ctx context.Context) error {
	if c.cfg.Spawner == nil {
		return errors.New("coordinator requires a spawner")
	}
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("coordinator already started")
	}

	c.startedAt = time.Now()
	c.setState(StateStarting)
	go c.loop()

	logger.Info(Label, "Starting %d workers (run %s)", c.numWorkers, c.runID)

	g, gctx := errgroup.WithContext(ctx)
	for id := 1; id <= c.numWorkers; id++ {
		id := id
		g.Go(func() error {
			return c.spawn(gctx, id)
		})
	}
	if err := g.Wait(); err != nil {
		c.abort()
		return err
	}

	if err := c.ready.WaitUntil(ctx, c.quiescent); err != nil {
		c.abort()
		return fmt.Errorf("handshake did not complete: %w", err)
	}
	if c.cluster.LiveCount() == 0 {
		c.abort()
		return fmt.Errorf("handshake did not complete: %w", ErrNoWorkers)
	}

	c.setState(StateRunning)
	logger.Info(Label, "All %d workers ready", c.cluster.LiveCount())
	return nil
}

// spawn は1つのワーカーを起動し、リーダーを開始する
func (c *Coordinator) spawn(ctx context.Context, id int) error {
	conn, err := c.cfg.Spawner.Spawn(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to spawn worker %d: %w", id, err)
	}

	n := node.New(id, conn)
	if err := c.cluster.AddNode(n); err != nil {
		_ = conn.Close()
		return err
	}
	c.bus.Publish(events.NewWorkerEvent(events.EventWorkerSpawned, c.runID, id))
	logger.Debug(Label, "Spawned %s", n.Name())

	c.readers.Add(1)
	go c.read(n)
	return nil
}

// read はワーカーからのメッセージを受信箱に流す
func (c *Coordinator) read(n *node.Node) {
	defer c.readers.Done()

	for {
		msg, err := n.Recv()
		c.inbox <- inbound{node: n, msg: msg, err: err}
		if err != nil {
			return
		}
	}
}

// loop は受信箱のメッセージを1つずつ処理する
// キューへの書き込みはすべてこのゴルーチンで行われる
func (c *Coordinator) loop() {
	defer close(c.loopDone)

	for in := range c.inbox {
		c.handle(in)
	}
}

func (c *Coordinator) handle(in inbound) {
	n := in.node
	if in.err != nil {
		c.disconnected(n, in.err)
		return
	}

	switch m := in.msg.(type) {
	case protocol.Syn:
		if m.WorkerID != n.ID() {
			logger.Warn(Label, "%s announced itself as worker %d", n.Name(), m.WorkerID)
		}
		if err := n.Send(protocol.Ack{}); err != nil {
			logger.Warn(Label, "Failed to acknowledge %s: %v", n.Name(), err)
		}
	case protocol.SynAck:
		if c.admit(n) {
			logger.Info(Label, "Worker %d now available", n.ID())
		}
	case protocol.Reply:
		c.collect(n, m)
		c.admit(n)
	default:
		logger.Warn(Label, "Unexpected %s message from %s", in.msg.Kind(), n.Name())
	}
}

// admit はワーカーを Readiness Queue に戻す
// 状態遷移できない場合や既にキュー内にある場合は何もしない
func (c *Coordinator) admit(n *node.Node) bool {
	if err := n.MarkReady(); err != nil {
		logger.Debug(Label, "Ignoring readiness signal: %v", err)
		c.bus.Publish(events.NewWorkerEvent(events.EventDuplicateReady, c.runID, n.ID()))
		return false
	}
	if !c.ready.Enqueue(n.ID()) {
		logger.Debug(Label, "%s is already queued", n.Name())
		c.bus.Publish(events.NewWorkerEvent(events.EventDuplicateReady, c.runID, n.ID()))
		return false
	}

	logger.Debug(Label, "%s queued for work", n.Name())
	c.bus.Publish(events.NewWorkerEvent(events.EventWorkerReady, c.runID, n.ID()))
	return true
}

// collect は返信を成功キューまたは失敗キューに格納する
func (c *Coordinator) collect(n *node.Node, r protocol.Reply) {
	p, ok := c.take(r.ItemID)
	if !ok {
		logger.Warn(Label, "Dropping reply for unknown item %s from %s", r.ItemID, n.Name())
		return
	}

	r.WorkerID = n.ID()
	env := protocol.FromReply(r, p.dispatchedAt, time.Now())
	if len(env.Data) == 0 {
		env.Data = p.payload
	}
	c.file(env)
}

func (c *Coordinator) file(env protocol.Envelope) {
	if env.Failed {
		c.failure.Enqueue(env)
		c.metrics.RecordFailure(env.WorkerID, env.Latency())
		logger.Warn(Label, "Item %s failed on %s: %s", env.ItemID, node.Name(env.WorkerID), env.Error)
	} else {
		c.success.Enqueue(env)
		c.metrics.RecordSuccess(env.WorkerID, env.Latency())
		logger.Debug(Label, "Item %s completed on %s", env.ItemID, node.Name(env.WorkerID))
	}
	c.bus.Publish(events.NewItemCompletedEvent(c.runID, env.WorkerID, env.ItemID, env.Latency(), env.Error))
}

// disconnected はワーカーの接続が閉じたときの後処理を行う
func (c *Coordinator) disconnected(n *node.Node, cause error) {
	itemID, wasLive := n.MarkDisconnected()
	if !wasLive {
		// Shutdown による切断
		c.ready.Remove(n.ID())
		c.bus.Publish(events.NewWorkerDisconnectedEvent(c.runID, n.ID(), nil))
		return
	}

	closeErr := n.Close()
	if errors.Is(cause, io.EOF) {
		cause = closeErr
	}
	if cause != nil {
		logger.Warn(Label, "%s disconnected unexpectedly: %v", n.Name(), cause)
	} else {
		logger.Warn(Label, "%s disconnected unexpectedly", n.Name())
	}
	c.bus.Publish(events.NewWorkerDisconnectedEvent(c.runID, n.ID(), cause))

	if itemID != "" {
		if p, ok := c.take(itemID); ok {
			c.file(protocol.Envelope{
				ItemID:       itemID,
				WorkerID:     n.ID(),
				Data:         p.payload,
				Failed:       true,
				Error:        ErrWorkerLost.Error(),
				DispatchedAt: p.dispatchedAt,
				CompletedAt:  time.Now(),
			})
		}
	}

	// 失敗の格納後に通知する
	c.ready.Remove(n.ID())
	if c.cluster.LiveCount() == 0 {
		c.ready.Close()
	}
}

func (c *Coordinator) track(itemID string, p pending) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[itemID] = p
}

func (c *Coordinator) take(itemID string) (pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.inflight[itemID]
	if ok {
		delete(c.inflight, itemID)
	}
	return p, ok
}

// abandonInFlight は返信が来なかったアイテムを失敗として格納する
// ハンドラー停止後にのみ呼ぶこと
func (c *Coordinator) abandonInFlight() {
	c.mu.Lock()
	abandoned := c.inflight
	c.inflight = make(map[string]pending)
	c.mu.Unlock()

	now := time.Now()
	for itemID, p := range abandoned {
		c.file(protocol.Envelope{
			ItemID:       itemID,
			WorkerID:     p.workerID,
			Data:         p.payload,
			Failed:       true,
			Error:        ErrWorkerLost.Error(),
			DispatchedAt: p.dispatchedAt,
			CompletedAt:  now,
		})
	}
}

// InFlight は返信待ちのアイテム数を返す
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Dispatch はアイテムを次の空きワーカーに送信し、アイテムIDを返す
// 空きワーカーがいなければブロックする
func (c *Coordinator) Dispatch(ctx context.Context, item any) (string, error) {
	if c.State() != StateRunning {
		return "", ErrNotRunning
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("failed to encode item: %w", err)
	}
	itemID := uuid.NewString()

	for {
		id, err := c.ready.Acquire(ctx)
		if err != nil {
			if errors.Is(err, readiness.ErrClosed) {
				return "", ErrNoWorkers
			}
			return "", err
		}

		n, ok := c.cluster.GetNode(id)
		if !ok || n.MarkBusy(itemID) != nil {
			logger.Warn(Label, "Skipping stale worker %d", id)
			c.bus.Publish(events.NewWorkerEvent(events.EventStaleWorker, c.runID, id))
			continue
		}

		c.track(itemID, pending{workerID: id, payload: payload, dispatchedAt: time.Now()})
		if err := n.Send(protocol.Data{ItemID: itemID, Payload: payload}); err != nil {
			if _, ok := c.take(itemID); !ok {
				// 切断処理で失敗として格納済み
				return itemID, nil
			}
			logger.Warn(Label, "Failed to dispatch item %s to %s: %v", itemID, n.Name(), err)
			_ = n.Close()
			continue
		}

		c.metrics.RecordDispatch(id)
		c.bus.Publish(events.NewItemEvent(events.EventItemDispatched, c.runID, id, itemID))
		logger.Debug(Label, "Dispatched item %s to %s", itemID, n.Name())
		return itemID, nil
	}
}

// quiescent は全てのライブワーカーが待機中かどうかを返す
func (c *Coordinator) quiescent(size int) bool {
	live := c.cluster.LiveCount()
	if live == 0 {
		return true
	}
	return size >= live && c.cluster.CountByStatus(node.StatusReady) == live
}

// Drain は全てのライブワーカーが待機状態に戻るまでブロックする
func (c *Coordinator) Drain(ctx context.Context) error {
	if !c.transition(StateRunning, StateDraining) {
		return ErrNotRunning
	}

	logger.Info(Label, "Draining %d workers", c.cluster.LiveCount())
	if err := c.ready.WaitUntil(ctx, c.quiescent); err != nil {
		return fmt.Errorf("drain interrupted: %w", err)
	}
	logger.Info(Label, "All workers idle")
	return nil
}

// Shutdown は全ワーカーを順に切断し、ハンドラーを停止する
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if c.State() == StateStopped {
		return nil
	}
	if !c.started.Load() {
		c.stoppedAt = time.Now()
		c.setState(StateStopped)
		return nil
	}

	err := c.cluster.DisconnectAll(ctx, c.cfg.ShutdownStagger)
	c.stop()

	logger.Info(Label, "%s", c.Report())
	return err
}

// abort は起動に失敗したときに全てを片付ける
func (c *Coordinator) abort() {
	_ = c.cluster.DisconnectAll(context.Background(), 0)
	c.stop()
}

func (c *Coordinator) stop() {
	c.stopOnce.Do(func() {
		c.readers.Wait()
		close(c.inbox)
		<-c.loopDone

		c.abandonInFlight()
		c.ready.Close()
		c.stoppedAt = time.Now()
		c.setState(StateStopped)
	})
}
