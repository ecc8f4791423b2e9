package distribute

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"

	"github.com/google/uuid"

	"github.com/tiemma/sonic-distribute/internal/api"
	"github.com/tiemma/sonic-distribute/internal/coordinator"
	"github.com/tiemma/sonic-distribute/internal/events"
	"github.com/tiemma/sonic-distribute/internal/logger"
	"github.com/tiemma/sonic-distribute/internal/protocol"
	"github.com/tiemma/sonic-distribute/internal/queue"
	"github.com/tiemma/sonic-distribute/internal/transport"
	"github.com/tiemma/sonic-distribute/internal/worker"
)

type (
	// Envelope は完了したアイテム
	Envelope = protocol.Envelope
	// Queue は Envelope の FIFO
	Queue = queue.Queue[protocol.Envelope]
	// Stage はパイプラインの1段
	Stage = worker.Stage
	// Event はステージへの入力
	Event = worker.Event
	// Args は全ステージに共通の引数
	Args = worker.Args
	// EventBus は実行イベントの配信先
	EventBus = events.Bus
)

// ErrNoResponse は失敗したアイテムのレスポンスを読もうとしたことを示す
var ErrNoResponse = protocol.ErrNoResponse

// Dispatcher はアイテムを空きワーカーに送る
type Dispatcher interface {
	Dispatch(ctx context.Context, item any) (string, error)
}

// Ensure Coordinator implements Dispatcher
var _ Dispatcher = (*coordinator.Coordinator)(nil)

// DriverFunc はコーディネーター上でアイテムを投入する関数
type DriverFunc func(ctx context.Context, d Dispatcher, args Args) error

// ReduceFunc は全ワーカー切断後に結果キューを集約する関数
type ReduceFunc[R any] func(success, failure *Queue) (R, error)

// Dispatch は d を通じてアイテムを送信し、アイテムIDを返す
func Dispatch(ctx context.Context, d Dispatcher, item any) (string, error) {
	return d.Dispatch(ctx, item)
}

// NewEventBus は新しいイベントバスを作成する
func NewEventBus() *EventBus {
	return events.NewBus()
}

// Run はロールに応じてコーディネーターまたはワーカーとして実行する
// ワーカーでは切断されるまでアイテムを処理し、ゼロ値を返す
func Run[R any](ctx context.Context, driver DriverFunc, stages []Stage, reduce ReduceFunc[R], opts Options) (R, error) {
	var zero R

	if err := applyLogging(opts); err != nil {
		return zero, err
	}

	if !IsCoordinator() {
		return zero, runWorker(ctx, stages, opts)
	}
	if driver == nil || reduce == nil {
		return zero, errors.New("driver and reduce are required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, wait, err := start(ctx, stages, opts)
	if err != nil {
		return zero, err
	}

	driverErr := driver(ctx, c, Args{Params: opts.params()})
	if driverErr != nil {
		logger.Error(coordinator.Label, "Driver failed: %v", driverErr)
	}

	drainErr := c.Drain(ctx)
	if drainErr != nil {
		logger.Warn(coordinator.Label, "Drain did not complete: %v", drainErr)
	}

	if err := c.Shutdown(context.WithoutCancel(ctx)); err != nil {
		logger.Warn(coordinator.Label, "Shutdown finished with errors: %v", err)
	}
	if err := wait(); err != nil {
		logger.Warn(coordinator.Label, "Workers exited with errors: %v", err)
	}

	if driverErr != nil {
		return zero, fmt.Errorf("driver failed: %w", driverErr)
	}
	if drainErr != nil {
		return zero, drainErr
	}

	return reduce(c.Success(), c.Failure())
}

// start はコーディネーターとワーカープールを起動する
// 返される wait はワーカーの終了を待つ
func start(ctx context.Context, stages []Stage, opts Options) (*coordinator.Coordinator, func() error, error) {
	runID := uuid.NewString()
	wait := func() error { return nil }

	var spawner transport.Spawner
	if opts.InProcess {
		params := opts.params()
		inproc := transport.NewInProcess(func(ctx context.Context, id int, conn transport.Conn) error {
			return worker.New(id, conn, stages, params).Run(ctx)
		})
		spawner = inproc
		wait = inproc.Wait
	} else {
		spawner = &transport.Process{
			Args:   opts.WorkerArgs,
			RunID:  runID,
			Params: opts.params(),
		}
	}

	bus := opts.Bus
	if bus == nil && opts.StatusAddr != "" {
		bus = events.NewBus()
		waitWorkers := wait
		wait = func() error {
			defer bus.Close()
			return waitWorkers()
		}
	}

	c := coordinator.New(coordinator.Config{
		NumWorkers:      opts.NumWorkers,
		ShutdownStagger: opts.ShutdownStagger,
		Spawner:         spawner,
		Bus:             bus,
		RunID:           runID,
	})

	if opts.StatusAddr != "" {
		serveStatus(ctx, c, bus, opts.StatusAddr)
	}

	if err := c.Start(ctx); err != nil {
		_ = wait()
		return nil, nil, fmt.Errorf("failed to start workers: %w", err)
	}
	return c, wait, nil
}

// serveStatus は ctx が終わるまでステータスAPIを提供する
// Run の終了時に ctx はキャンセルされる
func serveStatus(ctx context.Context, c *coordinator.Coordinator, bus *events.Bus, addr string) {
	srv := api.NewServer(addr, c, bus)
	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error(coordinator.Label, "Status API failed: %v", err)
		}
	}()
}

// runWorker は継承したパイプ上でワーカーランタイムを実行する
func runWorker(ctx context.Context, stages []Stage, opts Options) error {
	// stdout はユーザーコードのために空けておく
	logger.Default.SetOutput(os.Stderr)

	id := WorkerID()
	conn, err := transport.Inherited()
	if err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}

	params := opts.params()
	envParams, err := transport.ParamsFromEnv()
	if err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}
	maps.Copy(params, envParams)

	logger.Debug(WorkerName(), "Worker started (run %s)", os.Getenv(transport.EnvRunID))
	return worker.New(id, conn, stages, params).Run(ctx)
}

func applyLogging(opts Options) error {
	if opts.Quiet {
		if err := os.Setenv(logger.QuietEnv, "1"); err != nil {
			return fmt.Errorf("failed to set %s: %w", logger.QuietEnv, err)
		}
	}
	if opts.LogLevel != "" {
		level, err := logger.ParseLevel(opts.LogLevel)
		if err != nil {
			return err
		}
		logger.Default.SetLevel(level)
	}
	return nil
}
