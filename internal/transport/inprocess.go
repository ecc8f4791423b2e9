package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// WorkerFunc はゴルーチンとして動くワーカー本体
type WorkerFunc func(ctx context.Context, id int, conn Conn) error

// InProcess はワーカーをゴルーチンとして起動する Spawner
type InProcess struct {
	run WorkerFunc
	wg  sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// Ensure InProcess implements Spawner
var _ Spawner = (*InProcess)(nil)

// NewInProcess は新しい InProcess Spawner を作成する
func NewInProcess(run WorkerFunc) *InProcess {
	return &InProcess{run: run}
}

// Spawn はワーカーゴルーチンを起動する
// ワーカーの寿命は ctx ではなく接続のクローズで決まる
func (s *InProcess) Spawn(ctx context.Context, id int) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	local, remote := Pipe()
	workerCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer remote.Close()

		if err := s.run(workerCtx, id, remote); err != nil {
			s.mu.Lock()
			s.errs = append(s.errs, fmt.Errorf("worker %d: %w", id, err))
			s.mu.Unlock()
		}
	}()

	return local, nil
}

// Wait は全てのワーカーゴルーチンの終了を待ち、発生したエラーを返す
func (s *InProcess) Wait() error {
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}
