package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/tiemma/sonic-distribute/internal/protocol"
)

// ワーカープロセスに渡す環境変数
const (
	EnvWorkerID = "SONIC_WORKER_ID"
	EnvRunID    = "SONIC_RUN_ID"
	EnvParams   = "SONIC_PARAMS"
)

// ErrClosed は閉じられた接続への送信を示す
var ErrClosed = errors.New("transport closed")

// Conn はコーディネーターとワーカー間の双方向メッセージチャネル
type Conn interface {
	Send(m protocol.Message) error
	// Recv は相手側が切断すると io.EOF を返す
	Recv() (protocol.Message, error)
	Close() error
}

// Spawner はワーカーを起動し、コーディネーター側の接続を返す
type Spawner interface {
	Spawn(ctx context.Context, id int) (Conn, error)
}

// WorkerIDFromEnv は環境変数からワーカーIDを読み取る
func WorkerIDFromEnv() (int, bool) {
	v := os.Getenv(EnvWorkerID)
	if v == "" {
		return 0, false
	}
	id, err := strconv.Atoi(v)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// streamConn はバイトストリーム上の Conn
type streamConn struct {
	r   io.ReadCloser
	w   io.WriteCloser
	enc *protocol.Encoder
	dec *protocol.Decoder

	closeOnce sync.Once
	closeErr  error
	onClose   func() error
}

// NewStream は r と w の上に JSON Lines の Conn を作成する
func NewStream(r io.ReadCloser, w io.WriteCloser) Conn {
	return newStream(r, w, nil)
}

func newStream(r io.ReadCloser, w io.WriteCloser, onClose func() error) *streamConn {
	return &streamConn{
		r:       r,
		w:       w,
		enc:     protocol.NewEncoder(w),
		dec:     protocol.NewDecoder(r),
		onClose: onClose,
	}
}

func (c *streamConn) Send(m protocol.Message) error {
	if err := c.enc.Encode(m); err != nil {
		if errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (c *streamConn) Recv() (protocol.Message, error) {
	m, err := c.dec.Decode()
	if err != nil {
		if errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return nil, io.EOF
		}
		return nil, err
	}
	return m, nil
}

// Close は書き込み側を閉じて相手に EOF を伝える
func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		if err := c.w.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			c.closeErr = fmt.Errorf("failed to close writer: %w", err)
		}
		if c.onClose != nil {
			if err := c.onClose(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
		_ = c.r.Close()
	})
	return c.closeErr
}
