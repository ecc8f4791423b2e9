package transport

import (
	"io"
	"sync"

	"github.com/tiemma/sonic-distribute/internal/protocol"
)

const pipeBufferSize = 16

// direction は片方向のメッセージ経路
type direction struct {
	msgs   chan protocol.Message
	closed chan struct{}
	once   sync.Once
}

func newDirection() *direction {
	return &direction{
		msgs:   make(chan protocol.Message, pipeBufferSize),
		closed: make(chan struct{}),
	}
}

func (d *direction) close() {
	d.once.Do(func() { close(d.closed) })
}

// pipeConn はゴルーチン間のインメモリ Conn
type pipeConn struct {
	rx *direction
	tx *direction
}

// Pipe は接続済みの Conn のペアを返す
// どちらかを Close すると両方向が閉じ、相手の Recv は未読分を返した後 io.EOF を返す
func Pipe() (Conn, Conn) {
	a, b := newDirection(), newDirection()
	return &pipeConn{rx: a, tx: b}, &pipeConn{rx: b, tx: a}
}

func (c *pipeConn) Send(m protocol.Message) error {
	select {
	case <-c.tx.closed:
		return ErrClosed
	default:
	}

	select {
	case c.tx.msgs <- m:
		return nil
	case <-c.tx.closed:
		return ErrClosed
	}
}

func (c *pipeConn) Recv() (protocol.Message, error) {
	select {
	case m := <-c.rx.msgs:
		return m, nil
	default:
	}

	select {
	case m := <-c.rx.msgs:
		return m, nil
	case <-c.rx.closed:
		select {
		case m := <-c.rx.msgs:
			return m, nil
		default:
			return nil, io.EOF
		}
	}
}

func (c *pipeConn) Close() error {
	c.tx.close()
	c.rx.close()
	return nil
}
