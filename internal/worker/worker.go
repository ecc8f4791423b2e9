package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/tiemma/sonic-distribute/internal/logger"
	"github.com/tiemma/sonic-distribute/internal/node"
	"github.com/tiemma/sonic-distribute/internal/protocol"
	"github.com/tiemma/sonic-distribute/internal/transport"
)

// ErrNotAcknowledged は Ack 前に Data を受信したことを示す
var ErrNotAcknowledged = errors.New("data received before handshake acknowledgement")

// Runtime はワーカー側のハンドシェイクとパイプライン実行を担う
type Runtime struct {
	id     int
	conn   transport.Conn
	stages []Stage
	params map[string]string
	label  string

	acked   bool
	handled int
}

// New は新しいワーカーランタイムを作成する
func New(id int, conn transport.Conn, stages []Stage, params map[string]string) *Runtime {
	return &Runtime{
		id:     id,
		conn:   conn,
		stages: stages,
		params: params,
		label:  node.Name(id),
	}
}

// ID はワーカーIDを返す
func (r *Runtime) ID() int {
	return r.id
}

// Handled は返信済みアイテム数を返す
func (r *Runtime) Handled() int {
	return r.handled
}

// Run はコーディネーターから切断されるまでメッセージを処理する
// 正常な切断では nil を返す
func (r *Runtime) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.Close()
	})
	defer stop()

	if err := r.conn.Send(protocol.Syn{WorkerID: r.id}); err != nil {
		return fmt.Errorf("failed to send syn: %w", err)
	}
	logger.Debug(r.label, "Sent SYN")

	for {
		msg, err := r.conn.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) {
				logger.Debug(r.label, "Disconnected after %d items", r.handled)
				return nil
			}
			return fmt.Errorf("failed to receive: %w", err)
		}

		switch m := msg.(type) {
		case protocol.Ack:
			if r.acked {
				logger.Debug(r.label, "Ignoring duplicate ACK")
				continue
			}
			r.acked = true
			if err := r.conn.Send(protocol.SynAck{WorkerID: r.id}); err != nil {
				return fmt.Errorf("failed to send syn-ack: %w", err)
			}
			logger.Debug(r.label, "Handshake complete")
		case protocol.Data:
			if !r.acked {
				return fmt.Errorf("%w: item %s", ErrNotAcknowledged, m.ItemID)
			}
			if err := r.conn.Send(r.handle(ctx, m)); err != nil {
				return fmt.Errorf("failed to send reply for item %s: %w", m.ItemID, err)
			}
			r.handled++
		default:
			logger.Warn(r.label, "Ignoring unexpected %s message", msg.Kind())
		}
	}
}

// handle はアイテムを実行し、必ず1つの Reply を作成する
func (r *Runtime) handle(ctx context.Context, m protocol.Data) protocol.Reply {
	reply := protocol.Reply{
		WorkerID: r.id,
		ItemID:   m.ItemID,
		Payload:  m.Payload,
	}

	args := Args{WorkerID: r.id, Params: maps.Clone(r.params)}
	out, err := Execute(ctx, r.stages, Event{ItemID: m.ItemID, Data: m.Payload}, args)
	if err != nil {
		logger.Warn(r.label, "Item %s failed: %v", m.ItemID, err)
		reply.Outcome = protocol.Failed(err)
		return reply
	}

	resp, err := json.Marshal(out)
	if err != nil {
		logger.Warn(r.label, "Item %s output is not encodable: %v", m.ItemID, err)
		reply.Outcome = protocol.Failed(fmt.Errorf("failed to encode output: %w", err))
		return reply
	}
	reply.Outcome = protocol.Succeeded(resp)
	return reply
}
