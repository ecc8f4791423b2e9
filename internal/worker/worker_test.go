package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiemma/sonic-distribute/internal/logger"
	"github.com/tiemma/sonic-distribute/internal/protocol"
	"github.com/tiemma/sonic-distribute/internal/transport"
)

func addOne(_ context.Context, ev Event, _ Args) (any, error) {
	var n int
	if err := ev.Decode(&n); err != nil {
		return nil, err
	}
	return n + 1, nil
}

func double(_ context.Context, ev Event, _ Args) (any, error) {
	var n int
	if err := ev.Decode(&n); err != nil {
		return nil, err
	}
	return n * 2, nil
}

func fail(context.Context, Event, Args) (any, error) {
	return nil, errors.New("boom")
}

// startRuntime は Runtime を起動し、コーディネーター側の接続を返す
func startRuntime(t *testing.T, stages []Stage, params map[string]string) (transport.Conn, <-chan error) {
	t.Helper()
	t.Setenv(logger.QuietEnv, "1")

	local, remote := transport.Pipe()
	rt := New(3, local, stages, params)
	done := make(chan error, 1)
	go func() {
		done <- rt.Run(context.Background())
	}()
	t.Cleanup(func() { _ = remote.Close() })
	return remote, done
}

func recv(t *testing.T, conn transport.Conn) protocol.Message {
	t.Helper()
	msg, err := conn.Recv()
	require.NoError(t, err)
	return msg
}

func handshake(t *testing.T, conn transport.Conn) {
	t.Helper()
	require.Equal(t, protocol.Syn{WorkerID: 3}, recv(t, conn))
	require.NoError(t, conn.Send(protocol.Ack{}))
	require.Equal(t, protocol.SynAck{WorkerID: 3}, recv(t, conn))
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for runtime to exit")
		return nil
	}
}

func TestExecuteComposes(t *testing.T) {
	ctx := context.Background()
	ev := Event{ItemID: "item", Data: json.RawMessage("5")}

	out, err := Execute(ctx, []Stage{addOne, double}, ev, Args{})
	require.NoError(t, err)
	assert.Equal(t, 12, out)

	out, err = Execute(ctx, []Stage{double, addOne}, ev, Args{})
	require.NoError(t, err)
	assert.Equal(t, 11, out)
}

func TestExecuteShortCircuits(t *testing.T) {
	called := false
	spy := func(context.Context, Event, Args) (any, error) {
		called = true
		return nil, nil
	}

	_, err := Execute(context.Background(), []Stage{addOne, fail, spy}, Event{Data: 1}, Args{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage 2: boom")
	assert.False(t, called, "stage after failure must not run")
}

func TestExecuteRecoversPanic(t *testing.T) {
	panicky := func(context.Context, Event, Args) (any, error) {
		panic("kaboom")
	}

	_, err := Execute(context.Background(), []Stage{panicky}, Event{}, Args{})
	require.ErrorIs(t, err, ErrStagePanic)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestExecuteEmptyPipelineEchoes(t *testing.T) {
	out, err := Execute(context.Background(), nil, Event{Data: "same"}, Args{})
	require.NoError(t, err)
	assert.Equal(t, "same", out)
}

func TestEventDecode(t *testing.T) {
	t.Run("raw json", func(t *testing.T) {
		var s string
		require.NoError(t, Event{Data: json.RawMessage(`"a.txt"`)}.Decode(&s))
		assert.Equal(t, "a.txt", s)
	})

	t.Run("assignable", func(t *testing.T) {
		in := map[string]int{"a": 1}
		var out map[string]int
		require.NoError(t, Event{Data: in}.Decode(&out))
		assert.Equal(t, in, out)
	})

	t.Run("json fallback", func(t *testing.T) {
		var out map[string]int
		require.NoError(t, Event{Data: map[string]any{"a": 1.0}}.Decode(&out))
		assert.Equal(t, map[string]int{"a": 1}, out)
	})

	t.Run("non pointer", func(t *testing.T) {
		var out int
		assert.Error(t, Event{Data: 1}.Decode(out))
	})
}

func TestRuntimeHandshakeAndReply(t *testing.T) {
	conn, done := startRuntime(t, []Stage{addOne, double}, nil)
	handshake(t, conn)

	require.NoError(t, conn.Send(protocol.Data{ItemID: "i-1", Payload: json.RawMessage("2")}))
	msg := recv(t, conn)

	reply, ok := msg.(protocol.Reply)
	require.True(t, ok, "expected reply, got %T", msg)
	assert.Equal(t, 3, reply.WorkerID)
	assert.Equal(t, "i-1", reply.ItemID)
	assert.JSONEq(t, "2", string(reply.Payload))
	assert.False(t, reply.Outcome.Failed)
	assert.JSONEq(t, "6", string(reply.Outcome.Response))

	require.NoError(t, conn.Close())
	assert.NoError(t, waitDone(t, done))
}

func TestRuntimeFailureReply(t *testing.T) {
	conn, done := startRuntime(t, []Stage{fail, addOne}, nil)
	handshake(t, conn)

	require.NoError(t, conn.Send(protocol.Data{ItemID: "i-2", Payload: json.RawMessage("1")}))
	reply := recv(t, conn).(protocol.Reply)
	assert.True(t, reply.Outcome.Failed)
	assert.Empty(t, reply.Outcome.Response)
	assert.Equal(t, "stage 1: boom", reply.Outcome.Error)

	require.NoError(t, conn.Close())
	assert.NoError(t, waitDone(t, done))
}

func TestRuntimeUnencodableOutput(t *testing.T) {
	badOutput := func(context.Context, Event, Args) (any, error) {
		return make(chan int), nil
	}
	conn, done := startRuntime(t, []Stage{badOutput}, nil)
	handshake(t, conn)

	require.NoError(t, conn.Send(protocol.Data{ItemID: "i-3", Payload: json.RawMessage("1")}))
	reply := recv(t, conn).(protocol.Reply)
	assert.True(t, reply.Outcome.Failed)
	assert.True(t, strings.HasPrefix(reply.Outcome.Error, "failed to encode output"))

	require.NoError(t, conn.Close())
	assert.NoError(t, waitDone(t, done))
}

func TestRuntimeIgnoresDuplicateAck(t *testing.T) {
	conn, done := startRuntime(t, []Stage{addOne}, nil)
	handshake(t, conn)

	require.NoError(t, conn.Send(protocol.Ack{}))
	require.NoError(t, conn.Send(protocol.Data{ItemID: "i-4", Payload: json.RawMessage("1")}))

	// 2回目の ACK には SYN_ACK を返さず、次のメッセージは Reply になる
	_, ok := recv(t, conn).(protocol.Reply)
	assert.True(t, ok)

	require.NoError(t, conn.Close())
	assert.NoError(t, waitDone(t, done))
}

func TestRuntimeDataBeforeAck(t *testing.T) {
	conn, done := startRuntime(t, []Stage{addOne}, nil)
	require.Equal(t, protocol.Syn{WorkerID: 3}, recv(t, conn))

	require.NoError(t, conn.Send(protocol.Data{ItemID: "early", Payload: json.RawMessage("1")}))
	assert.ErrorIs(t, waitDone(t, done), ErrNotAcknowledged)
}

func TestRuntimePassesArgs(t *testing.T) {
	var seen Args
	capture := func(_ context.Context, _ Event, args Args) (any, error) {
		seen = args
		args.Params["mutated"] = "yes"
		return args.Param("dir"), nil
	}
	params := map[string]string{"dir": "/data"}
	conn, done := startRuntime(t, []Stage{capture}, params)
	handshake(t, conn)

	require.NoError(t, conn.Send(protocol.Data{ItemID: "i-5", Payload: json.RawMessage("null")}))
	reply := recv(t, conn).(protocol.Reply)
	assert.JSONEq(t, `"/data"`, string(reply.Outcome.Response))

	require.NoError(t, conn.Close())
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, 3, seen.WorkerID)
	_, mutated := params["mutated"]
	assert.False(t, mutated, "stages must not mutate the runtime params")
}

func TestRuntimeContextCancel(t *testing.T) {
	t.Setenv(logger.QuietEnv, "1")
	local, remote := transport.Pipe()
	defer func() { _ = remote.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(1, local, nil, nil).Run(ctx)
	}()

	_ = recv(t, remote)
	cancel()
	assert.ErrorIs(t, waitDone(t, done), context.Canceled)
}
