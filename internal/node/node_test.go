package node

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/tiemma/sonic-distribute/internal/protocol"
	"github.com/tiemma/sonic-distribute/internal/transport"
)

func TestNewNode(t *testing.T) {
	local, _ := transport.Pipe()
	n := New(1, local)

	if n.ID() != 1 {
		t.Errorf("expected ID 1, got %d", n.ID())
	}
	if n.Name() != "WORKER-1" {
		t.Errorf("expected name WORKER-1, got %s", n.Name())
	}
	if n.Status() != StatusSpawned {
		t.Errorf("expected status Spawned, got %v", n.Status())
	}
	if !n.IsLive() {
		t.Error("expected new node to be live")
	}
}

func TestNodeStatusString(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusSpawned, "spawned"},
		{StatusReady, "ready"},
		{StatusBusy, "busy"},
		{StatusDisconnected, "disconnected"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.expected {
			t.Errorf("Status(%d).String() = %s, want %s", tt.status, got, tt.expected)
		}
	}
}

func TestNodeLifecycle(t *testing.T) {
	local, _ := transport.Pipe()
	n := New(1, local)

	// Spawned -> Busy is not allowed
	if err := n.MarkBusy("item-1"); err == nil {
		t.Error("expected error when dispatching to a node before handshake")
	}

	// Spawned -> Ready
	if err := n.MarkReady(); err != nil {
		t.Fatalf("failed to mark ready: %v", err)
	}
	if n.ReadyAt().IsZero() {
		t.Error("expected readyAt to be set")
	}

	// Ready -> Ready is a duplicate readiness signal
	if err := n.MarkReady(); err == nil {
		t.Error("expected error on duplicate readiness signal")
	}

	// Ready -> Busy
	if err := n.MarkBusy("item-1"); err != nil {
		t.Fatalf("failed to mark busy: %v", err)
	}
	if n.Current() != "item-1" {
		t.Errorf("expected current item-1, got %s", n.Current())
	}

	// Busy -> Busy is not allowed
	if err := n.MarkBusy("item-2"); err == nil {
		t.Error("expected error when dispatching to a busy node")
	}

	// Busy -> Ready
	if err := n.MarkReady(); err != nil {
		t.Fatalf("failed to mark ready after reply: %v", err)
	}
	if n.Handled() != 1 {
		t.Errorf("expected 1 handled item, got %d", n.Handled())
	}
	if n.Current() != "" {
		t.Errorf("expected no current item, got %s", n.Current())
	}
}

func TestNodeMarkDisconnected(t *testing.T) {
	local, _ := transport.Pipe()
	n := New(2, local)
	_ = n.MarkReady()
	_ = n.MarkBusy("item-9")

	itemID, wasLive := n.MarkDisconnected()
	if !wasLive {
		t.Error("expected node to have been live")
	}
	if itemID != "item-9" {
		t.Errorf("expected in-flight item-9, got %q", itemID)
	}

	if _, wasLive := n.MarkDisconnected(); wasLive {
		t.Error("expected second disconnect to report not live")
	}
	if err := n.MarkReady(); err == nil {
		t.Error("expected error when readying a disconnected node")
	}
}

func TestNodeSendRecv(t *testing.T) {
	local, remote := transport.Pipe()
	n := New(1, local)

	if err := n.Send(protocol.Ack{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if m, err := remote.Recv(); err != nil || m.Kind() != protocol.KindAck {
		t.Fatalf("expected Ack, got %v (%v)", m, err)
	}

	if err := remote.Send(protocol.SynAck{WorkerID: 1}); err != nil {
		t.Fatalf("remote send failed: %v", err)
	}
	if m, err := n.Recv(); err != nil || m.Kind() != protocol.KindSynAck {
		t.Fatalf("expected SynAck, got %v (%v)", m, err)
	}
}

func TestNodeDisconnect(t *testing.T) {
	local, remote := transport.Pipe()
	n := New(1, local)

	if err := n.Disconnect(); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	if n.Status() != StatusDisconnected {
		t.Errorf("expected status Disconnected, got %v", n.Status())
	}

	if _, err := remote.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("expected worker side to see EOF, got %v", err)
	}
	if err := n.Send(protocol.Ack{}); !errors.Is(err, ErrDisconnected) {
		t.Errorf("expected ErrDisconnected, got %v", err)
	}
}

func TestNodeConcurrentMarkBusy(t *testing.T) {
	local, _ := transport.Pipe()
	n := New(1, local)
	_ = n.MarkReady()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for rep := 0; rep < 100; rep++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.MarkBusy("item"); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("expected exactly one dispatch to be accepted, got %d", accepted)
	}
}
