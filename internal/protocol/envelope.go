package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNoResponse は失敗したアイテムのレスポンスを読もうとしたことを示す
var ErrNoResponse = errors.New("envelope has no response")

// Envelope は結果キューに格納される完了済みアイテム
type Envelope struct {
	ItemID       string          `json:"item_id"`
	WorkerID     int             `json:"id"`
	Data         json.RawMessage `json:"data,omitempty"`
	Response     json.RawMessage `json:"response,omitempty"`
	Failed       bool            `json:"failed,omitempty"`
	Error        string          `json:"error,omitempty"`
	DispatchedAt time.Time       `json:"dispatched_at"`
	CompletedAt  time.Time       `json:"completed_at"`
}

// FromReply は Reply から Envelope を作成する
func FromReply(r Reply, dispatchedAt, completedAt time.Time) Envelope {
	env := Envelope{
		ItemID:       r.ItemID,
		WorkerID:     r.WorkerID,
		Data:         r.Payload,
		Failed:       r.Outcome.Failed,
		Error:        r.Outcome.Error,
		DispatchedAt: dispatchedAt,
		CompletedAt:  completedAt,
	}
	if !r.Outcome.Failed {
		env.Response = r.Outcome.Response
	}
	return env
}

// Decode はレスポンスを v にデコードする
func (e Envelope) Decode(v any) error {
	if e.Failed || len(e.Response) == 0 {
		return ErrNoResponse
	}
	return json.Unmarshal(e.Response, v)
}

// DecodeData は元のワークアイテムを v にデコードする
func (e Envelope) DecodeData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Latency はディスパッチから完了までの時間を返す
func (e Envelope) Latency() time.Duration {
	if e.DispatchedAt.IsZero() || e.CompletedAt.IsZero() {
		return 0
	}
	return e.CompletedAt.Sub(e.DispatchedAt)
}
