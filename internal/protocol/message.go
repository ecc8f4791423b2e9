package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind はメッセージ種別を表す
type Kind string

const (
	KindSyn    Kind = "SYN"
	KindAck    Kind = "ACK"
	KindSynAck Kind = "SYN_ACK"
	KindData   Kind = "DATA"
	KindReply  Kind = "REPLY"
)

// ErrInvalidFrame は不正なフレームを受信したことを示す
var ErrInvalidFrame = errors.New("invalid frame")

// Message はコーディネーターとワーカー間で交換されるメッセージ
type Message interface {
	Kind() Kind
}

// Syn はワーカー起動直後の登録要求
type Syn struct {
	WorkerID int
}

// Ack は Syn に対するコーディネーターの応答
type Ack struct{}

// SynAck はワーカーがディスパッチ可能になったことを示す
type SynAck struct {
	WorkerID int
}

// Data はワーカーに送るワークアイテム
type Data struct {
	ItemID  string
	Payload json.RawMessage
}

// Reply はパイプライン実行結果
type Reply struct {
	WorkerID int
	ItemID   string
	Payload  json.RawMessage
	Outcome  Outcome
}

// Outcome はパイプラインの成否と出力
type Outcome struct {
	Response json.RawMessage
	Failed   bool
	Error    string
}

// Succeeded は成功した Outcome を作成する
func Succeeded(response json.RawMessage) Outcome {
	return Outcome{Response: response}
}

// Failed は失敗した Outcome を作成する
func Failed(err error) Outcome {
	msg := "stage failed"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Failed: true, Error: msg}
}

func (Syn) Kind() Kind    { return KindSyn }
func (Ack) Kind() Kind    { return KindAck }
func (SynAck) Kind() Kind { return KindSynAck }
func (Data) Kind() Kind   { return KindData }
func (Reply) Kind() Kind  { return KindReply }

// IsControl はハンドシェイク用メッセージかどうかを返す
func IsControl(m Message) bool {
	switch m.(type) {
	case Syn, Ack, SynAck:
		return true
	default:
		return false
	}
}

// Frame はメッセージのワイヤ表現（JSON 1行 = 1フレーム）
type Frame struct {
	Kind     Kind            `json:"kind"`
	ID       int             `json:"id,omitempty"`
	ItemID   string          `json:"item_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	Failed   bool            `json:"failed,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// ToFrame はメッセージをフレームに変換する
func ToFrame(m Message) (Frame, error) {
	switch msg := m.(type) {
	case Syn:
		return Frame{Kind: KindSyn, ID: msg.WorkerID}, nil
	case Ack:
		return Frame{Kind: KindAck}, nil
	case SynAck:
		return Frame{Kind: KindSynAck, ID: msg.WorkerID}, nil
	case Data:
		return Frame{Kind: KindData, ItemID: msg.ItemID, Data: msg.Payload}, nil
	case Reply:
		f := Frame{
			Kind:   KindReply,
			ID:     msg.WorkerID,
			ItemID: msg.ItemID,
			Data:   msg.Payload,
			Failed: msg.Outcome.Failed,
			Error:  msg.Outcome.Error,
		}
		if !msg.Outcome.Failed {
			f.Response = msg.Outcome.Response
		}
		return f, nil
	default:
		return Frame{}, fmt.Errorf("%w: unknown message type %T", ErrInvalidFrame, m)
	}
}

// Message はフレームを検証してメッセージに変換する
func (f Frame) Message() (Message, error) {
	switch f.Kind {
	case KindSyn, KindAck, KindSynAck:
		if len(f.Data) > 0 || len(f.Response) > 0 || f.Failed || f.ItemID != "" {
			return nil, fmt.Errorf("%w: control frame %s carries payload", ErrInvalidFrame, f.Kind)
		}
		switch f.Kind {
		case KindSyn:
			return Syn{WorkerID: f.ID}, nil
		case KindAck:
			return Ack{}, nil
		default:
			return SynAck{WorkerID: f.ID}, nil
		}
	case KindData:
		if len(f.Response) > 0 || f.Failed {
			return nil, fmt.Errorf("%w: data frame carries a reply", ErrInvalidFrame)
		}
		return Data{ItemID: f.ItemID, Payload: f.Data}, nil
	case KindReply:
		if f.ID == 0 {
			return nil, fmt.Errorf("%w: reply without worker id", ErrInvalidFrame)
		}
		if f.Failed && len(f.Response) > 0 {
			return nil, fmt.Errorf("%w: failed reply carries a response", ErrInvalidFrame)
		}
		return Reply{
			WorkerID: f.ID,
			ItemID:   f.ItemID,
			Payload:  f.Data,
			Outcome:  Outcome{Response: f.Response, Failed: f.Failed, Error: f.Error},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidFrame, f.Kind)
	}
}
