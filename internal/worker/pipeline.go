package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// ErrStagePanic はステージが panic したことを示す
var ErrStagePanic = errors.New("stage panicked")

// Event はステージに渡される入力
// 先頭ステージはディスパッチされたアイテム、以降は前段の出力を受け取る
type Event struct {
	ItemID string
	Data   any
}

// Decode はイベントデータを v にバインドする
// 代入可能ならそのまま代入し、それ以外は JSON を経由する
func (e Event) Decode(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", v)
	}

	switch data := e.Data.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return json.Unmarshal(data, v)
	}

	dv := reflect.ValueOf(e.Data)
	if target := rv.Elem(); dv.Type().AssignableTo(target.Type()) {
		target.Set(dv)
		return nil
	}

	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	return json.Unmarshal(raw, v)
}

// Args は全ステージに共通の引数
type Args struct {
	WorkerID int
	Params   map[string]string
}

// Param はパラメータを取得する
func (a Args) Param(key string) string {
	return a.Params[key]
}

// Stage はパイプラインの1段
type Stage func(ctx context.Context, ev Event, args Args) (any, error)

// Execute はステージを順に実行し、最後の出力を返す
// 最初のエラー（panic を含む）で中断し、以降のステージは呼ばれない
func Execute(ctx context.Context, stages []Stage, ev Event, args Args) (any, error) {
	for i, stage := range stages {
		out, err := runStage(ctx, stage, ev, args)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		ev = Event{ItemID: ev.ItemID, Data: out}
	}
	return ev.Data, nil
}

// runStage は panic をエラーに変換してステージを実行する
func runStage(ctx context.Context, stage Stage, ev Event, args Args) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrStagePanic, r)
		}
	}()
	return stage(ctx, ev, args)
}
