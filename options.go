package distribute

import (
	"maps"
	"time"

	"github.com/tiemma/sonic-distribute/internal/config"
)

// Options は Run の設定
type Options struct {
	NumWorkers      int               // ワーカー数（0でCPU数）
	Params          map[string]string // 全ステージとドライバーに渡す引数
	ShutdownStagger time.Duration     // 切断要求の間隔
	InProcess       bool              // ワーカーをゴルーチンとして起動する
	StatusAddr      string            // 空でなければステータスAPIを起動する
	Bus             *EventBus         // nil でも StatusAddr があれば内部で作成する
	LogLevel        string            // 空ならロガーの設定を変更しない
	Quiet           bool              // QUIET を設定してログを抑制する
	WorkerArgs      []string          // ワーカープロセスの引数（nil で os.Args[1:]）
}

// DefaultOptions はデフォルト設定を返す
func DefaultOptions() Options {
	settings := config.DefaultSettings()
	return Options{
		NumWorkers:      settings.NumWorkers,
		Params:          settings.Params,
		ShutdownStagger: settings.ShutdownStagger,
		InProcess:       settings.InProcess,
	}
}

// LoadOptions は設定ファイル（YAML/JSON）から Options を読み込む
func LoadOptions(path string) (Options, error) {
	settings, err := config.Load(path)
	if err != nil {
		return DefaultOptions(), err
	}
	return Options{
		NumWorkers:      settings.NumWorkers,
		Params:          settings.Params,
		ShutdownStagger: settings.ShutdownStagger,
		InProcess:       settings.InProcess,
		StatusAddr:      settings.StatusAddr,
		LogLevel:        settings.LogLevel.String(),
		Quiet:           settings.Quiet,
	}, nil
}

// params は Params のコピーを返す
func (o Options) params() map[string]string {
	out := make(map[string]string, len(o.Params))
	maps.Copy(out, o.Params)
	return out
}
