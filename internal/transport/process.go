package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// ワーカープロセス側で継承されるファイルディスクリプタ
const (
	workerInFD  = 3 // coordinator -> worker
	workerOutFD = 4 // worker -> coordinator
)

// Process は自身のバイナリを再実行してワーカープロセスを起動する Spawner
type Process struct {
	Path   string            // 空の場合は os.Executable()
	Args   []string          // 空の場合は os.Args[1:]
	Env    []string          // 追加の環境変数
	RunID  string            // SONIC_RUN_ID として渡す
	Params map[string]string // SONIC_PARAMS として JSON で渡す
	Stdout io.Writer
	Stderr io.Writer
}

// Ensure Process implements Spawner
var _ Spawner = (*Process)(nil)

// Spawn はワーカープロセスを起動する
// プロセスの寿命は ctx ではなく接続のクローズで決まる
func (p *Process) Spawn(ctx context.Context, id int) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := p.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable: %w", err)
		}
		path = exe
	}
	args := p.Args
	if args == nil && len(os.Args) > 1 {
		args = os.Args[1:]
	}

	env, err := p.environ(id)
	if err != nil {
		return nil, err
	}

	toWorkerR, toWorkerW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	fromWorkerR, fromWorkerW, err := os.Pipe()
	if err != nil {
		_ = toWorkerR.Close()
		_ = toWorkerW.Close()
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}

	cmd := exec.Command(path, args...)
	cmd.Env = env
	cmd.Stdout = writerOr(p.Stdout, os.Stdout)
	cmd.Stderr = writerOr(p.Stderr, os.Stderr)
	cmd.ExtraFiles = []*os.File{toWorkerR, fromWorkerW}

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{toWorkerR, toWorkerW, fromWorkerR, fromWorkerW} {
			_ = f.Close()
		}
		return nil, fmt.Errorf("failed to start worker %d: %w", id, err)
	}

	// 子プロセス側の端は親では不要
	_ = toWorkerR.Close()
	_ = fromWorkerW.Close()

	var waitOnce sync.Once
	var waitErr error
	wait := func() error {
		waitOnce.Do(func() {
			if err := cmd.Wait(); err != nil {
				waitErr = fmt.Errorf("worker %d exited: %w", id, err)
			}
		})
		return waitErr
	}

	return newStream(fromWorkerR, toWorkerW, wait), nil
}

func (p *Process) environ(id int) ([]string, error) {
	env := append(os.Environ(), p.Env...)
	env = append(env, EnvWorkerID+"="+strconv.Itoa(id))
	if p.RunID != "" {
		env = append(env, EnvRunID+"="+p.RunID)
	}
	if len(p.Params) > 0 {
		data, err := json.Marshal(p.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode params: %w", err)
		}
		env = append(env, EnvParams+"="+string(data))
	}
	return env, nil
}

func writerOr(w io.Writer, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}

// Inherited はワーカープロセス側で、親から継承したパイプ上の Conn を返す
func Inherited() (Conn, error) {
	in := os.NewFile(workerInFD, "sonic-in")
	out := os.NewFile(workerOutFD, "sonic-out")
	if in == nil || out == nil {
		return nil, errors.New("worker pipes not inherited")
	}
	return NewStream(in, out), nil
}

// ParamsFromEnv は SONIC_PARAMS を読み取る
func ParamsFromEnv() (map[string]string, error) {
	raw := os.Getenv(EnvParams)
	if raw == "" {
		return nil, nil
	}
	var params map[string]string
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvParams, err)
	}
	return params, nil
}
