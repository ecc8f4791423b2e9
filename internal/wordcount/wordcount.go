// Package wordcount is the sample job: count the words of every file in a
// directory across the worker pool.
package wordcount

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	distribute "github.com/tiemma/sonic-distribute"
	"github.com/tiemma/sonic-distribute/internal/logger"
)

// ParamDir は入力ディレクトリを渡すパラメータ名
const ParamDir = "dir"

// Counts は単語ごとの出現回数
type Counts map[string]int

// Failure は集計から除外されたファイル
type Failure struct {
	File  string
	Error string
}

// Result は集計結果
type Result struct {
	Counts   Counts
	Failures []Failure
}

// ListFiles はディレクトリ直下の通常ファイル名を名前順で返す
func ListFiles(dir string) ([]string, error) {
	if dir == "" {
		return nil, errors.New("no input directory given")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

// Driver はファイル名を1件ずつディスパッチするドライバーを返す
// parallel は同時に待機できるディスパッチ数（1未満は1）
func Driver(parallel int) distribute.DriverFunc {
	if parallel < 1 {
		parallel = 1
	}

	return func(ctx context.Context, d distribute.Dispatcher, args distribute.Args) error {
		files, err := ListFiles(args.Param(ParamDir))
		if err != nil {
			return err
		}
		logger.Info(distribute.WorkerName(), "Dispatching %d files", len(files))

		g, ctx := errgroup.WithContext(ctx)
		limiter := semaphore.NewWeighted(int64(parallel))

		var acquireErr error
		for _, file := range files {
			file := file
			if acquireErr = limiter.Acquire(ctx, 1); acquireErr != nil {
				break
			}

			g.Go(func() error {
				defer limiter.Release(1)
				if _, err := distribute.Dispatch(ctx, d, file); err != nil {
					return fmt.Errorf("file %s: %w", file, err)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}
		return acquireErr
	}
}

// CountWords はファイルを読み込み、空白区切りで単語を数える
func CountWords(_ context.Context, ev distribute.Event, args distribute.Args) (any, error) {
	var name string
	if err := ev.Decode(&name); err != nil {
		return nil, fmt.Errorf("invalid file name: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(args.Param(ParamDir), name))
	if err != nil {
		return nil, err
	}

	counts := make(Counts)
	for _, word := range strings.Fields(string(data)) {
		counts[word]++
	}
	return counts, nil
}

// Double は全ての出現回数を2倍にする
func Double(_ context.Context, ev distribute.Event, _ distribute.Args) (any, error) {
	var counts Counts
	if err := ev.Decode(&counts); err != nil {
		return nil, err
	}

	doubled := make(Counts, len(counts))
	for word, n := range counts {
		doubled[word] = n * 2
	}
	return doubled, nil
}

// Stages はパイプラインを返す
func Stages(double bool) []distribute.Stage {
	stages := []distribute.Stage{CountWords}
	if double {
		stages = append(stages, Double)
	}
	return stages
}

// Reduce は成功キューの集計を合算し、失敗キューのファイルを記録する
// 両方のキューは空になる
func Reduce(success, failure *distribute.Queue) (Result, error) {
	result := Result{Counts: make(Counts)}

	for !success.IsEmpty() {
		env, _ := success.Dequeue()
		var counts Counts
		if err := env.Decode(&counts); err != nil {
			return result, fmt.Errorf("item %s: %w", env.ItemID, err)
		}
		for word, n := range counts {
			result.Counts[word] += n
		}
	}

	for !failure.IsEmpty() {
		env, _ := failure.Dequeue()
		var file string
		_ = env.DecodeData(&file)
		result.Failures = append(result.Failures, Failure{File: file, Error: env.Error})
	}
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].File < result.Failures[j].File
	})

	return result, nil
}

// Sorted は単語を回数の降順、同数なら辞書順で返す
func (c Counts) Sorted() []string {
	words := make([]string, 0, len(c))
	for w := range c {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if c[words[i]] != c[words[j]] {
			return c[words[i]] > c[words[j]]
		}
		return words[i] < words[j]
	})
	return words
}
