package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	distribute "github.com/tiemma/sonic-distribute"
	"github.com/tiemma/sonic-distribute/internal/wordcount"
)

type wordCountFlags struct {
	dir       string
	workers   int
	double    bool
	parallel  int
	inProcess bool
	config    string
	addr      string
	logLevel  string
}

func newWordCountCmd() *cobra.Command {
	var f wordCountFlags

	cmd := &cobra.Command{
		Use:   "wordcount",
		Short: "Count the words of every file in a directory",
		Example: `  # 4 worker processes
  sonic wordcount --dir ./testdata --workers 4

  # double every count, workers as goroutines
  sonic wordcount --dir ./testdata --double --in-process

  # settings from a file, status API on :8080
  sonic wordcount --config run.yaml --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := f.options(cmd)
			if err != nil {
				return err
			}

			result, err := distribute.Run(cmd.Context(), wordcount.Driver(f.parallel), wordcount.Stages(f.double), wordcount.Reduce, opts)
			if err != nil {
				return err
			}
			// ワーカーは何も出力しない
			if !distribute.IsCoordinator() {
				return nil
			}

			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.dir, "dir", "", "input directory")
	flags.IntVar(&f.workers, "workers", 0, "number of workers (0 = CPU count)")
	flags.BoolVar(&f.double, "double", false, "double every count in a second stage")
	flags.IntVar(&f.parallel, "parallel", 1, "concurrent dispatches from the driver")
	flags.BoolVar(&f.inProcess, "in-process", false, "run workers as goroutines")
	flags.StringVar(&f.config, "config", "", "config file (YAML/JSON)")
	flags.StringVar(&f.addr, "addr", "", "status API address (e.g. :8080)")
	flags.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

// options は設定ファイルを読み込み、明示されたフラグで上書きする
func (f wordCountFlags) options(cmd *cobra.Command) (distribute.Options, error) {
	opts := distribute.DefaultOptions()
	if f.config != "" {
		var err error
		opts, err = distribute.LoadOptions(f.config)
		if err != nil {
			return opts, err
		}
	}
	if opts.Params == nil {
		opts.Params = make(map[string]string)
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		dir, err := filepath.Abs(f.dir)
		if err != nil {
			return opts, fmt.Errorf("invalid --dir: %w", err)
		}
		opts.Params[wordcount.ParamDir] = dir
	}
	if flags.Changed("workers") {
		opts.NumWorkers = f.workers
	}
	if flags.Changed("in-process") {
		opts.InProcess = f.inProcess
	}
	if flags.Changed("addr") {
		opts.StatusAddr = f.addr
	}
	if flags.Changed("log-level") {
		opts.LogLevel = f.logLevel
	}

	if opts.Params[wordcount.ParamDir] == "" {
		return opts, fmt.Errorf("no input directory: set --dir or run.params.dir")
	}
	return opts, nil
}

func printResult(w io.Writer, result wordcount.Result) {
	for _, word := range result.Counts.Sorted() {
		fmt.Fprintf(w, "%-20s %d\n", word, result.Counts[word])
	}
	if len(result.Failures) > 0 {
		fmt.Fprintf(w, "\n%d file(s) skipped:\n", len(result.Failures))
		for _, fail := range result.Failures {
			fmt.Fprintf(w, "  %s: %s\n", fail.File, fail.Error)
		}
	}
}
