package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiemma/sonic-distribute/internal/wordcount"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "sonic version dev\n", out.String())
}

func TestOptionsFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`run:
  workers: 3
  mode: process
  params:
    dir: /from/config
`), 0644))

	cmd := newWordCountCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--workers", "5", "--in-process", "--dir", dir}))

	var f wordCountFlags
	f.config, _ = cmd.Flags().GetString("config")
	f.workers, _ = cmd.Flags().GetInt("workers")
	f.inProcess, _ = cmd.Flags().GetBool("in-process")
	f.dir, _ = cmd.Flags().GetString("dir")

	opts, err := f.options(cmd)
	require.NoError(t, err)
	assert.Equal(t, 5, opts.NumWorkers)
	assert.True(t, opts.InProcess)
	assert.Equal(t, dir, opts.Params[wordcount.ParamDir])
}

func TestOptionsRequireDir(t *testing.T) {
	cmd := newWordCountCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	_, err := wordCountFlags{}.options(cmd)
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	printResult(&out, wordcount.Result{
		Counts:   wordcount.Counts{"b": 1, "a": 2},
		Failures: []wordcount.Failure{{File: "x.txt", Error: "boom"}},
	})

	assert.Equal(t, "a                    2\nb                    1\n\n1 file(s) skipped:\n  x.txt: boom\n", out.String())
}
