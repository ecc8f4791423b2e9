package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// QuietEnv が空でなければ全てのログ出力を抑制する
const QuietEnv = "QUIET"

// Level はログレベルを表す
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel は文字列からログレベルを解析する
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Logger はスレッドセーフなロガー
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	minLevel Level
}

// Default はデフォルトのロガー
var Default = New(os.Stdout, LevelInfo)

// New は新しいロガーを作成する
func New(out io.Writer, minLevel Level) *Logger {
	return &Logger{
		out:      out,
		minLevel: minLevel,
	}
}

// SetLevel はログレベルを設定する
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// SetOutput は出力先を設定する
func (l *Logger) SetOutput(out io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = out
}

// Quiet は QUIET 環境変数が設定されているかどうかを返す
func Quiet() bool {
	return os.Getenv(QuietEnv) != ""
}

// log は指定されたレベルでログを出力する
// QUIET は呼び出しごとに評価する
func (l *Logger) log(level Level, label string, format string, args ...any) {
	if Quiet() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)

	if label != "" {
		_, _ = fmt.Fprintf(l.out, "[%s] [%s] [%s] %s\n", timestamp, level, label, msg)
	} else {
		_, _ = fmt.Fprintf(l.out, "[%s] [%s] %s\n", timestamp, level, msg)
	}
}

// Debug はデバッグログを出力する
func (l *Logger) Debug(label string, format string, args ...any) {
	l.log(LevelDebug, label, format, args...)
}

// Info は情報ログを出力する
func (l *Logger) Info(label string, format string, args ...any) {
	l.log(LevelInfo, label, format, args...)
}

// Warn は警告ログを出力する
func (l *Logger) Warn(label string, format string, args ...any) {
	l.log(LevelWarn, label, format, args...)
}

// Error はエラーログを出力する
func (l *Logger) Error(label string, format string, args ...any) {
	l.log(LevelError, label, format, args...)
}

// グローバル関数（デフォルトロガーを使用）

// Debug はデバッグログを出力する
func Debug(label string, format string, args ...any) {
	Default.Debug(label, format, args...)
}

// Info は情報ログを出力する
func Info(label string, format string, args ...any) {
	Default.Info(label, format, args...)
}

// Warn は警告ログを出力する
func Warn(label string, format string, args ...any) {
	Default.Warn(label, format, args...)
}

// Error はエラーログを出力する
func Error(label string, format string, args ...any) {
	Default.Error(label, format, args...)
}
