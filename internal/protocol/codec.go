package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Encoder はメッセージを JSON Lines で書き出す
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder は新しい Encoder を作成する
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode はメッセージを1フレームとして書き出す
func (e *Encoder) Encode(m Message) error {
	f, err := ToFrame(m)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", f.Kind, err)
	}
	return nil
}

// Decoder は JSON Lines からメッセージを読み込む
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder は新しい Decoder を作成する
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(bufio.NewReader(r))}
}

// Decode は次のメッセージを読み込む
// ストリーム終端では io.EOF を返す
func (d *Decoder) Decode() (Message, error) {
	var f Frame
	if err := d.dec.Decode(&f); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return f.Message()
}
