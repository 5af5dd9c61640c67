// Package inference drives the round trip to the remote model: resized
// video frames go out, synthetic input actions come back.
//
// The wire format is symmetric length-prefixed framing: a 4-byte
// little-endian unsigned length followed by a JSON-encoded message.
// Frames travel outbound, actions inbound, on the two halves of one
// ordered byte stream.
package inference

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/tracecap/internal/input"
)

// MaxMessageSize bounds a single wire message. A 192x192 RGB frame is
// ~110KiB; anything past this is a corrupt stream, not a big frame.
const MaxMessageSize = 16 << 20

// Frame is one model-input sample: a resized RGB image with a
// monotonically increasing id used to correlate the returned action.
type Frame struct {
	ID     int32  `json:"id"`
	Width  int32  `json:"width"`
	Height int32  `json:"height"`
	Data   []byte `json:"data"`
}

// Action is a decoded remote-model output.
type Action struct {
	ID    int32        `json:"id"`
	Keys  []string     `json:"keys"`
	Mouse *MouseAction `json:"mouse_action,omitempty"`
}

// MouseAction is the mouse portion of a model action. Exactly one of
// MouseDeltaPx and MousePos is set when the model moves the cursor.
type MouseAction struct {
	ButtonsDown   []string    `json:"buttons_down"`
	MouseDeltaPx  *input.Vec2 `json:"mouse_delta_px,omitempty"`
	MousePos      *input.Vec2 `json:"mouse_pos,omitempty"`
	ScrollDeltaPx *input.Vec2 `json:"scroll_delta_px,omitempty"`
}

// WriteMessage writes one length-prefixed message.
func WriteMessage(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed message into v.
func ReadMessage(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return fmt.Errorf("read length: %w", err)
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length > MaxMessageSize {
		return fmt.Errorf("message length %d exceeds limit", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
