// Package wire implements the length-prefixed tagged frame protocol that
// connects a box server to its attached clients over a Unix stream socket.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Tags are disjoint between directions so a misrouted frame is caught at decode.
const (
	TagOutput  byte = 0x01 // server -> client: raw PTY bytes
	TagResized byte = 0x02 // server -> client: u16 cols, u16 rows
	TagExited  byte = 0x03 // server -> client: i32 exit code

	TagInput  byte = 0x11 // client -> server: raw bytes to write to the PTY
	TagResize byte = 0x12 // client -> server: u16 cols, u16 rows
	TagKill   byte = 0x13 // client -> server: empty
)

// MaxPayload bounds a single frame's payload. A length above this is treated
// as corrupt framing rather than an unusually large message.
const MaxPayload = 16 * 1024 * 1024

// ServerMsg is the closed set of messages the server sends to a client.
type ServerMsg struct {
	Tag    byte
	Output []byte // valid when Tag == TagOutput
	Cols   uint16 // valid when Tag == TagResized
	Rows   uint16 // valid when Tag == TagResized
	Code   int32  // valid when Tag == TagExited
}

// ClientMsg is the closed set of messages a client sends to the server.
type ClientMsg struct {
	Tag   byte
	Input []byte // valid when Tag == TagInput
	Cols  uint16 // valid when Tag == TagResize
	Rows  uint16 // valid when Tag == TagResize
}

func NewOutput(b []byte) ServerMsg        { return ServerMsg{Tag: TagOutput, Output: b} }
func NewResized(cols, rows uint16) ServerMsg { return ServerMsg{Tag: TagResized, Cols: cols, Rows: rows} }
func NewExited(code int32) ServerMsg      { return ServerMsg{Tag: TagExited, Code: code} }

func NewInput(b []byte) ClientMsg          { return ClientMsg{Tag: TagInput, Input: b} }
func NewResize(cols, rows uint16) ClientMsg { return ClientMsg{Tag: TagResize, Cols: cols, Rows: rows} }
func NewKill() ClientMsg                   { return ClientMsg{Tag: TagKill} }

// WriteFrame writes one tag+length+payload frame and flushes (an *os.File
// backed by a Unix socket has no separate flush step in Go, but callers that
// wrap w in a bufio.Writer must flush it themselves after WriteFrame returns;
// this function always issues a single Write per field so partial frames
// cannot interleave with a sibling goroutine's writes on the same fd as long
// as callers serialize access, exactly as the per-client writer goroutine does).
func WriteFrame(w io.Writer, tag byte, payload []byte) error {
	var hdr [5]byte
	hdr[0] = tag
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one tag+length+payload frame.
func ReadFrame(r io.Reader) (tag byte, payload []byte, err error) {
	var hdr [5]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	tag = hdr[0]
	length := binary.BigEndian.Uint32(hdr[1:])
	if length > MaxPayload {
		return 0, nil, fmt.Errorf("frame payload too large: %d bytes", length)
	}
	if length == 0 {
		return tag, nil, nil
	}
	payload = make([]byte, length)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read frame payload: %w", err)
	}
	return tag, payload, nil
}

// EncodeServerMsg serializes msg into a freshly allocated, self-contained
// buffer. The result shares no memory with msg (Output's bytes are copied
// into it), so it is safe to share by reference (e.g. *[]byte or a read-only
// slice handle) across every client's outbound queue without copying per
// recipient — this is what lets the server pre-serialize one Output frame
// and try_send the same bytes to every client.
func EncodeServerMsg(msg ServerMsg) ([]byte, error) {
	switch msg.Tag {
	case TagOutput:
		return encodeFrame(TagOutput, msg.Output), nil
	case TagResized:
		var p [4]byte
		binary.BigEndian.PutUint16(p[0:2], msg.Cols)
		binary.BigEndian.PutUint16(p[2:4], msg.Rows)
		return encodeFrame(TagResized, p[:]), nil
	case TagExited:
		var p [4]byte
		binary.BigEndian.PutUint32(p[:], uint32(msg.Code))
		return encodeFrame(TagExited, p[:]), nil
	default:
		return nil, fmt.Errorf("encode server message: unknown tag 0x%02x", msg.Tag)
	}
}

// DecodeServerMsg interprets a frame already split into tag and payload.
func DecodeServerMsg(tag byte, payload []byte) (ServerMsg, error) {
	switch tag {
	case TagOutput:
		return NewOutput(payload), nil
	case TagResized:
		if len(payload) < 4 {
			return ServerMsg{}, fmt.Errorf("decode Resized: short payload (%d bytes)", len(payload))
		}
		cols := binary.BigEndian.Uint16(payload[0:2])
		rows := binary.BigEndian.Uint16(payload[2:4])
		return NewResized(cols, rows), nil
	case TagExited:
		if len(payload) < 4 {
			return ServerMsg{}, fmt.Errorf("decode Exited: short payload (%d bytes)", len(payload))
		}
		code := int32(binary.BigEndian.Uint32(payload[:4]))
		return NewExited(code), nil
	default:
		return ServerMsg{}, fmt.Errorf("decode server message: unknown tag 0x%02x", tag)
	}
}

// EncodeClientMsg serializes msg into a self-contained buffer.
func EncodeClientMsg(msg ClientMsg) ([]byte, error) {
	switch msg.Tag {
	case TagInput:
		return encodeFrame(TagInput, msg.Input), nil
	case TagResize:
		var p [4]byte
		binary.BigEndian.PutUint16(p[0:2], msg.Cols)
		binary.BigEndian.PutUint16(p[2:4], msg.Rows)
		return encodeFrame(TagResize, p[:]), nil
	case TagKill:
		return encodeFrame(TagKill, nil), nil
	default:
		return nil, fmt.Errorf("encode client message: unknown tag 0x%02x", msg.Tag)
	}
}

// DecodeClientMsg interprets a frame already split into tag and payload.
func DecodeClientMsg(tag byte, payload []byte) (ClientMsg, error) {
	switch tag {
	case TagInput:
		return NewInput(payload), nil
	case TagResize:
		if len(payload) < 4 {
			return ClientMsg{}, fmt.Errorf("decode Resize: short payload (%d bytes)", len(payload))
		}
		cols := binary.BigEndian.Uint16(payload[0:2])
		rows := binary.BigEndian.Uint16(payload[2:4])
		return NewResize(cols, rows), nil
	case TagKill:
		return NewKill(), nil
	default:
		return ClientMsg{}, fmt.Errorf("decode client message: unknown tag 0x%02x", tag)
	}
}

func encodeFrame(tag byte, payload []byte) []byte {
	buf := make([]byte, 5+len(payload))
	buf[0] = tag
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

// ReadServerMsg reads and decodes one server-originated frame.
func ReadServerMsg(r io.Reader) (ServerMsg, error) {
	tag, payload, err := ReadFrame(r)
	if err != nil {
		return ServerMsg{}, err
	}
	return DecodeServerMsg(tag, payload)
}

// ReadClientMsg reads and decodes one client-originated frame.
func ReadClientMsg(r io.Reader) (ClientMsg, error) {
	tag, payload, err := ReadFrame(r)
	if err != nil {
		return ClientMsg{}, err
	}
	return DecodeClientMsg(tag, payload)
}

// WriteServerMsg encodes and writes a server-originated message in one call.
func WriteServerMsg(w io.Writer, msg ServerMsg) error {
	switch msg.Tag {
	case TagOutput:
		return WriteFrame(w, TagOutput, msg.Output)
	case TagResized:
		var p [4]byte
		binary.BigEndian.PutUint16(p[0:2], msg.Cols)
		binary.BigEndian.PutUint16(p[2:4], msg.Rows)
		return WriteFrame(w, TagResized, p[:])
	case TagExited:
		var p [4]byte
		binary.BigEndian.PutUint32(p[:], uint32(msg.Code))
		return WriteFrame(w, TagExited, p[:])
	default:
		return fmt.Errorf("write server message: unknown tag 0x%02x", msg.Tag)
	}
}

// WriteClientMsg encodes and writes a client-originated message in one call.
func WriteClientMsg(w io.Writer, msg ClientMsg) error {
	switch msg.Tag {
	case TagInput:
		return WriteFrame(w, TagInput, msg.Input)
	case TagResize:
		var p [4]byte
		binary.BigEndian.PutUint16(p[0:2], msg.Cols)
		binary.BigEndian.PutUint16(p[2:4], msg.Rows)
		return WriteFrame(w, TagResize, p[:])
	case TagKill:
		return WriteFrame(w, TagKill, nil)
	default:
		return fmt.Errorf("write client message: unknown tag 0x%02x", msg.Tag)
	}
}
