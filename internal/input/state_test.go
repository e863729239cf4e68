package input

import (
	"bytes"
	"testing"
)

func forward(s *State, data []byte) []Action {
	return s.Process(data, 24, 80, 0)
}

func TestPlainBytesForwardAsOne(t *testing.T) {
	s := New(0)
	data := []byte("hello, world\r\n")
	actions := forward(s, data)
	if len(actions) != 1 || actions[0].Kind != ActionForward {
		t.Fatalf("expected single Forward action, got %+v", actions)
	}
	if !bytes.Equal(actions[0].Bytes, data) {
		t.Fatalf("forwarded bytes mismatch: got %q want %q", actions[0].Bytes, data)
	}
}

func TestPrefixKeyEntersCommandMode(t *testing.T) {
	s := New(0)
	actions := forward(s, []byte{DefaultPrefixKey})
	if len(actions) != 1 || actions[0].Kind != ActionRedraw {
		t.Fatalf("expected single Redraw action, got %+v", actions)
	}
	if !s.CommandMode() {
		t.Fatal("expected command mode to be entered")
	}
}

func TestCommandModeDetachAndKill(t *testing.T) {
	s := New(0)
	forward(s, []byte{DefaultPrefixKey})

	actions := forward(s, []byte{0x11}) // Ctrl+Q
	if len(actions) != 1 || actions[0].Kind != ActionDetach {
		t.Fatalf("expected [Detach], got %+v", actions)
	}

	s2 := New(0)
	forward(s2, []byte{DefaultPrefixKey})
	actions = forward(s2, []byte{0x18}) // Ctrl+X
	if len(actions) != 1 || actions[0].Kind != ActionKill {
		t.Fatalf("expected [Kill], got %+v", actions)
	}
}

func TestBareEscExitsCommandMode(t *testing.T) {
	s := New(0)
	forward(s, []byte{DefaultPrefixKey})
	// A single trailing ESC is ambiguous (it might be the start of a CSI
	// sequence) and would normally be buffered pending more bytes; process
	// directly with buffering disabled to exercise the unambiguous "bare
	// Esc" case the way a timeout-driven flush would.
	actions := s.process([]byte{0x1b}, 24, 80, 0, false)
	if len(actions) != 1 || actions[0].Kind != ActionRedraw {
		t.Fatalf("expected [Redraw], got %+v", actions)
	}
	if s.CommandMode() {
		t.Fatal("expected command mode to be cleared")
	}
}

func TestScrollOffsetStaysInBounds(t *testing.T) {
	s := New(0)
	forward(s, []byte{DefaultPrefixKey})
	for i := 0; i < 20; i++ {
		s.process([]byte{0x10}, 24, 80, 5, true) // Ctrl+P, max 5
	}
	if s.ScrollOffset() != 5 {
		t.Fatalf("expected scroll offset clamped to max 5, got %d", s.ScrollOffset())
	}
	for i := 0; i < 20; i++ {
		s.process([]byte{0x0e}, 24, 80, 5, true) // Ctrl+N
	}
	if s.ScrollOffset() != 0 {
		t.Fatalf("expected scroll offset floored at 0, got %d", s.ScrollOffset())
	}
}

func TestLoneEscBuffersThenArrowForwards(t *testing.T) {
	s := New(0)
	actions := forward(s, []byte{0x1b})
	if len(actions) != 0 {
		t.Fatalf("expected no actions from a lone ESC, got %+v", actions)
	}
	if !bytes.Equal(s.Pending(), []byte{0x1b}) {
		t.Fatalf("expected pending = [ESC], got %v", s.Pending())
	}

	actions = forward(s, []byte("[A"))
	if len(actions) != 1 || actions[0].Kind != ActionForward {
		t.Fatalf("expected single Forward action, got %+v", actions)
	}
	if !bytes.Equal(actions[0].Bytes, []byte("\x1b[A")) {
		t.Fatalf("expected forwarded arrow key, got %q", actions[0].Bytes)
	}
}

func TestArrowKeyNotSplitAcrossForwards(t *testing.T) {
	s := New(0)
	actions := forward(s, []byte("ab\x1b[A"))
	if len(actions) != 1 {
		t.Fatalf("expected one batched Forward action, got %+v", actions)
	}
	if !bytes.Equal(actions[0].Bytes, []byte("ab\x1b[A")) {
		t.Fatalf("expected arrow key kept attached to preceding bytes, got %q", actions[0].Bytes)
	}
}

func TestSGRMouseDetachAtCloseButton(t *testing.T) {
	s := New(0)
	// row=1, col=cols-1=79 for an 80-column terminal.
	seq := []byte("\x1b[<0;79;1M")
	actions := s.Process(seq, 24, 80, 0)
	if len(actions) != 1 || actions[0].Kind != ActionDetach {
		t.Fatalf("expected [Detach], got %+v", actions)
	}
}

func TestSGRWheelScroll(t *testing.T) {
	s := New(0)
	for i := 0; i < 3; i++ {
		s.Process([]byte("\x1b[<64;10;10M"), 24, 80, 100)
	}
	if s.ScrollOffset() != 9 {
		t.Fatalf("expected scroll offset 9 after three wheel-up events, got %d", s.ScrollOffset())
	}
}

func TestFlushPendingForwardsLoneEsc(t *testing.T) {
	s := New(0)
	forward(s, []byte{0x1b})
	actions := s.FlushPending(24, 80, 0)
	if len(actions) != 1 || actions[0].Kind != ActionForward {
		t.Fatalf("expected FlushPending to forward the lone ESC, got %+v", actions)
	}
	if !bytes.Equal(actions[0].Bytes, []byte{0x1b}) {
		t.Fatalf("expected forwarded ESC byte, got %q", actions[0].Bytes)
	}
}
