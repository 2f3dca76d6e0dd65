package transport

import (
	"errors"
	"testing"
)

func TestHeaderSizes(t *testing.T) {
	ip, tcp, err := HeaderSizes()
	if err != nil {
		t.Fatalf("HeaderSizes failed: %v", err)
	}
	if ip != 20 || tcp != 20 {
		t.Errorf("got ip=%d tcp=%d, want 20/20", ip, tcp)
	}
	if HeaderOverhead() != 40 {
		t.Errorf("HeaderOverhead = %d", HeaderOverhead())
	}
}

func TestDefaultSegmentSize(t *testing.T) {
	size, err := DefaultSegmentSize(400)
	if err != nil {
		t.Fatalf("DefaultSegmentSize failed: %v", err)
	}
	if size != 340 {
		t.Errorf("segment size = %d, want 340", size)
	}
	if _, err := DefaultSegmentSize(60); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestSegmentWireSize(t *testing.T) {
	s := Segment{Seq: 1000, Size: 340, Header: 40}
	if s.WireSize() != 380 || s.End() != 1340 {
		t.Errorf("WireSize=%d End=%d", s.WireSize(), s.End())
	}
	if (Ack{Header: 40}).WireSize() != 40 {
		t.Error("ack should carry only the header")
	}
}
