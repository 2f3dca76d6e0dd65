package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleStream() *Stream {
	st := NewStream(Key{Node: 0, Flow: 2, Metric: "cwnd"})
	st.Append(Point{At: 0, Value: 340})
	st.Append(Point{At: 1000010 * time.Microsecond, Value: 680})
	st.Append(Point{At: 1234567891 * time.Nanosecond, Value: 1020.5})
	st.Append(Point{At: 3 * time.Second, Value: InfValue})
	return st
}

func equalStreams(t *testing.T, got, want *Stream) {
	t.Helper()
	if got.Key() != want.Key() {
		t.Errorf("key = %+v, want %+v", got.Key(), want.Key())
	}
	gp, wp := got.Points(), want.Points()
	if len(gp) != len(wp) {
		t.Fatalf("got %d points, want %d", len(gp), len(wp))
	}
	for i := range wp {
		if gp[i] != wp[i] {
			t.Errorf("point %d = %+v, want %+v", i, gp[i], wp[i])
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"run-flow2-n0-cwnd.data", "trace.json", "trace.yaml", "trace.yml"} {
		t.Run(name, func(t *testing.T) {
			want := sampleStream()
			path := filepath.Join(dir, name)
			if err := want.ExportFile(path); err != nil {
				t.Fatalf("ExportFile failed: %v", err)
			}
			got, err := Import(path)
			if err != nil {
				t.Fatalf("Import failed: %v", err)
			}
			equalStreams(t, got, want)

			// exporting the imported stream again yields identical bytes
			first, _ := os.ReadFile(path)
			again := filepath.Join(t.TempDir(), name)
			if err := got.ExportFile(again); err != nil {
				t.Fatalf("ExportFile failed: %v", err)
			}
			second, _ := os.ReadFile(again)
			if !bytes.Equal(first, second) {
				t.Errorf("round trip not idempotent:\n%s\n%s", first, second)
			}
		})
	}
}

func TestDataFormatIsTwoColumns(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleStream().Export(&buf, FormatData); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[0] != "0 340" || lines[1] != "1.00001 680" {
		t.Errorf("unexpected lines %q", lines[:2])
	}
}

func TestReadRejectsMalformedData(t *testing.T) {
	tests := []string{
		"1 2 3\n",
		"x 2\n",
		"1 y\n",
		"2 1\n1 1\n",
	}
	for _, in := range tests {
		if _, err := Read(strings.NewReader(in), FormatData, Key{}); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
	if _, err := Read(strings.NewReader(""), "csv", Key{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFileNames(t *testing.T) {
	key := Key{Node: 3, Flow: 4, Metric: "next_rx"}
	if got := FileName("cc", key, true, FormatData); got != "cc-flow4-n3-next_rx.data" {
		t.Errorf("FileName = %q", got)
	}
	if got := FileName("cc", key, false, FormatJSON); got != "cc-n3-next_rx.json" {
		t.Errorf("FileName = %q", got)
	}

	parsed, ok := ParseFileName("my-exp-flow4-n3-next_rx.data")
	if !ok || parsed != key {
		t.Errorf("ParseFileName = %+v, %v", parsed, ok)
	}
	parsed, ok = ParseFileName("cc-n0-cwnd.data")
	if !ok || parsed != (Key{Node: 0, Flow: 1, Metric: "cwnd"}) {
		t.Errorf("ParseFileName = %+v, %v", parsed, ok)
	}
	if _, ok := ParseFileName("cwnd.data"); ok {
		t.Error("expected failure for name without node part")
	}
}

func TestWriteAll(t *testing.T) {
	s := NewSink()
	s.SubscribeAll()
	s.OnStateChange(change(time.Second, 0, 1, "cwnd", 340, 680))
	s.OnStateChange(change(time.Second, 0, 2, "cwnd", 340, 680))
	s.OnStateChange(change(time.Second, 3, 2, "next_rx", 0, 340))

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := s.WriteAll(dir, "cc", FormatData)
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	want := []string{"cc-flow1-n0-cwnd.data", "cc-flow2-n0-cwnd.data", "cc-flow2-n3-next_rx.data"}
	if len(paths) != len(want) {
		t.Fatalf("got %v", paths)
	}
	for i, w := range want {
		if filepath.Base(paths[i]) != w {
			t.Errorf("path %d = %s, want %s", i, paths[i], w)
		}
	}

	st, err := Import(paths[2])
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if st.Key() != (Key{Node: 3, Flow: 2, Metric: "next_rx"}) || st.Len() != 2 {
		t.Errorf("unexpected import %+v", st.Key())
	}
}

func TestWriteAllSingleFlowKeepsKeys(t *testing.T) {
	tests := []struct {
		name  string
		flow  int
		files []string
	}{
		{"flow one", 1, []string{"cc-n0-cwnd.data", "cc-n1-next_rx.data"}},
		{"other flow", 3, []string{"cc-flow3-n0-cwnd.data", "cc-flow3-n1-next_rx.data"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSink()
			s.SubscribeAll()
			s.OnStateChange(change(time.Second, 0, tt.flow, "cwnd", 340, 680))
			s.OnStateChange(change(time.Second, 1, tt.flow, "next_rx", 0, 340))

			paths, err := s.WriteAll(t.TempDir(), "cc", FormatData)
			if err != nil {
				t.Fatalf("WriteAll failed: %v", err)
			}
			if len(paths) != len(tt.files) {
				t.Fatalf("got %v", paths)
			}
			streams := s.Streams()
			for i, path := range paths {
				if filepath.Base(path) != tt.files[i] {
					t.Errorf("path %d = %s, want %s", i, filepath.Base(path), tt.files[i])
				}
				got, err := Import(path)
				if err != nil {
					t.Fatalf("Import failed: %v", err)
				}
				equalStreams(t, got, streams[i])
			}
		})
	}
}
