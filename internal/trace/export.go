package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

// Supported formats
const (
	FormatData = "data"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

type filePoint struct {
	T float64 `json:"t" yaml:"t"`
	V float64 `json:"v" yaml:"v"`
}

type fileStream struct {
	Node   int         `json:"node" yaml:"node"`
	Flow   int         `json:"flow" yaml:"flow"`
	Metric string      `json:"metric" yaml:"metric"`
	Points []filePoint `json:"points" yaml:"points"`
}

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".data", ".dat", ".txt":
		return FormatData, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported trace file extension %q", filepath.Ext(path))
}

// Export writes the stream in format. The data format is two columns:
// seconds and value.
func (s *Stream) Export(w io.Writer, format string) error {
	switch format {
	case FormatData:
		bw := bufio.NewWriter(w)
		for _, p := range s.points {
			if _, err := fmt.Fprintf(bw, "%s %s\n",
				strconv.FormatFloat(p.At.Seconds(), 'g', -1, 64),
				strconv.FormatFloat(p.Value, 'g', -1, 64)); err != nil {
				return err
			}
		}
		return bw.Flush()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "\t")
		return enc.Encode(s.toFile())
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(s.toFile()); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported trace format %q", format)
}

// ExportFile writes the stream to path, choosing the format by extension
func (s *Stream) ExportFile(path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file %s: %w", path, err)
	}
	if err := s.Export(f, format); err != nil {
		f.Close()
		return fmt.Errorf("failed to write trace file %s: %w", path, err)
	}
	return f.Close()
}

func (s *Stream) toFile() fileStream {
	fs := fileStream{Node: s.key.Node, Flow: s.key.Flow, Metric: s.key.Metric, Points: make([]filePoint, len(s.points))}
	for i, p := range s.points {
		fs.Points[i] = filePoint{T: p.At.Seconds(), V: p.Value}
	}
	return fs
}

// Read parses a stream in format. Data files carry no key, so key is used for them.
func Read(r io.Reader, format string, key Key) (*Stream, error) {
	var fs fileStream
	switch format {
	case FormatData:
		fs = fileStream{Node: key.Node, Flow: key.Flow, Metric: key.Metric}
		scanner := bufio.NewScanner(r)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			fields := strings.Fields(text)
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: expected 2 columns, got %d", line, len(fields))
			}
			t, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			fs.Points = append(fs.Points, filePoint{T: t, V: v})
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&fs); err != nil {
			return nil, fmt.Errorf("failed to decode trace json: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&fs); err != nil {
			return nil, fmt.Errorf("failed to decode trace yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported trace format %q", format)
	}

	st := NewStream(Key{Node: fs.Node, Flow: fs.Flow, Metric: fs.Metric})
	for i, p := range fs.Points {
		if !st.Append(Point{At: utils.SecondsToDuration(p.T), Value: p.V}) {
			return nil, fmt.Errorf("sample %d at %gs is out of order", i, p.T)
		}
	}
	return st, nil
}

// Import reads a stream file written by ExportFile or WriteAll. The key of a
// data file is recovered from its name when it follows the WriteAll layout.
func Import(path string) (*Stream, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file %s: %w", path, err)
	}
	defer f.Close()

	key, _ := ParseFileName(filepath.Base(path))
	return Read(f, format, key)
}

// DefaultFlow is the flow a file name without a flow part refers to
const DefaultFlow = 1

// FileName returns "<prefix>[-flowN]-n<node>-<metric>.<ext>"
func FileName(prefix string, key Key, withFlow bool, format string) string {
	var b strings.Builder
	b.WriteString(prefix)
	if withFlow {
		b.WriteString("-")
		b.WriteString(utils.FlowLabel(key.Flow))
	}
	fmt.Fprintf(&b, "-n%d-%s.%s", key.Node, key.Metric, format)
	return b.String()
}

// ParseFileName recovers node, flow and metric from a FileName result.
// A name without the flow part belongs to flow 1, the only flow of a
// single-flow run.
func ParseFileName(name string) (Key, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(base, "-")
	if len(parts) < 3 {
		return Key{}, false
	}
	metric := parts[len(parts)-1]
	nodePart := parts[len(parts)-2]
	if !strings.HasPrefix(nodePart, "n") {
		return Key{}, false
	}
	node, err := strconv.Atoi(nodePart[1:])
	if err != nil {
		return Key{}, false
	}
	key := Key{Node: node, Flow: DefaultFlow, Metric: metric}
	if flowPart := parts[len(parts)-3]; strings.HasPrefix(flowPart, "flow") {
		if flow, err := strconv.Atoi(strings.TrimPrefix(flowPart, "flow")); err == nil {
			key.Flow = flow
		}
	}
	return key, true
}

// WriteAll writes one file per stream into dir and returns the paths.
// The flow part of the name is left out only when every stream belongs to
// DefaultFlow, so Import recovers the same keys.
func (s *Sink) WriteAll(dir, prefix, format string) ([]string, error) {
	if format == "" {
		format = FormatData
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace dir %s: %w", dir, err)
	}

	streams := s.Streams()
	flows := make(map[int]bool)
	for _, st := range streams {
		flows[st.key.Flow] = true
	}

	withFlow := len(flows) > 1 || !flows[DefaultFlow]
	paths := make([]string, 0, len(streams))
	for _, st := range streams {
		path := filepath.Join(dir, FileName(prefix, st.key, withFlow, format))
		if err := st.ExportFile(path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
