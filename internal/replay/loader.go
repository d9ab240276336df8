package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Bundle is a fully decoded session directory.
type Bundle struct {
	Dir       string
	Manifest  Manifest
	Header    Header
	Events    []Event
	Frames    []Frame
	// Truncated is set when the frame stream ends without its closing block,
	// which happens when the writer was never closed.
	Truncated bool
}

// Load decodes the bundle stored in dir. A missing header is tolerated so a
// session that crashed before Close can still be inspected.
func Load(dir string) (*Bundle, error) {
	if dir == "" {
		return nil, fmt.Errorf("replay directory must be provided")
	}
	b := &Bundle{Dir: dir}

	//1.- The manifest names the stream files.
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &b.Manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if header, err := ReadHeader(filepath.Join(dir, headerFile)); err == nil {
		b.Header = header
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	//2.- Stream the snappy event log line by line.
	if b.Events, err = readEvents(filepath.Join(dir, b.Manifest.EventsPath)); err != nil {
		return nil, err
	}

	//3.- Decompress and split the frame stream.
	if b.Frames, b.Truncated, err = readFrames(filepath.Join(dir, b.Manifest.FramesPath)); err != nil {
		return nil, err
	}
	return b, nil
}

func readEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events: %w", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].SimulatedMs < events[j].SimulatedMs })
	return events, nil
}

func readFrames(path string) ([]Frame, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open frames: %w", err)
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, false, fmt.Errorf("frame decoder: %w", err)
	}
	defer decoder.Close()
	//1.- A stream cut off after its last flushed block still yields those blocks.
	truncated := false
	raw, err := io.ReadAll(decoder)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		truncated = true
	} else if err != nil {
		return nil, false, fmt.Errorf("read frames: %w", err)
	}
	frames, err := decodeFrames(raw)
	if err != nil {
		return frames, truncated, fmt.Errorf("decode frames: %w", err)
	}
	return frames, truncated, nil
}

// EventsOfType filters the event log.
func (b *Bundle) EventsOfType(kind string) []Event {
	if b == nil {
		return nil
	}
	var out []Event
	for _, ev := range b.Events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Decode unmarshals an event payload into dst.
func (e Event) Decode(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}
