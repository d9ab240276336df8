package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// ErrWriterClosed is returned when appending to a closed writer.
var ErrWriterClosed = errors.New("replay writer closed")

var sessionIDCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// FrameInterval is the simulated-time cadence at which buffered frames are flushed.
const FrameInterval = 200 * time.Millisecond

const (
	eventsFile   = "events.jsonl.sz"
	framesFile   = "frames.bin.zst"
	manifestFile = "manifest.json"
	headerFile   = "header.json"
)

// Manifest describes the bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version         int    `json:"version"`
	CreatedAt       string `json:"created_at"`
	FrameIntervalMs int    `json:"frame_interval_ms"`
	EventsPath      string `json:"events_path"`
	FramesPath      string `json:"frames_path"`
}

// Event is one line of the event log.
type Event struct {
	Tick        uint64          `json:"tick"`
	SimulatedMs int64           `json:"simulated_ms"`
	CapturedAt  string          `json:"captured_at"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
}

// Writer streams a session to disk: events through snappy, frames through zstd.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	pending     []byte
	lastFlushMs int64
	flushed     bool
	deliveries  int
	sessionID   string
	tuning      Tuning
	closed      bool
}

// NewWriter creates <root>/<session>-<timestamp>/ and opens the compressed sinks.
func NewWriter(root, sessionID string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	cleaned := sessionIDCleaner.ReplaceAllString(sessionID, "")
	if cleaned == "" {
		cleaned = "session"
	}
	created := clock().UTC()
	path := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, fmt.Errorf("create replay directory: %w", err)
	}

	manifest := Manifest{
		Version:         1,
		CreatedAt:       created.Format(time.RFC3339Nano),
		FrameIntervalMs: int(FrameInterval / time.Millisecond),
		EventsPath:      eventsFile,
		FramesPath:      framesFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(path, manifestFile), data, 0o644); err != nil {
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(path, eventsFile))
	if err != nil {
		return nil, Manifest{}, err
	}
	frameFile, err := os.Create(filepath.Join(path, framesFile))
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	return &Writer{
		dir:         path,
		now:         clock,
		eventFile:   eventFile,
		eventStream: snappy.NewBufferedWriter(eventFile),
		frameFile:   frameFile,
		frameStream: frameStream,
		sessionID:   sessionID,
	}, manifest, nil
}

// Directory exposes the bundle directory.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// SetHeaderMetadata records what the header written on Close will contain.
func (w *Writer) SetHeaderMetadata(sessionID string, tuning Tuning) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.sessionID = sessionID
	w.tuning = tuning.Clone()
	w.mu.Unlock()
}

// AppendEvent writes one JSON line to the event log and flushes it.
func (w *Writer) AppendEvent(tick uint64, simulatedMs int64, eventType string, payload any) error {
	if w == nil {
		return ErrWriterClosed
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	line, err := json.Marshal(Event{
		Tick:        tick,
		SimulatedMs: simulatedMs,
		CapturedAt:  w.now().UTC().Format(time.RFC3339Nano),
		Type:        eventType,
		Payload:     body,
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if eventType == EventDelivery {
		w.deliveries++
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	return w.eventStream.Flush()
}

// AppendFrame buffers a frame and flushes the buffer once FrameInterval of
// simulated time has passed since the previous flush.
func (w *Writer) AppendFrame(f Frame) error {
	if w == nil {
		return ErrWriterClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.pending = appendFrame(w.pending, f)
	if !w.flushed {
		w.flushed = true
		w.lastFlushMs = f.SimulatedMs
		return nil
	}
	if time.Duration(f.SimulatedMs-w.lastFlushMs)*time.Millisecond >= FrameInterval {
		if err := w.flushLocked(); err != nil {
			return err
		}
		w.lastFlushMs = f.SimulatedMs
	}
	return nil
}

// Flush writes buffered frames to disk regardless of cadence.
func (w *Writer) Flush() error {
	if w == nil {
		return ErrWriterClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	return w.flushLocked()
}

// Close writes the header, flushes every buffer and releases the files.
// Closing twice is a no-op.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var errs error
	header := Header{
		SchemaVersion: HeaderSchemaVersion,
		SessionID:     w.sessionID,
		Tuning:        w.tuning.Clone(),
		Deliveries:    w.deliveries,
		FilePointer:   manifestFile,
	}
	errs = errors.Join(errs, WriteHeader(filepath.Join(w.dir, headerFile), header))
	errs = errors.Join(errs, w.flushLocked())
	errs = errors.Join(errs, w.eventStream.Close())
	errs = errors.Join(errs, w.eventFile.Close())
	errs = errors.Join(errs, w.frameStream.Close())
	errs = errors.Join(errs, w.frameFile.Close())
	return errs
}

func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	if _, err := w.frameStream.Write(w.pending); err != nil {
		return err
	}
	w.pending = w.pending[:0]
	//1.- Emit a complete zstd block so the frames survive a crash before Close.
	return w.frameStream.Flush()
}
