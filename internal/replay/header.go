package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HeaderSchemaVersion tracks the schema version for replay header documents.
const HeaderSchemaVersion = 1

// Tuning captures the numeric knobs a session was recorded with.
type Tuning map[string]float64

// Clone returns an independent copy.
func (t Tuning) Clone() Tuning {
	if len(t) == 0 {
		return nil
	}
	clone := make(Tuning, len(t))
	for key, value := range t {
		clone[key] = value
	}
	return clone
}

// Header is the metadata document stored next to the replay streams.
type Header struct {
	SchemaVersion int    `json:"schema_version"`
	SessionID     string `json:"session_id"`
	Tuning        Tuning `json:"tuning,omitempty"`
	Deliveries    int    `json:"deliveries"`
	FilePointer   string `json:"file_pointer"`
}

// Validate ensures the header can locate its bundle.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the header as indented JSON.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and validates a header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, fmt.Errorf("decode header: %w", err)
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
