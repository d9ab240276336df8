package replaycatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"swingspin/bowler/internal/replay"
)

// Entry pairs a session header with the directory holding its streams.
type Entry struct {
	HeaderPath   string        `json:"header_path"`
	ManifestPath string        `json:"manifest_path"`
	Header       replay.Header `json:"header"`
}

// List walks root and returns every recorded session header.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Only finalised sessions carry a header, so half-written ones are skipped.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != "header.json" {
			return nil
		}
		header, err := replay.ReadHeader(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		manifest := header.FilePointer
		if !filepath.IsAbs(manifest) {
			manifest = filepath.Join(filepath.Dir(path), manifest)
		}
		entries = append(entries, Entry{HeaderPath: path, ManifestPath: manifest, Header: header})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Header.SessionID == entries[j].Header.SessionID {
			return entries[i].HeaderPath < entries[j].HeaderPath
		}
		return entries[i].Header.SessionID < entries[j].Header.SessionID
	})
	return entries, nil
}

// TotalDeliveries sums the delivery counts recorded in the headers.
func TotalDeliveries(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += e.Header.Deliveries
	}
	return total
}

// MarshalEntries renders entries as indented JSON for the CLI.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}
