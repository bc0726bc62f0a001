package dwd

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Station ids sit at a fixed offset in DWD archive names, e.g.
// "tageswerte_KL_00003_19370101_20110331_hist.zip".
const (
	indexIDStart = 14
	indexIDEnd   = 19
)

// ArchiveIndex is the locally stored list of remote archive file names.
// It is safe for concurrent use; Replace swaps the whole list.
type ArchiveIndex struct {
	mu    sync.RWMutex
	path  string
	names []string
}

// LoadArchiveIndex reads the index file, one file name per line.
func LoadArchiveIndex(path string) (*ArchiveIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return &ArchiveIndex{path: path, names: splitLines(data)}, nil
}

func NewArchiveIndex(names []string) *ArchiveIndex {
	return &ArchiveIndex{names: append([]string(nil), names...)}
}

func splitLines(data []byte) []string {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			names = append(names, line)
		}
	}
	return names
}

// Lookup returns the first archive name whose embedded station id equals the
// zero-padded id.
func (ix *ArchiveIndex) Lookup(paddedID string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for _, name := range ix.names {
		if len(name) >= indexIDEnd && name[indexIDStart:indexIDEnd] == paddedID {
			return name, true
		}
	}
	return "", false
}

func (ix *ArchiveIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.names)
}

// Replace swaps the in-memory list and, when the index was loaded from a
// file, rewrites that file.
func (ix *ArchiveIndex) Replace(names []string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.path != "" {
		if err := writeLines(ix.path, names); err != nil {
			return fmt.Errorf("write index: %w", err)
		}
	}
	ix.names = append([]string(nil), names...)
	return nil
}

func writeLines(path string, lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, l := range lines {
		w.WriteString(l)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
