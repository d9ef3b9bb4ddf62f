// Package journal provides an append-only record of run lifecycle
// events for audit and post-restart inspection. Entries are JSON lines,
// flushed and synced on every append so a crash never loses an
// acknowledged event.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EntryType is the run lifecycle event being journaled.
type EntryType string

const (
	EntryAdmitted  EntryType = "run_admitted"
	EntryStarted   EntryType = "run_started"
	EntryCompleted EntryType = "run_completed"
	EntryFailed    EntryType = "run_failed"
	EntryCanceled  EntryType = "run_canceled"
	EntryOrphaned  EntryType = "run_orphaned"
)

// Entry is one journaled event.
type Entry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
	Type       EntryType       `json:"type"`
	RunID      string          `json:"run_id"`
	ProviderID string          `json:"provider_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Journal appends run lifecycle events to a dated file in its
// directory. One file per process start; old files are pruned by
// RemoveOld.
type Journal struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
}

// Open creates or opens a journal in the given directory.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	filename := fmt.Sprintf("varasto-%s.journal", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("open journal file: %w", err)
	}

	return &Journal{
		file:   file,
		writer: bufio.NewWriter(file),
		dir:    dir,
	}, nil
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

// Replay walks every journal file in this journal's directory, the
// current one included. See the package-level Replay.
func (j *Journal) Replay(since time.Time, handler func(*Entry) error) error {
	return Replay(j.dir, since, handler)
}

// Record appends one event. data is marshaled as the entry payload and
// may be nil.
func (j *Journal) Record(entryType EntryType, runID, providerID string, data any) error {
	return j.append(entryType, runID, providerID, data, nil)
}

// RecordError appends an event carrying a failure cause.
func (j *Journal) RecordError(entryType EntryType, runID, providerID string, data any, cause error) error {
	return j.append(entryType, runID, providerID, data, cause)
}

func (j *Journal) append(entryType EntryType, runID, providerID string, data any, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.sequence++

	entry := Entry{
		Timestamp:  time.Now().UTC(),
		Sequence:   j.sequence,
		Type:       entryType,
		RunID:      runID,
		ProviderID: providerID,
	}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal journal payload: %w", err)
		}
		entry.Data = payload
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	return j.writeEntry(entry)
}

func (j *Journal) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	if _, err := j.writer.Write(line); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write journal newline: %w", err)
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return j.file.Sync()
}

// Reader replays one journal file.
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader opens a journal file for replay.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("open journal file: %w", err)
	}
	return &Reader{scanner: bufio.NewScanner(file), file: file}, nil
}

// Next returns the next entry, io.EOF at end of file.
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal journal entry: %w", err)
	}
	return &entry, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay walks every journal file in dir and calls handler for each
// entry newer than since, oldest file first.
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	files, err := filepath.Glob(filepath.Join(dir, "varasto-*.journal"))
	if err != nil {
		return fmt.Errorf("list journal files: %w", err)
	}

	for _, path := range files {
		if err := replayFile(path, since, handler); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(path string, since time.Time, handler func(*Entry) error) error {
	reader, err := NewReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		entry, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if entry.Timestamp.After(since) {
			if err := handler(entry); err != nil {
				return err
			}
		}
	}
}

// RemoveOld deletes journal files whose modification time is older than
// maxAge. Returns how many files were removed.
func RemoveOld(dir string, maxAge time.Duration) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "varasto-*.journal"))
	if err != nil {
		return 0, fmt.Errorf("list journal files: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("remove old journal %s: %w", path, err)
			}
			removed++
		}
	}
	return removed, nil
}
