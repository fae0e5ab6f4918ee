package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/breeze-rmm/suma-sync/internal/logging"
)

var log = logging.L("audit")

// Event types written to the journal.
const (
	EventOperationStarted   = "operation_started"
	EventOperationCompleted = "operation_completed"
	EventOperationFailed    = "operation_failed"
	EventCacheHit           = "cache_hit"
	EventCacheBuilt         = "cache_built"
	EventPublished          = "lpp_source_published"
	EventLogRotated         = "log_rotated"
)

const (
	genesisHash = "genesis"
	// rotateHeadroom is the room an entry is assumed to need when deciding
	// whether to rotate before writing it.
	rotateHeadroom = 4096
)

// durableEvents are fsynced after writing.
var durableEvents = map[string]bool{
	EventOperationCompleted: true,
	EventOperationFailed:    true,
	EventCacheBuilt:         true,
	EventPublished:          true,
}

// Entry is one journal record.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	EventType string         `json:"eventType"`
	Target    string         `json:"target,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  string         `json:"prevHash"`
	EntryHash string         `json:"entryHash"`
}

// Logger writes a JSONL journal where every entry carries the SHA-256 hash of
// its predecessor. After rotation the first entry of the new file is a
// EventLogRotated sentinel linking back to the last entry of the old file.
type Logger struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	maxSize    int64
	maxBackups int
	written    int64
	prevHash   string
	dropped    atomic.Int64
}

// NewLogger opens (or creates) the journal at path.
func NewLogger(path string, maxSizeMB, maxBackups int) (*Logger, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	l := &Logger{
		path:       path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		prevHash:   genesisHash,
	}
	if err := l.open(); err != nil {
		return nil, err
	}

	log.Info("operation journal opened", "path", path)
	return l, nil
}

// Record appends an entry. The chain only advances once the write succeeded,
// so a failed write never leaves a gap. Safe to call on a nil receiver.
func (l *Logger) Record(eventType, target string, details map[string]any) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
		Target:    target,
		Details:   details,
		PrevHash:  l.prevHash,
	}

	if l.written > 0 && l.written+rotateHeadroom > l.maxSize {
		if err := l.rotate(); err != nil {
			log.Error("journal rotation failed", logging.KeyError, err)
			l.dropped.Add(1)
			return
		}
		entry.PrevHash = l.prevHash
	}

	if err := l.append(&entry); err != nil {
		log.Error("failed to write journal entry", logging.KeyError, err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}

	if durableEvents[eventType] {
		if err := l.file.Sync(); err != nil {
			log.Warn("failed to fsync journal entry", logging.KeyError, err, "eventType", eventType)
		}
	}
}

// Close closes the journal file. Safe to call on a nil receiver.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// DroppedCount returns the number of entries that could not be written, or
// -1 on a nil receiver.
func (l *Logger) DroppedCount() int64 {
	if l == nil {
		return -1
	}
	return l.dropped.Load()
}

// Path returns the journal file path.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// append hashes, marshals and writes entry, advancing the chain on success.
func (l *Logger) append(entry *Entry) error {
	hash, err := hashEntry(*entry)
	if err != nil {
		return err
	}
	entry.EntryHash = hash

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	data = append(data, '\n')

	n, err := l.file.Write(data)
	l.written += int64(n)
	if err != nil {
		return err
	}
	l.prevHash = hash
	return nil
}

// hashEntry length-prefixes every field so no two field combinations hash
// the same.
func hashEntry(entry Entry) (string, error) {
	h := sha256.New()
	for _, field := range []string{entry.Timestamp, entry.EventType, entry.Target, entry.PrevHash} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	if entry.Details != nil {
		detail, err := json.Marshal(entry.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details for hash: %w", err)
		}
		fmt.Fprintf(h, "%d:", len(detail))
		h.Write(detail)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify re-reads a journal file and checks every hash and link, starting
// from the given previous hash ("genesis" for a first file).
func Verify(path, prevHash string) (int, error) {
	n, _, err := verifyFile(path, prevHash)
	return n, err
}

// VerifyChain checks the journal at path together with its rotated copies,
// oldest first, and returns the number of entries checked. The oldest
// surviving file may start with a rotation sentinel whose predecessor has
// already been dropped; its link is taken as given.
func VerifyChain(path string) (int, error) {
	var files []string
	for i := 1; ; i++ {
		name := logging.BackupName(path, i)
		if _, err := os.Stat(name); err != nil {
			break
		}
		files = append([]string{name}, files...)
	}
	files = append(files, path)

	prevHash := genesisHash
	if first, ok, err := firstEntry(files[0]); err != nil {
		return 0, err
	} else if ok && first.EventType == EventLogRotated {
		prevHash = first.PrevHash
	}

	total := 0
	for _, file := range files {
		n, last, err := verifyFile(file, prevHash)
		total += n
		if err != nil {
			return total, fmt.Errorf("%s: %w", file, err)
		}
		prevHash = last
	}
	return total, nil
}

func verifyFile(path, prevHash string) (int, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, prevHash, err
	}

	count := 0
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var entry Entry
		if err := dec.Decode(&entry); err != nil {
			return count, prevHash, fmt.Errorf("entry %d: %w", count+1, err)
		}
		if entry.PrevHash != prevHash {
			return count, prevHash, fmt.Errorf("entry %d: broken link", count+1)
		}
		want, err := hashEntry(Entry{
			Timestamp: entry.Timestamp,
			EventType: entry.EventType,
			Target:    entry.Target,
			Details:   entry.Details,
			PrevHash:  entry.PrevHash,
		})
		if err != nil {
			return count, prevHash, err
		}
		if want != entry.EntryHash {
			return count, prevHash, fmt.Errorf("entry %d: hash mismatch", count+1)
		}
		prevHash = entry.EntryHash
		count++
	}
	return count, prevHash, nil
}

func firstEntry(path string) (Entry, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, false, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if !dec.More() {
		return Entry{}, false, nil
	}
	var entry Entry
	if err := dec.Decode(&entry); err != nil {
		return Entry{}, false, fmt.Errorf("%s: entry 1: %w", path, err)
	}
	return entry, true, nil
}

func (l *Logger) open() error {
	f, size, err := logging.OpenAppend(l.path, 0o600)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	l.file, l.written = f, size
	return nil
}

func (l *Logger) rotate() error {
	last := l.prevHash
	if l.file != nil {
		l.file.Close()
	}
	if err := logging.ShiftBackups(l.path, l.maxBackups); err != nil {
		log.Warn("journal rotation: shifting backups failed", logging.KeyError, err)
	}
	if err := l.open(); err != nil {
		return err
	}

	sentinel := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: EventLogRotated,
		PrevHash:  last,
		Details:   map[string]any{"previousFile": logging.BackupName(l.path, 1)},
	}
	return l.append(&sentinel)
}
