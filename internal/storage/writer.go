// Package storage writes accepted events to rotated, newline-delimited
// JSON files. Exactly one file per writer is open at a time; closed files
// never receive another write.
package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Uttam1728/event-analytics/internal/models"
)

const fileSuffix = ".jsonl"

// Writer appends records to the open file and rotates it once the size or
// entry-count threshold is crossed. Writers are safe for concurrent use,
// though the persistence worker is the only expected caller.
type Writer struct {
	mu         sync.Mutex
	dir        string
	owner      string
	maxBytes   int64
	maxEntries int64

	seq     int
	file    *os.File
	size    int64
	entries int64

	// onRotate is invoked with the path of each closed file.
	onRotate func(path string)
}

func NewWriter(dir, owner string, maxBytes, maxEntries int64) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	w := &Writer{
		dir:        dir,
		owner:      owner,
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
	}

	// Resume rotation numbering after a restart; a file left behind by a
	// crashed run stays closed and redelivery covers its missing acks.
	seq, err := highestSequence(dir, owner)
	if err != nil {
		return nil, err
	}
	w.seq = seq

	if err := w.openNext(); err != nil {
		return nil, err
	}
	return w, nil
}

// OnRotate registers a hook called with each closed file's path.
func (w *Writer) OnRotate(fn func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onRotate = fn
}

// WriteBatch appends the records followed by newlines and flushes them
// durably before returning. Rotation may happen between records, never in
// the middle of one.
func (w *Writer) WriteBatch(records [][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("writer is closed")
	}

	for _, record := range records {
		line := make([]byte, 0, len(record)+1)
		line = append(line, record...)
		line = append(line, '\n')
		if _, err := w.file.Write(line); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
		w.size += int64(len(record)) + 1
		w.entries++

		if w.size >= w.maxBytes || w.entries >= w.maxEntries {
			if err := w.rotateLocked(); err != nil {
				return err
			}
		}
	}

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync events file: %w", err)
	}
	return nil
}

// Rotate closes the open file and opens the next one in the sequence.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

func (w *Writer) rotateLocked() error {
	closed, err := w.closeCurrentLocked()
	if err != nil {
		return err
	}
	if err := w.openNext(); err != nil {
		return err
	}
	if closed != "" && w.onRotate != nil {
		w.onRotate(closed)
	}
	return nil
}

func (w *Writer) closeCurrentLocked() (string, error) {
	if w.file == nil {
		return "", nil
	}
	path := w.file.Name()
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return "", fmt.Errorf("sync before close: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return "", fmt.Errorf("close events file: %w", err)
	}
	// Closed files are read-only from here on.
	_ = os.Chmod(path, 0o444)
	w.file = nil
	return path, nil
}

func (w *Writer) openNext() error {
	w.seq++
	path := filepath.Join(w.dir, fileName(w.owner, w.seq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	w.file = f
	w.size = 0
	w.entries = 0
	return nil
}

// OpenFile reports the path of the currently open file.
func (w *Writer) OpenFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

// Close flushes and closes the open file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.closeCurrentLocked()
	return err
}

func fileName(owner string, seq int) string {
	return fmt.Sprintf("events_%s_%06d%s", owner, seq, fileSuffix)
}

func highestSequence(dir, owner string) (int, error) {
	pattern := filepath.Join(dir, "events_"+owner+"_*"+fileSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("scan data dir: %w", err)
	}
	highest := 0
	prefix := "events_" + owner + "_"
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), fileSuffix)
		n, err := strconv.Atoi(strings.TrimPrefix(base, prefix))
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest, nil
}

// Stats reports the file count and total size under dir without opening
// any file contents. Used by the status snapshot.
func Stats(dir string) (int, int64, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+fileSuffix))
	if err != nil {
		return 0, 0, fmt.Errorf("scan data dir: %w", err)
	}
	var total int64
	count := 0
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		count++
		total += info.Size()
	}
	return count, total, nil
}

// Inventory lists persisted files with their entry counts, oldest first.
func Inventory(dir string) ([]models.FileInfo, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("scan data dir: %w", err)
	}
	sort.Strings(matches)

	files := make([]models.FileInfo, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		lines, err := countLines(m)
		if err != nil {
			return nil, err
		}
		files = append(files, models.FileInfo{
			Path:       m,
			SizeBytes:  info.Size(),
			EventCount: lines,
			Modified:   info.ModTime().UTC(),
		})
	}
	return files, nil
}

func countLines(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("count lines in %s: %w", path, err)
	}
	return lines, nil
}
