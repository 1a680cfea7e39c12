package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"lpstaking/internal/model"
)

// EventPlaceholder in an event log path is replaced by the event name, giving
// each event kind its own file.
const EventPlaceholder = "{event}"

// EventLog appends committed events as JSON lines and syncs each file before
// returning, so an acknowledged batch survives a crash.
type EventLog struct {
	pattern string
	mu      sync.Mutex
}

func NewEventLog(pattern string) *EventLog {
	return &EventLog{pattern: pattern}
}

// PathFor returns the file that events named name are appended to.
func (l *EventLog) PathFor(name string) string {
	return strings.ReplaceAll(l.pattern, EventPlaceholder, name)
}

// PutEventBatch encodes the whole batch before touching disk; a batch with an
// unencodable record writes nothing.
func (l *EventLog) PutEventBatch(events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	lines := make(map[string]*bytes.Buffer)
	for _, record := range events {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal event %s %s: %w", record.Name, record.ID, err)
		}
		path := l.PathFor(record.Name)
		buf, ok := lines[path]
		if !ok {
			buf = new(bytes.Buffer)
			lines[path] = buf
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	paths := make([]string, 0, len(lines))
	for path := range lines {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, path := range paths {
		if err := appendSync(path, lines[path].Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func appendSync(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create events dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("write events %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync events %s: %w", path, err)
	}
	return file.Close()
}
