package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500

	trackingKey = "tracking"
)

// Store keeps snapshots in a newline-delimited JSON file, oldest first.
// Indices in its API are newest first. Operations on one Store are
// serialised; separate processes writing the same file are not coordinated.
type Store struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
	// beforeReplace runs after the temporary file is complete and before it
	// replaces the log. Tests use it to simulate a crash.
	beforeReplace func(tmpPath string) error
}

func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:   path,
		logger: logger.With(zap.String("history_file", path)),
	}
}

func (s *Store) Path() string { return s.path }

// Entry is a snapshot with its newest-first index.
type Entry struct {
	Index    int
	Snapshot *Snapshot
}

// Page is one newest-first slice of the log.
type Page struct {
	Items []Entry
	Total int
}

// record is one decoded line. raw is kept so rewrites leave untouched
// entries byte-identical. slot is the position of the line in contents.lines.
type record struct {
	line     int
	slot     int
	raw      []byte
	snapshot *Snapshot
}

// contents is the parsed log. lines holds every line a rewrite keeps, in file
// order, including well-formed JSON that does not decode into a snapshot.
// dropped counts lines that are not JSON at all.
type contents struct {
	records []record
	lines   [][]byte
	dropped int
}

// Append writes one snapshot as a new line. Existing lines are never rewritten.
func (s *Store) Append(snapshot *Snapshot) error {
	if snapshot == nil {
		return errors.New("snapshot is required")
	}
	if err := snapshot.Validate(); err != nil {
		return errors.Wrap(err, "invalid snapshot")
	}
	if snapshot.Tracking == nil {
		tracking := DefaultTracking()
		snapshot.Tracking = &tracking
	}

	line, err := encodeJSON(snapshot)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ioFailure(err, "create history directory %q", dir)
		}
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return ioFailure(err, "open history file %q", s.path)
	}
	defer file.Close()

	partial, err := endsWithPartialLine(file)
	if err != nil {
		return ioFailure(err, "inspect history file %q", s.path)
	}

	buf := make([]byte, 0, len(line)+2)
	if partial {
		s.logger.Warn("history file ends with a partial line, starting a new one")
		buf = append(buf, '\n')
	}
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if _, err := file.Write(buf); err != nil {
		return ioFailure(err, "append to history file %q", s.path)
	}
	if err := file.Sync(); err != nil {
		return ioFailure(err, "sync history file %q", s.path)
	}

	s.logger.Debug("appended snapshot", zap.String("run_id", snapshot.RunID), zap.String("timestamp", snapshot.Timestamp))
	return nil
}

// Count returns the number of readable entries.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.readAll()
	if err != nil {
		return 0, err
	}
	return len(log.records), nil
}

// List returns up to limit snapshots newest first, skipping offset entries.
func (s *Store) List(offset, limit int) (*Page, error) {
	if offset < 0 {
		return nil, errors.Wrapf(ErrInvalidIndex, "offset %d", offset)
	}
	if limit < 1 || limit > MaxPageSize {
		return nil, errors.Wrapf(ErrInvalidIndex, "limit %d is outside 1..%d", limit, MaxPageSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.readAll()
	if err != nil {
		return nil, err
	}

	records := log.records
	total := len(records)
	page := &Page{Total: total, Items: []Entry{}}
	for idx := offset; idx < total && idx < offset+limit; idx++ {
		page.Items = append(page.Items, Entry{Index: idx, Snapshot: records[total-1-idx].snapshot})
	}
	return page, nil
}

// Get returns the snapshot at a newest-first index.
func (s *Store) Get(index int) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.readAll()
	if err != nil {
		return nil, err
	}

	pos, err := position(index, len(log.records))
	if err != nil {
		return nil, err
	}
	return log.records[pos].snapshot, nil
}

// Update merges patch into the tracking record of the entry at a newest-first
// index and atomically rewrites the file. Other entries keep their exact bytes.
// Well-formed JSON lines that are not readable snapshots are written back as
// they are. Only lines that are not JSON at all are dropped by the rewrite.
func (s *Store) Update(index int, patch TrackingPatch) (*Tracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.readAll()
	if err != nil {
		return nil, err
	}

	pos, err := position(index, len(log.records))
	if err != nil {
		return nil, err
	}

	target := log.records[pos]
	merged := patch.Apply(target.snapshot.CurrentTracking())

	encoded, err := encodeJSON(merged)
	if err != nil {
		return nil, errors.Wrap(err, "encode tracking")
	}
	raw, err := replaceField(target.raw, trackingKey, encoded)
	if err != nil {
		return nil, errors.Wrapf(err, "patch history line %d", target.line)
	}

	lines := make([][]byte, len(log.lines))
	copy(lines, log.lines)
	lines[target.slot] = raw

	if log.dropped > 0 {
		s.logger.Warn("dropping corrupt history records on rewrite", zap.Int("count", log.dropped))
	}
	if err := s.rewrite(lines); err != nil {
		return nil, err
	}

	target.snapshot.Tracking = &merged
	s.logger.Info("updated tracking",
		zap.Int("index", index),
		zap.String("run_id", target.snapshot.RunID),
		zap.String("status", merged.Status),
		zap.Bool("applied", merged.Applied),
	)
	return &merged, nil
}

func position(index, count int) (int, error) {
	if index < 0 {
		return 0, errors.Wrapf(ErrInvalidIndex, "index %d", index)
	}
	if index >= count {
		return 0, errors.Wrapf(ErrIndexOutOfRange, "index %d, %d entries", index, count)
	}
	return count - 1 - index, nil
}

// readAll parses the log oldest first. Lines that do not decode into a
// snapshot are skipped and logged. A missing file is empty.
func (s *Store) readAll() (*contents, error) {
	log := &contents{}

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return log, nil
	}
	if err != nil {
		return nil, ioFailure(err, "open history file %q", s.path)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for lineNo := 1; ; lineNo++ {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, ioFailure(readErr, "read history file %q", s.path)
		}

		if raw := bytes.TrimSpace(line); len(raw) > 0 {
			s.parseLine(log, lineNo, raw)
		}

		if readErr != nil {
			break
		}
	}

	return log, nil
}

func (s *Store) parseLine(log *contents, lineNo int, raw []byte) {
	snapshot, err := decodeLine(raw)
	if err == nil {
		log.records = append(log.records, record{line: lineNo, slot: len(log.lines), raw: raw, snapshot: snapshot})
		log.lines = append(log.lines, raw)
		return
	}

	s.logger.Warn("skipping corrupt history record", zap.Int("line", lineNo), zap.Error(&CorruptRecordError{Line: lineNo, Err: err}))
	if json.Valid(raw) {
		log.lines = append(log.lines, raw)
		return
	}
	log.dropped++
}

func decodeLine(raw []byte) (*Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, err
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	if snapshot.Tracking == nil {
		tracking := DefaultTracking()
		snapshot.Tracking = &tracking
	}
	return &snapshot, nil
}

// rewrite replaces the file with lines via a temporary file in the same
// directory, so readers see either the old or the new content.
func (s *Store) rewrite(lines [][]byte) (err error) {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return ioFailure(err, "create temporary history file in %q", dir)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err = w.Write(line); err != nil {
			return ioFailure(err, "write temporary history file")
		}
		if err = w.WriteByte('\n'); err != nil {
			return ioFailure(err, "write temporary history file")
		}
	}
	if err = w.Flush(); err != nil {
		return ioFailure(err, "flush temporary history file")
	}
	if err = tmp.Sync(); err != nil {
		return ioFailure(err, "sync temporary history file")
	}
	if err = tmp.Close(); err != nil {
		return ioFailure(err, "close temporary history file")
	}

	if info, statErr := os.Stat(s.path); statErr == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	}

	if s.beforeReplace != nil {
		if err = s.beforeReplace(tmpName); err != nil {
			return errors.Wrap(err, "before replace")
		}
	}

	if err = os.Rename(tmpName, s.path); err != nil {
		return ioFailure(err, "replace history file %q", s.path)
	}
	return nil
}

// endsWithPartialLine reports whether a non-empty file lacks a trailing newline.
func endsWithPartialLine(file *os.File) (bool, error) {
	info, err := file.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := file.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// replaceField sets key in a JSON object to value, keeping every other member
// and the member order as they are in raw. A missing key is appended.
func replaceField(raw []byte, key string, value []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("record is not a JSON object")
	}

	encodedKey, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.WriteByte('{')
	written := false
	members := 0
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, errors.New("unexpected token in record")
		}
		var member json.RawMessage
		if err := dec.Decode(&member); err != nil {
			return nil, err
		}

		if members > 0 {
			out.WriteByte(',')
		}
		members++

		nameJSON, err := encodeJSON(name)
		if err != nil {
			return nil, err
		}
		out.Write(nameJSON)
		out.WriteByte(':')
		if name == key {
			out.Write(value)
			written = true
		} else {
			out.Write(member)
		}
	}

	if !written {
		if members > 0 {
			out.WriteByte(',')
		}
		out.Write(encodedKey)
		out.WriteByte(':')
		out.Write(value)
	}
	out.WriteByte('}')
	return out.Bytes(), nil
}
