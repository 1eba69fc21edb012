package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/chatlog/internal/conversation"
)

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("store: conversation not found")

	// ErrIndexDisabled is returned by Search when no index is configured.
	ErrIndexDisabled = errors.New("store: search index disabled")
)

const (
	filePrefix      = "conversation_"
	fileTimeLayout  = "20060102_150405"
	filePermissions = 0o644
	dirPermissions  = 0o755
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// FileSink writes records as indented JSON files.
type FileSink struct {
	dir string
}

// NewFileSink returns a sink rooted at dir. The directory is created on
// first write.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Dir returns the logs directory.
func (s *FileSink) Dir() string { return s.dir }

// FileName returns conversation_{id}_{YYYYMMDD_HHMMSS}.json for rec.
func FileName(rec *conversation.Record) string {
	id := unsafeName.ReplaceAllString(rec.ID, "_")
	return fmt.Sprintf("%s%s_%s.json", filePrefix, id, rec.CreatedAt.Format(fileTimeLayout))
}

// Write stores rec and returns the file path.
func (s *FileSink) Write(rec *conversation.Record) (string, error) {
	if err := os.MkdirAll(s.dir, dirPermissions); err != nil {
		return "", fmt.Errorf("creating logs directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding conversation: %w", err)
	}

	path := filepath.Join(s.dir, FileName(rec))
	tmp, err := os.CreateTemp(s.dir, ".conversation-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing conversation: %w", err)
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		tmp.Close()
		return "", fmt.Errorf("setting permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("renaming conversation file: %w", err)
	}
	return path, nil
}

// Read decodes one record file.
func Read(path string) (*conversation.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec conversation.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	rec.Normalize()
	return &rec, nil
}

// Entry is a listed record and its file.
type Entry struct {
	Path   string
	Record *conversation.Record
}

// List reads every record in the directory, newest file first. Unreadable
// files are skipped. A missing directory lists as empty.
func (s *FileSink) List() ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading logs directory: %w", err)
	}

	type candidate struct {
		path  string
		mtime int64
	}
	var cands []candidate
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		cands = append(cands, candidate{filepath.Join(s.dir, f.Name()), info.ModTime().UnixNano()})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].mtime != cands[j].mtime {
			return cands[i].mtime > cands[j].mtime
		}
		return cands[i].path > cands[j].path
	})

	entries := make([]Entry, 0, len(cands))
	for _, c := range cands {
		rec, err := Read(c.path)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Path: c.path, Record: rec})
	}
	return entries, nil
}

// Get returns the most recent record with id.
func (s *FileSink) Get(id string) (*conversation.Record, error) {
	pattern := filepath.Join(s.dir, filePrefix+unsafeName.ReplaceAllString(id, "_")+"_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("matching %s: %w", pattern, err)
	}
	sort.Strings(matches)
	for i := len(matches) - 1; i >= 0; i-- {
		if rec, err := Read(matches[i]); err == nil && rec.ID == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}
