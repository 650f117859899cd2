package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"github.com/setevik/autoheal/internal/fault"
)

// DefaultMaxLines caps lines returned by one FileSource poll.
const DefaultMaxLines = 500

// maxLineBytes bounds a single line; longer lines are truncated.
const maxLineBytes = 64 * 1024

type tailState struct {
	path   string
	offset int64
	info   os.FileInfo
	dirty  bool
}

// FileSource tails plain-text log files. Each Poll returns complete lines
// appended since the previous poll. A file that shrinks is read again from
// the start, and a replaced file (log rotation) is followed by path.
//
// Watch marks files dirty through fsnotify so idle files are not read.
// Without Watch every poll checks every file.
type FileSource struct {
	name      string
	maxLines  int
	fromStart bool

	mu       sync.Mutex
	files    map[string]*tailState
	order    []string
	watching bool
	primed   bool
}

// NewFileSource creates a source over paths. New files are read from their
// current end unless fromStart is set.
func NewFileSource(name string, paths []string, maxLines int, fromStart bool) (*FileSource, error) {
	if len(paths) == 0 {
		return nil, errors.New("file source needs at least one path")
	}
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	fs := &FileSource{
		name:      name,
		maxLines:  maxLines,
		fromStart: fromStart,
		files:     make(map[string]*tailState, len(paths)),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		if _, dup := fs.files[abs]; dup {
			continue
		}
		fs.files[abs] = &tailState{path: abs, dirty: true}
		fs.order = append(fs.order, abs)
	}
	return fs, nil
}

func (f *FileSource) Name() string { return f.name }

// Watch subscribes to changes of the files' parent directories until ctx is
// cancelled. Directories are watched rather than files so rotation is seen.
func (f *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	dirs := make(map[string]struct{})
	for _, p := range f.order {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	f.mu.Lock()
	f.watching = true
	f.mu.Unlock()

	go func() {
		defer watcher.Close()
		defer func() {
			f.mu.Lock()
			f.watching = false
			f.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
					continue
				}
				f.markDirty(event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("file watcher error", "source", f.name, "error", err)
			}
		}
	}()

	slog.Info("watching log files", "source", f.name, "files", len(f.order))
	return nil
}

func (f *FileSource) markDirty(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.files[path]; ok {
		st.dirty = true
	}
}

// Poll reads new lines from dirty files, at most maxLines in total. Files
// that still have unread data stay dirty for the next poll.
func (f *FileSource) Poll(ctx context.Context) ([]fault.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	first := !f.primed
	f.primed = true

	var (
		out  []fault.Signal
		errs []error
	)
	budget := f.maxLines
	for _, path := range f.order {
		if ctx.Err() != nil {
			break
		}
		st := f.files[path]
		if f.watching && !st.dirty {
			continue
		}
		if budget <= 0 {
			st.dirty = true
			continue
		}

		lines, more, err := f.read(st, budget, first && !f.fromStart)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		st.dirty = more
		budget -= len(lines)

		now := time.Now()
		for _, l := range lines {
			out = append(out, fault.Signal{Text: l, CapturedAt: now, Source: f.name + ":" + filepath.Base(path)})
		}
	}
	return out, errors.Join(errs...)
}

// read returns up to limit complete lines from st's offset and reports
// whether unread data remains. When skip is set the offset is moved to the
// end of the file and nothing is returned.
func (f *FileSource) read(st *tailState, limit int, skip bool) ([]string, bool, error) {
	file, err := os.Open(st.path)
	if errors.Is(err, os.ErrNotExist) {
		st.offset, st.info = 0, nil
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("opening %s: %w", st.path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("stat %s: %w", st.path, err)
	}

	switch {
	case skip:
		st.offset, st.info = info.Size(), info
		return nil, false, nil
	case st.info != nil && !os.SameFile(st.info, info):
		slog.Info("log file replaced, reading from start", "path", st.path)
		st.offset = 0
	case info.Size() < st.offset:
		slog.Info("log file truncated, reading from start", "path", st.path)
		st.offset = 0
	}
	st.info = info

	if info.Size() == st.offset {
		return nil, false, nil
	}
	if _, err := file.Seek(st.offset, io.SeekStart); err != nil {
		return nil, false, fmt.Errorf("seek %s: %w", st.path, err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	for len(lines) < limit {
		raw, err := reader.ReadString('\n')
		if err != nil {
			// Partial trailing line; wait for the writer to finish it.
			break
		}
		st.offset += int64(len(raw))
		line := strings.TrimRight(raw, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		line = truncateLine(line, maxLineBytes)
		lines = append(lines, line)
	}
	return lines, st.offset < info.Size() && len(lines) == limit, nil
}

// truncateLine cuts line to at most n bytes without splitting a UTF-8
// sequence.
func truncateLine(line string, n int) string {
	if len(line) <= n {
		return line
	}
	for n > 0 && !utf8.RuneStart(line[n]) {
		n--
	}
	return line[:n]
}
