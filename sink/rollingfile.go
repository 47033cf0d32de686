// Copyright 2025 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sink

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DeRuina/timberjack"
	"github.com/gofrs/flock"
)

const (
	// maxPendingFileBytes bounds the buffer kept while the file is unwritable.
	maxPendingFileBytes = 4 << 20
	// eagerFlushBytes triggers a write before the next tick.
	eagerFlushBytes = 256 << 10
	megabyte        = 1 << 20
	// backupStampLayout is the timestamp timberjack inserts into rotated
	// segment names: <name>-<stamp>-<reason><ext>.
	backupStampLayout = "2006-01-02T15-04-05.000"
)

func (c RollingFile) validate() error {
	tmpl := strings.TrimSpace(c.PathTemplate)
	if tmpl == "" {
		return fmt.Errorf("%w: rolling file path template is empty", ErrMalformed)
	}
	if n := strings.Count(tmpl, DatePlaceholder); n != 1 {
		return fmt.Errorf("%w: rolling file path template %q must contain %s exactly once", ErrMalformed, c.PathTemplate, DatePlaceholder)
	}
	if !strings.Contains(filepath.Base(tmpl), DatePlaceholder) {
		return fmt.Errorf("%w: rolling file path template %q must carry %s in the file name", ErrMalformed, c.PathTemplate, DatePlaceholder)
	}
	if c.RetainedFileCount < 0 || c.FileSizeLimitBytes < 0 || c.FlushInterval < 0 || c.RotationInterval < 0 {
		return fmt.Errorf("%w: rolling file limits must not be negative", ErrMalformed)
	}
	return nil
}

// PeriodKey renders the period containing t for the given rotation interval.
func PeriodKey(t time.Time, interval time.Duration) string {
	if interval <= 0 || interval >= 24*time.Hour {
		return t.Format(periodLayout(interval))
	}
	return t.Truncate(interval).Format(periodLayout(interval))
}

func periodLayout(interval time.Duration) string {
	switch {
	case interval <= 0 || interval >= 24*time.Hour:
		return "20060102"
	case interval >= time.Hour:
		return "2006010215"
	default:
		return "200601021504"
	}
}

// isPeriodStem reports whether stem, the part of a file name between the
// template's prefix and suffix, is a period key for interval, optionally
// followed by a timberjack backup stamp.
func isPeriodStem(stem string, interval time.Duration) bool {
	layout := periodLayout(interval)
	if len(stem) < len(layout) {
		return false
	}
	if _, err := time.Parse(layout, stem[:len(layout)]); err != nil {
		return false
	}
	rest := stem[len(layout):]
	if rest == "" {
		return true
	}
	n := len(backupStampLayout)
	if len(rest) < n+3 || rest[0] != '-' || rest[n+1] != '-' {
		return false
	}
	if _, err := time.Parse(backupStampLayout, rest[1:n+1]); err != nil {
		return false
	}
	for _, r := range rest[n+2:] {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// PathFor substitutes the period key into the template.
func (c RollingFile) PathFor(t time.Time) string {
	return strings.Replace(strings.TrimSpace(c.PathTemplate), DatePlaceholder, PeriodKey(t, c.RotationInterval), 1)
}

func openRollingFile(c RollingFile, env Env) (Handler, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	w := newRollingWriter(c, env)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       acceptAll,
		ReplaceAttr: levelRenamer(env.LevelName),
	})
	return closingHandler{Handler: h, close: w.Close}, nil
}

// rollingWriter buffers lines in memory and appends them to the file for the
// current period on every tick. Write never fails; destination errors are
// reported once per failure streak.
type rollingWriter struct {
	cfg RollingFile
	env Env

	mu       sync.Mutex
	buf      bytes.Buffer
	period   string
	path     string
	out      *timberjack.Logger
	lock     *flock.Flock
	failing  bool
	dropped  int
	closed   bool
	stop     chan struct{}
	done     chan struct{}
	closeErr error
	once     sync.Once
}

func newRollingWriter(c RollingFile, env Env) *rollingWriter {
	w := &rollingWriter{
		cfg:  c,
		env:  env,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	interval := c.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	go w.loop(interval)
	return w
}

func (w *rollingWriter) loop(interval time.Duration) {
	defer close(w.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			w.flushLocked()
			w.mu.Unlock()
		case <-w.stop:
			return
		}
	}
}

// Write implements io.Writer.
func (w *rollingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return len(p), nil
	}
	if w.buf.Len()+len(p) > maxPendingFileBytes {
		w.dropped++
		return len(p), nil
	}
	w.buf.Write(p)
	if w.buf.Len() >= eagerFlushBytes {
		w.flushLocked()
	}
	return len(p), nil
}

// Close stops the ticker, writes what is buffered and closes the file.
func (w *rollingWriter) Close() error {
	w.once.Do(func() {
		close(w.stop)
		<-w.done
		w.mu.Lock()
		defer w.mu.Unlock()
		w.flushLocked()
		w.closed = true
		if w.buf.Len() > 0 {
			w.closeErr = fmt.Errorf("rolling file %s: %d bytes not written", w.path, w.buf.Len())
			w.buf.Reset()
		}
		if w.out != nil {
			if err := w.out.Close(); err != nil && w.closeErr == nil {
				w.closeErr = err
			}
			w.out = nil
		}
	})
	return w.closeErr
}

func (w *rollingWriter) flushLocked() {
	if w.buf.Len() == 0 {
		return
	}
	if err := w.ensureFileLocked(w.env.Now()); err != nil {
		w.reportLocked(err)
		return
	}
	if err := w.appendLocked(w.buf.Bytes()); err != nil {
		w.reportLocked(err)
		return
	}
	w.buf.Reset()
	if w.failing {
		w.failing = false
		w.env.warnf("rolling file %s writable again", w.path)
	}
	if w.dropped > 0 {
		w.env.warnf("rolling file %s dropped %d events while unwritable", w.path, w.dropped)
		w.dropped = 0
	}
}

func (w *rollingWriter) appendLocked(p []byte) error {
	if w.lock != nil {
		if err := w.lock.Lock(); err != nil {
			return fmt.Errorf("lock %s: %w", w.lock.Path(), err)
		}
		defer func() { _ = w.lock.Unlock() }()
	}
	_, err := w.out.Write(p)
	return err
}

// ensureFileLocked switches to the file for the period containing now.
func (w *rollingWriter) ensureFileLocked(now time.Time) error {
	period := PeriodKey(now, w.cfg.RotationInterval)
	if w.out != nil && period == w.period {
		return nil
	}
	path := w.cfg.PathFor(now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	if w.out != nil {
		_ = w.out.Close()
	}
	w.out = &timberjack.Logger{
		Filename:   path,
		MaxSize:    sizeInMegabytes(w.cfg.FileSizeLimitBytes),
		MaxBackups: w.cfg.RetainedFileCount,
	}
	if w.cfg.Shared {
		w.lock = flock.New(path + ".lock")
	} else {
		w.lock = nil
	}
	w.period = period
	w.path = path
	w.pruneLocked()
	return nil
}

func (w *rollingWriter) reportLocked(err error) {
	if w.failing {
		return
	}
	w.failing = true
	w.env.warnf("rolling file %s unwritable, buffering events: %v", w.cfg.PathTemplate, err)
}

// pruneLocked removes the oldest files matching the template beyond the
// retained count. Rotated segments of earlier periods match as well; files
// whose date part is not a period key belong to someone else.
func (w *rollingWriter) pruneLocked() {
	keep := w.cfg.RetainedFileCount
	if keep <= 0 {
		return
	}
	tmpl := strings.TrimSpace(w.cfg.PathTemplate)
	dir := filepath.Dir(tmpl)
	base := filepath.Base(tmpl)
	prefix, suffix, _ := strings.Cut(base, DatePlaceholder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type candidate struct {
		path string
		mod  time.Time
	}
	var files []candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) <= len(prefix)+len(suffix) {
			continue
		}
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		if !isPeriodStem(name[len(prefix):len(name)-len(suffix)], w.cfg.RotationInterval) {
			continue
		}
		full := filepath.Join(dir, name)
		if full == w.path {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{path: full, mod: info.ModTime()})
	}
	// The active file counts toward the limit.
	if len(files) < keep {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	for _, f := range files[keep-1:] {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			w.env.warnf("log retention remove %s failed: %v", f.path, err)
		}
	}
}

func sizeInMegabytes(limit int64) int {
	if limit <= 0 {
		return 0
	}
	return int((limit + megabyte - 1) / megabyte)
}
