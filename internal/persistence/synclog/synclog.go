// Package synclog persists one JSONL record per reconciliation pass,
// zstd-compressed and rotated daily. The log is the operator's audit trail of
// what each pass created, corrected, and flagged.
package synclog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"mudgate.gg/internal/recon"
)

type Writer struct {
	dir string

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write appends one pass report. Reports are rare (one per interval), so each
// record is flushed through the encoder immediately to keep the log readable
// after a crash.
func (w *Writer) Write(rep recon.PassReport) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	day := rep.StartedAt.UTC().Format("2006-01-02")
	if day != w.curDay {
		if err := w.rotateLocked(day); err != nil {
			return err
		}
	}

	b, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(day string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForDay(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriter(enc)
	w.curDay = day
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curDay = ""
	return err
}

func (w *Writer) pathForDay(day string) string {
	return filepath.Join(w.dir, fmt.Sprintf("sync-%s.jsonl.zst", day))
}

// Path returns the log file a report written at t would land in.
func (w *Writer) Path(t time.Time) string {
	return w.pathForDay(t.UTC().Format("2006-01-02"))
}
