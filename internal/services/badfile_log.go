package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"radar-uptime/pkg/logging"
)

// ErrBadFileLogClosed is returned by Report after Close.
var ErrBadFileLogClosed = errors.New("bad file log is closed")

// BadFileKind selects which list a bad file is appended to.
type BadFileKind int

const (
	// CorruptFile is a file the DMAP decoder could not read.
	CorruptFile BadFileKind = iota
	// RejectedFile decoded but could not be built into a valid record.
	RejectedFile
)

func (k BadFileKind) String() string {
	if k == CorruptFile {
		return "corrupt"
	}
	return "rejected"
}

// BadFile is one entry for the bad file lists.
type BadFile struct {
	Kind   BadFileKind
	Name   string
	Reason string
}

// line renders the entry the way the lists have always been written:
// corrupt files quote the decoder message, rejected files do not.
func (b BadFile) line() string {
	reason := strings.Join(strings.Fields(b.Reason), " ")
	if b.Kind == CorruptFile {
		return fmt.Sprintf("%s:%q\n", b.Name, reason)
	}
	return fmt.Sprintf("%s:%s\n", b.Name, reason)
}

// BadFileLog owns append access to the corrupt and rejected file lists.
// Any goroutine may Report; a single consumer performs every write.
type BadFileLog struct {
	paths   map[BadFileKind]string
	entries chan BadFile
	done    chan struct{}
	logger  *logging.StructuredLogger

	// mu guards closed; Report holds it shared while sending so Close
	// cannot close the channel under a pending send.
	mu     sync.RWMutex
	closed bool
	err    error
	written   map[BadFileKind]int
}

// NewBadFileLog starts the consumer. Close must be called to flush and
// release the files.
func NewBadFileLog(corruptPath, rejectedPath string, logger *logging.StructuredLogger) *BadFileLog {
	l := &BadFileLog{
		paths: map[BadFileKind]string{
			CorruptFile:  corruptPath,
			RejectedFile: rejectedPath,
		},
		entries: make(chan BadFile, 64),
		done:    make(chan struct{}),
		logger:  logger,
		written: make(map[BadFileKind]int),
	}
	go l.run()
	return l
}

// Report queues an entry. It blocks only while the queue is full or until
// ctx is done, and returns ErrBadFileLogClosed once Close has been called.
func (l *BadFileLog) Report(ctx context.Context, entry BadFile) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrBadFileLogClosed
	}
	select {
	case l.entries <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue, closes the files and returns the first write
// error encountered.
func (l *BadFileLog) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.entries)
	}
	l.mu.Unlock()
	<-l.done
	return l.err
}

// Written returns how many entries reached each list. Only valid after
// Close.
func (l *BadFileLog) Written(kind BadFileKind) int {
	return l.written[kind]
}

func (l *BadFileLog) run() {
	defer close(l.done)

	files := make(map[BadFileKind]*os.File)
	defer func() {
		for _, f := range files {
			if err := f.Close(); err != nil && l.err == nil {
				l.err = err
			}
		}
	}()

	for entry := range l.entries {
		f, ok := files[entry.Kind]
		if !ok {
			path := l.paths[entry.Kind]
			if path == "" {
				continue
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					l.fail(entry, err)
					continue
				}
			}
			var err error
			f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				l.fail(entry, err)
				continue
			}
			files[entry.Kind] = f
		}

		if _, err := f.WriteString(entry.line()); err != nil {
			l.fail(entry, err)
			continue
		}
		l.written[entry.Kind]++
	}
}

func (l *BadFileLog) fail(entry BadFile, err error) {
	if l.err == nil {
		l.err = err
	}
	l.logger.Error(context.Background(), "[BADFILE_WRITE_ERROR] Failed to record bad file", logging.Fields{
		"file": entry.Name,
		"list": l.paths[entry.Kind],
	}, err)
}
