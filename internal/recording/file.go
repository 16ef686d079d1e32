// Package recording owns the lifecycle of one ASTERIX output file: create it
// at the active path, append payloads, then close it and rename it to a name
// carrying the window's timestamps.
package recording

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"Kakofonix/astrec/internal/rotation"
)

// Extension is appended to both the active and the finalized file names.
const Extension = ".ast"

const writeBufferSize = 64 * 1024

var (
	ErrFileCreate      = errors.New("cannot create recording file")
	ErrFileWrite       = errors.New("cannot write recording file")
	ErrFileClose       = errors.New("cannot close recording file")
	ErrFileRename      = errors.New("cannot rename recording file")
	ErrRenameCollision = errors.New("recording file already exists")
)

// Segment describes a closed recording.
type Segment struct {
	Window      rotation.Window
	FinalizedAt time.Time
	ActivePath  string
	FinalPath   string
	Bytes       int64
	Datagrams   int64
	// Renamed is false when the data is still at ActivePath.
	Renamed bool
}

// Path returns where the segment's data actually lives.
func (s Segment) Path() string {
	if s.Renamed {
		return s.FinalPath
	}
	return s.ActivePath
}

// File is the open recording for one window. It is not safe for concurrent
// use; the capture loop is its only user.
type File struct {
	prefix    string
	window    rotation.Window
	f         *os.File
	w         *bufio.Writer
	bytes     int64
	datagrams int64
	closed    bool
}

// ActivePath is the fixed name written to while a window is open.
func ActivePath(prefix string) string {
	return prefix + Extension
}

// FinalPath is the name a closed recording is renamed to.
func FinalPath(prefix string, w rotation.Window, finalizedAt time.Time) string {
	return fmt.Sprintf("%s_%s_%s%s", prefix, w.StartLabel, rotation.EndLabel(finalizedAt), Extension)
}

// Open creates or truncates the active file for window w.
func Open(prefix string, w rotation.Window) (*File, error) {
	path := ActivePath(prefix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrFileCreate, path, err)
	}
	return &File{
		prefix: prefix,
		window: w,
		f:      f,
		w:      bufio.NewWriterSize(f, writeBufferSize),
	}, nil
}

// Window returns the window the file is bound to.
func (r *File) Window() rotation.Window {
	return r.window
}

// Bytes returns the number of payload bytes accepted so far.
func (r *File) Bytes() int64 {
	return r.bytes
}

// Write appends one datagram payload.
func (r *File) Write(p []byte) error {
	if r.closed {
		return fmt.Errorf("%w %s: file already closed", ErrFileWrite, ActivePath(r.prefix))
	}
	n, err := r.w.Write(p)
	r.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrFileWrite, ActivePath(r.prefix), err)
	}
	r.datagrams++
	return nil
}

// CloseAndFinalize flushes and closes the file, then renames it to its final
// name. A close failure is returned as ErrFileClose and must be treated as
// fatal. Rename problems are returned wrapped in ErrRenameCollision or
// ErrFileRename; the returned Segment is valid in those cases and the data
// stays at the active path.
func (r *File) CloseAndFinalize(finalizedAt time.Time) (Segment, error) {
	seg := Segment{
		Window:      r.window,
		FinalizedAt: finalizedAt,
		ActivePath:  ActivePath(r.prefix),
		FinalPath:   FinalPath(r.prefix, r.window, finalizedAt),
		Bytes:       r.bytes,
		Datagrams:   r.datagrams,
	}
	if r.closed {
		return seg, fmt.Errorf("%w %s: file already closed", ErrFileClose, seg.ActivePath)
	}
	r.closed = true

	flushErr := r.w.Flush()
	closeErr := r.f.Close()
	if flushErr != nil {
		return seg, fmt.Errorf("%w %s: %v", ErrFileClose, seg.ActivePath, flushErr)
	}
	if closeErr != nil {
		return seg, fmt.Errorf("%w %s: %v", ErrFileClose, seg.ActivePath, closeErr)
	}

	if err := renameNoReplace(seg.ActivePath, seg.FinalPath); err != nil {
		return seg, err
	}
	seg.Renamed = true
	return seg, nil
}

// Abort closes the handle without flushing or renaming. Used when the file
// can no longer be trusted.
func (r *File) Abort() {
	if r.closed {
		return
	}
	r.closed = true
	_ = r.f.Close()
}

// renameNoReplace moves src to dst unless dst already exists. A hard link
// fails atomically when dst exists, so nothing is ever overwritten; where
// links are not supported it falls back to a check followed by a rename.
func renameNoReplace(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrRenameCollision, dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w %s to %s: %v", ErrFileRename, src, dst, err)
	}

	linkErr := os.Link(src, dst)
	if linkErr == nil {
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("%w %s to %s: %v", ErrFileRename, src, dst, err)
		}
		return nil
	}
	if errors.Is(linkErr, fs.ErrExist) {
		return fmt.Errorf("%w: %s", ErrRenameCollision, dst)
	}
	if errors.Is(linkErr, fs.ErrNotExist) {
		return fmt.Errorf("%w %s to %s: %v", ErrFileRename, src, dst, linkErr)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("%w %s to %s: %v", ErrFileRename, src, dst, err)
	}
	return nil
}
