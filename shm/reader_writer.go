// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shm

import (
	"io"

	ipc "github.com/nxgtw/go-shm"

	"github.com/pkg/errors"
)

// errClosed is returned by readers and writers, whose segments were closed or moved away.
var errClosed = errors.New("segment is not valid")

// SegmentReader is a reader for safe operations over a shared memory segment.
// It holds a reference to the segment, so the former can't be gc'ed.
type SegmentReader struct {
	seg *Segment
	pos int64
}

// NewReader creates a new reader for the given segment.
func NewReader(seg *Segment) *SegmentReader {
	return &SegmentReader{seg: seg}
}

// ReadAt is to implement io.ReaderAt.
func (r *SegmentReader) ReadAt(p []byte, off int64) (n int, err error) {
	if !r.seg.IsValid() {
		return 0, errClosed
	}
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	data := r.seg.Data()
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n = copy(p, data[off:])
	if n < len(p) {
		err = io.EOF
	}
	return
}

// Read is to implement io.Reader.
func (r *SegmentReader) Read(p []byte) (n int, err error) {
	n, err = r.ReadAt(p, r.pos)
	r.pos += int64(n)
	if n > 0 && err == io.EOF {
		err = nil
	}
	return
}

// SegmentWriter is a writer for safe operations over a shared memory segment.
// It holds a reference to the segment, so the former can't be gc'ed.
type SegmentWriter struct {
	seg *Segment
	pos int64
}

// NewWriter creates a new writer for the given segment.
func NewWriter(seg *Segment) *SegmentWriter {
	return &SegmentWriter{seg: seg}
}

// WriteAt is to implement io.WriterAt.
// Writing into a read-only segment returns ErrReadOnly.
func (w *SegmentWriter) WriteAt(p []byte, off int64) (n int, err error) {
	if !w.seg.IsValid() {
		return 0, errClosed
	}
	if w.seg.Access() == ipc.ReadOnly {
		return 0, ErrReadOnly
	}
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	data := w.seg.Data()
	if off < int64(len(data)) {
		n = copy(data[off:], p)
	}
	if n < len(p) {
		err = io.EOF
	}
	return
}

// Write is to implement io.Writer.
func (w *SegmentWriter) Write(p []byte) (n int, err error) {
	n, err = w.WriteAt(p, w.pos)
	w.pos += int64(n)
	return n, err
}
