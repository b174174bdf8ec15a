package flash

import (
	"context"
	"fmt"
	"io"
)

var (
	_ io.ReaderAt = (*Flash)(nil)
	_ io.WriterAt = (*Flash)(nil)
)

// ReadAt reads len(p) bytes at off. A read running past the end of the memory
// returns the bytes up to the end together with io.EOF.
func (f *Flash) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, off)
	}
	capacity := int64(f.config.Capacity)
	if off >= capacity {
		return 0, io.EOF
	}
	n := len(p)
	if int64(n) > capacity-off {
		n = int(capacity - off)
	}
	err := f.Read(context.Background(), uint(off), p[:n])
	if err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes p at off. On a failed page write n counts the bytes of the
// pages committed before the failure.
func (f *Flash) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, off)
	}
	return f.write(context.Background(), uint(off), p)
}
