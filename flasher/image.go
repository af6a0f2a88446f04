package flasher

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Image is a loader image uploaded to the BootROM.
type Image struct {
	Name string

	r      io.ReaderAt
	size   int64
	closer io.Closer
}

// OpenImage opens the loader image at path. The file is read chunk by
// chunk during the upload and must stay in place until Close.
func OpenImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open loader: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat loader: %w", err)
	}
	if info.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("loader %s is empty", path)
	}

	return &Image{Name: path, r: f, size: info.Size(), closer: f}, nil
}

// NewImage wraps an in-memory loader image.
func NewImage(name string, data []byte) *Image {
	return &Image{Name: name, r: bytes.NewReader(data), size: int64(len(data))}
}

// NewImageReader wraps size bytes of r as a loader image.
func NewImageReader(name string, r io.ReaderAt, size int64) *Image {
	return &Image{Name: name, r: r, size: size}
}

// Size returns the image length in bytes.
func (i *Image) Size() int64 {
	return i.size
}

// readChunk reads up to n bytes at off into a buffer with room for the
// checksum.
func (i *Image) readChunk(off int64, n int, extra int) ([]byte, error) {
	if rem := i.size - off; int64(n) > rem {
		n = int(rem)
	}
	buf := make([]byte, n, n+extra)
	read, err := i.r.ReadAt(buf, off)
	if read == n {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, &ImageReadError{Name: i.Name, Offset: off, Err: err}
}

// Close releases the underlying file, if any.
func (i *Image) Close() error {
	if i.closer != nil {
		return i.closer.Close()
	}
	return nil
}
