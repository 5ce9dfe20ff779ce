package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// tarFormat is a tar stream wrapped in a compressor.
type tarFormat struct {
	name        string
	ext         string
	contentType string
	compress    func(io.Writer) (io.WriteCloser, error)
	decompress  func(io.Reader) (io.Reader, func(), error)
}

// TarGz returns the gzip-compressed tar format.
func TarGz() Format {
	return tarFormat{
		name:        "tar.gz",
		ext:         ".tar.gz",
		contentType: "application/gzip",
		compress: func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		},
		decompress: func(r io.Reader) (io.Reader, func(), error) {
			gz, err := gzip.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return gz, func() { gz.Close() }, nil
		},
	}
}

// TarZst returns the zstd-compressed tar format.
func TarZst() Format {
	return tarFormat{
		name:        "tar.zst",
		ext:         ".tar.zst",
		contentType: "application/zstd",
		compress: func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		},
		decompress: func(r io.Reader) (io.Reader, func(), error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return dec, dec.Close, nil
		},
	}
}

func (f tarFormat) Name() string        { return f.name }
func (f tarFormat) Extension() string   { return f.ext }
func (f tarFormat) ContentType() string { return f.contentType }

func (f tarFormat) NewWriter() Writer {
	w := &tarWriter{}
	cw, err := f.compress(&w.buf)
	if err != nil {
		w.err = err
		return w
	}
	w.cw = cw
	w.tw = tar.NewWriter(cw)
	return w
}

type tarWriter struct {
	buf  bytes.Buffer
	cw   io.WriteCloser
	tw   *tar.Writer
	err  error
	done bool
}

func (w *tarWriter) check() error {
	if w.err != nil {
		return w.err
	}
	if w.done {
		return errSerialized
	}
	return nil
}

func (w *tarWriter) AddDirectory(p string) error {
	if err := w.check(); err != nil {
		return err
	}
	return w.tw.WriteHeader(&tar.Header{
		Name:     dirName(p),
		Typeflag: tar.TypeDir,
		Mode:     0o755,
		ModTime:  time.Now(),
	})
}

func (w *tarWriter) AddFile(p string, data []byte) error {
	if err := w.check(); err != nil {
		return err
	}
	if err := w.tw.WriteHeader(&tar.Header{
		Name:     p,
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  time.Now(),
	}); err != nil {
		return err
	}
	_, err := w.tw.Write(data)
	return err
}

func (w *tarWriter) Serialize() ([]byte, error) {
	if err := w.check(); err != nil {
		return nil, err
	}
	w.done = true
	if err := w.tw.Close(); err != nil {
		return nil, err
	}
	if err := w.cw.Close(); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// Parse reads regular files and directories. Links and special files are
// skipped.
func (f tarFormat) Parse(data []byte) ([]Entry, error) {
	r, closeFn, err := f.decompress(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer closeFn()

	var entries []Entry
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			entries = append(entries, Entry{Path: hdr.Name, IsDirectory: true})
		case tar.TypeReg:
			body, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("%w: read %s: %v", ErrCorrupt, hdr.Name, err)
			}
			entries = append(entries, Entry{Path: hdr.Name, Data: body})
		}
	}
	return entries, nil
}
