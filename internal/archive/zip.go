package archive

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

type zipFormat struct{}

// Zip returns the ZIP format. It is the default archive format.
func Zip() Format { return zipFormat{} }

func (zipFormat) Name() string        { return "zip" }
func (zipFormat) Extension() string   { return ".zip" }
func (zipFormat) ContentType() string { return "application/zip" }

func (zipFormat) NewWriter() Writer {
	zw := &zipWriter{}
	zw.zw = zip.NewWriter(&zw.buf)
	return zw
}

type zipWriter struct {
	buf  bytes.Buffer
	zw   *zip.Writer
	done bool
}

func (w *zipWriter) AddDirectory(p string) error {
	if w.done {
		return errSerialized
	}
	_, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:     dirName(p),
		Method:   zip.Store,
		Modified: time.Now(),
	})
	return err
}

func (w *zipWriter) AddFile(p string, data []byte) error {
	if w.done {
		return errSerialized
	}
	fw, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:     p,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return err
	}
	_, err = fw.Write(data)
	return err
}

func (w *zipWriter) Serialize() ([]byte, error) {
	if w.done {
		return nil, errSerialized
	}
	w.done = true
	if err := w.zw.Close(); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

func (zipFormat) Parse(data []byte) ([]Entry, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	entries := make([]Entry, 0, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			entries = append(entries, Entry{Path: f.Name, IsDirectory: true})
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrCorrupt, f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrCorrupt, f.Name, err)
		}
		entries = append(entries, Entry{Path: f.Name, Data: body})
	}
	return entries, nil
}
