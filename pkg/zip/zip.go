package zip

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// File is one entry of an archive.
type File struct {
	Name string
	Data []byte
}

// Archive packs files into a zip stamped with modified. Names must be
// relative, slash-separated and unique.
func Archive(files []File, modified time.Time) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		name := path.Clean(strings.ReplaceAll(f.Name, "\\", "/"))
		if name == "." || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "../") || name == ".." {
			return nil, fmt.Errorf("zip: invalid entry name %q", f.Name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("zip: duplicate entry %q", name)
		}
		seen[name] = struct{}{}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("zip: nothing to archive")
	}
	return buf.Bytes(), nil
}
