package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"time"
)

// File is one on-disk file to add to an archive under Name.
type File struct {
	Name    string
	Path    string
	ModTime time.Time
}

// WriteFiles streams files into a zip archive written to w. Media is
// already compressed, so entries are stored rather than deflated.
func WriteFiles(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		if err := addFile(zw, f); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, f File) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("zip: open %s: %w", f.Name, err)
	}
	defer src.Close()
	header := &zip.FileHeader{Name: f.Name, Method: zip.Store, Modified: f.ModTime}
	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("zip: add %s: %w", f.Name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("zip: write %s: %w", f.Name, err)
	}
	return nil
}
