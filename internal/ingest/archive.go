package ingest

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractZip unpacks the regular files of the archive at zipPath into dir,
// flattening any directory structure. Files already present are left alone.
// It returns the number of files written.
func ExtractZip(zipPath, dir string) (int, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", zipPath, err)
	}
	defer zr.Close()

	written := 0
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(filepath.FromSlash(zf.Name))
		if name == "." || name == ".." || strings.HasPrefix(name, "._") {
			continue
		}
		dest := filepath.Join(dir, name)
		if _, err := os.Stat(dest); err == nil {
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return written, fmt.Errorf("open %s in %s: %w", zf.Name, zipPath, err)
		}
		_, err = writeFile(dest, io.LimitReader(rc, int64(zf.UncompressedSize64)))
		rc.Close()
		if err != nil {
			return written, fmt.Errorf("extract %s: %w", zf.Name, err)
		}
		written++
	}
	return written, nil
}
