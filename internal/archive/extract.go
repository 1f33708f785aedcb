package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"modelserve/internal/common/fsutil"
)

// maxExtractBytes caps the total size of regular files unpacked from one archive.
var maxExtractBytes int64 = 32 << 30

// extractTarGz unpacks a gzip compressed tar into dst. Entries that would land
// outside dst, and links, are rejected.
func extractTarGz(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	var total int64
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}
		target := filepath.Join(dst, filepath.Clean(hdr.Name))
		if !fsutil.WithinDir(dst, target) {
			return fmt.Errorf("illegal path in archive: %s", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if hdr.Size < 0 || hdr.Size > maxExtractBytes-total {
				return fmt.Errorf("archive exceeds %d bytes at %s", maxExtractBytes, hdr.Name)
			}
			total += hdr.Size
			if err := writeFile(target, io.LimitReader(tr, hdr.Size), hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			return fmt.Errorf("links are not supported in archives: %s", hdr.Name)
		default:
			// pax headers and other metadata entries carry no content
		}
	}
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
