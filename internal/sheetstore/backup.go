package sheetstore

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"
)

// Backup writes every stored sheet into w as an xz-compressed tar archive
// and returns the number of sheets written.
func (s *FileStore) Backup(ctx context.Context, w io.Writer) (int, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	xw, err := xz.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("create xz writer: %w", err)
	}
	tw := tar.NewWriter(xw)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := addToArchive(tw, s.path(key), key+".xlsx"); err != nil {
			return 0, fmt.Errorf("archive %s: %w", key, err)
		}
	}

	if err := tw.Close(); err != nil {
		return 0, fmt.Errorf("close tar: %w", err)
	}
	if err := xw.Close(); err != nil {
		return 0, fmt.Errorf("close xz: %w", err)
	}
	return len(keys), nil
}

func addToArchive(tw *tar.Writer, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	header := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}
