// Package sheetstore keeps uploaded attendance workbooks on disk, one xlsx
// file per sheet key, and converts them to and from attendance grids.
package sheetstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/phillip-england/attendsuite/internal/attendance"
	"github.com/xuri/excelize/v2"
)

var (
	ErrInvalidKey        = errors.New("invalid sheet key")
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrInvalidWorkbook   = errors.New("invalid workbook")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidKey reports whether key can name a stored sheet.
func ValidKey(key string) error {
	if !keyPattern.MatchString(key) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// FileStore implements attendance.Store over a directory of xlsx files.
type FileStore struct {
	Dir string
}

var _ attendance.Store = (*FileStore)(nil)

func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sheet directory %s: %w", dir, err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.Dir, key+".xlsx")
}

func (s *FileStore) existingPath(key string) (string, error) {
	if err := ValidKey(key); err != nil {
		return "", err
	}
	p := s.path(key)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", attendance.ErrSheetNotFound, key)
		}
		return "", err
	}
	return p, nil
}

// Load reads the first worksheet of the stored workbook into a grid.
func (s *FileStore) Load(ctx context.Context, key string) (*attendance.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.existingPath(key)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("open %s: no worksheet found", p)
	}
	rows, err := decodeSheet(f, sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return attendance.NewGrid(rows), nil
}

// Persist replays the grid's edits onto the stored workbook and atomically
// replaces the file. Cells the grid did not write keep their stored value
// and formatting.
func (s *FileStore) Persist(ctx context.Context, key string, g *attendance.Grid) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.existingPath(key)
	if err != nil {
		return err
	}
	f, err := excelize.OpenFile(p)
	if err != nil {
		return fmt.Errorf("open %s: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for _, edit := range g.Edits() {
		if err := writeCell(f, sheet, edit.Address, edit.Cell); err != nil {
			return fmt.Errorf("write %s: %w", edit.Address, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", p, err)
	}
	return s.replace(key, buf.Bytes())
}

// Import stores an uploaded workbook under key, converting legacy .xls and
// .csv files to xlsx. filename is only used for its extension.
func (s *FileStore) Import(ctx context.Context, key, filename string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidKey(key); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: uploaded file is empty", ErrInvalidWorkbook)
	}

	var (
		out []byte
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm":
		out, err = checkXLSX(data)
	case ".xls":
		out, err = convertXLS(data)
	case ".csv":
		out, err = convertCSV(data)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return err
	}
	return s.replace(key, out)
}

// Open returns the stored workbook bytes.
func (s *FileStore) Open(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.existingPath(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// List returns the stored sheet keys in sorted order.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.Dir, err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".xlsx") {
			continue
		}
		key := strings.TrimSuffix(name, ".xlsx")
		if ValidKey(key) != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) replace(key string, data []byte) error {
	tmp, err := os.CreateTemp(s.Dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary sheet: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temporary sheet: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temporary sheet: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("install sheet %s: %w", key, err)
	}
	return nil
}

func checkXLSX(data []byte) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	defer func() { _ = f.Close() }()
	if f.GetSheetName(0) == "" {
		return nil, fmt.Errorf("%w: no worksheet found", ErrInvalidWorkbook)
	}
	return data, nil
}
