package bdb

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// csvSource reads one CSV file, optionally gzip-compressed, and resolves its
// header against a column table.
type csvSource struct {
	path string
	file *os.File
	gz   *gzip.Reader
	r    *csv.Reader
	pos  map[string]int
}

// resolveSource returns the path of name in dir, falling back to a .gz
// sibling. ok is false when neither exists.
func resolveSource(dir, name string) (path string, ok bool) {
	for _, candidate := range []string{name, name + ".gz"} {
		p := filepath.Join(dir, candidate)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return filepath.Join(dir, name), false
}

func openCSV(path string, cols []column) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	src := &csvSource{path: path, file: f}
	var rd io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("gzip header: %w", err)
		}
		src.gz = gz
		rd = gz
	}

	src.r = csv.NewReader(rd)
	src.r.ReuseRecord = true
	src.r.FieldsPerRecord = -1

	header, err := src.r.Read()
	if err != nil {
		_ = src.Close()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	byName := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		byName[strings.TrimSpace(h)] = i
	}

	src.pos = make(map[string]int, len(cols))
	var missing []string
	for _, c := range cols {
		if i, ok := byName[c.source]; ok {
			src.pos[c.canonical] = i
			continue
		}
		src.pos[c.canonical] = -1
		if c.required {
			missing = append(missing, c.source)
		}
	}
	if len(missing) > 0 {
		_ = src.Close()
		return nil, fmt.Errorf("missing required columns %s", strings.Join(missing, ", "))
	}
	return src, nil
}

// next returns the next record. The slice is reused by the following call.
func (s *csvSource) next() ([]string, error) {
	return s.r.Read()
}

// index returns the record position of a canonical column, or -1.
func (s *csvSource) index(canonical string) int {
	i, ok := s.pos[canonical]
	if !ok {
		return -1
	}
	return i
}

// get returns a canonical column of rec, or "" when it is absent.
func (s *csvSource) get(rec []string, canonical string) string {
	return field(rec, s.index(canonical))
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func (s *csvSource) Close() error {
	var err error
	if s.gz != nil {
		err = s.gz.Close()
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
