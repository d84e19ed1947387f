package metrics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

type csvOut struct {
	f  *os.File
	w  *csv.Writer
	mu sync.Mutex
}

// Opens path for appending, writing hdr if the file is new. An empty path
// leaves the writer disabled.
func (c *csvOut) open(path string, hdr []string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "metrics: create dir for %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "metrics: open %s", path)
	}
	w := csv.NewWriter(f)
	if st, _ := f.Stat(); st != nil && st.Size() == 0 {
		_ = w.Write(hdr)
		w.Flush()
	}

	c.mu.Lock()
	c.f, c.w = f, w
	c.mu.Unlock()
	return nil
}

func (c *csvOut) write(row []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return
	}
	_ = c.w.Write(row)
	c.w.Flush()
}

func (c *csvOut) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w != nil {
		c.w.Flush()
	}
	var err error
	if c.f != nil {
		err = c.f.Close()
	}
	c.f, c.w = nil, nil
	return err
}
