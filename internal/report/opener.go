package report

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/rteval-parser/internal/core"
	"github.com/JonMunkholm/rteval-parser/internal/queue"
	"github.com/JonMunkholm/rteval-parser/internal/registration"
)

// Opener loads the report file named by a queue job. Relative filenames
// are resolved against Dir. Files ending in .bz2 or .gz are decompressed.
type Opener struct {
	Dir         string
	MaxFileSize int64
}

// Open reads and decodes the report of job. Files over MaxFileSize, after
// decompression, are malformed input.
func (o *Opener) Open(_ context.Context, job *queue.Job) (registration.Source, error) {
	if job.Filename == "" {
		return nil, core.Malformed("job %d has no report file", job.SubmID)
	}
	path := job.Filename
	if !filepath.IsAbs(path) {
		path = filepath.Join(o.Dir, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	switch {
	case strings.HasSuffix(path, ".bz2"):
		r = bzip2.NewReader(r)
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, core.Malformed("report %s: %v", filepath.Base(path), err)
		}
		defer gz.Close()
		r = gz
	}

	if o.MaxFileSize > 0 {
		r = &limitedReader{r: io.LimitReader(r, o.MaxFileSize+1), max: o.MaxFileSize}
	}
	return Decode(r)
}

// limitedReader fails once more than max bytes were read, so an oversized
// report is rejected rather than silently truncated.
type limitedReader struct {
	r   io.Reader
	n   int64
	max int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.max {
		return n, fmt.Errorf("%w: report exceeds %d bytes", core.ErrMalformedInput, l.max)
	}
	return n, err
}
