package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"replaysim/engine"
)

// JSONLines writes one Record per line.
type JSONLines struct {
	w      *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
}

// NewJSONLines wraps w. Close flushes and, if w is an io.Closer, closes it.
func NewJSONLines(w io.Writer) *JSONLines {
	bw := bufio.NewWriter(w)
	s := &JSONLines{w: bw, enc: json.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// CreateJSONLines truncates or creates path.
func CreateJSONLines(path string) (*JSONLines, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return NewJSONLines(f), nil
}

func (s *JSONLines) Write(_ context.Context, ts int64, batch []engine.Notification) error {
	for _, n := range batch {
		if err := s.enc.Encode(NewRecord(ts, n)); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	return nil
}

func (s *JSONLines) Close() error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
