package calllog

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// FileRecorder appends entries as JSON lines.
type FileRecorder struct {
	log    zerolog.Logger
	closer io.Closer
}

func NewFileRecorder(w io.Writer) *FileRecorder {
	return &FileRecorder{log: zerolog.New(w).With().Timestamp().Logger()}
}

// OpenFile appends to path, creating it if needed.
func OpenFile(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	r := NewFileRecorder(f)
	r.closer = f
	return r, nil
}

func (r *FileRecorder) Record(_ context.Context, e Entry) error {
	ev := r.log.Info()
	if !e.Success {
		ev = r.log.Warn()
	}
	ev.Str("target", e.Target).
		Str("command", e.Command).
		Str("label", e.Label).
		Str("direction", string(e.Direction)).
		Bool("success", e.Success).
		Str("payload", e.Payload).
		Msg("vesta call")
	return nil
}

func (r *FileRecorder) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
