package backend

import (
	"context"
	"fmt"
	"os"
)

// RawEncoder is a stand-in collab.MediaEncoder that passes RGB frames
// through unchanged; the width and height arguments are ignored. It satisfies the
// queue-push contract C6 depends on without performing real video
// compression, which spec.md §1 places out of scope.
type RawEncoder struct{}

func (RawEncoder) EncodeFrame(ctx context.Context, rgb []byte, width, height int) ([]byte, error) {
	return rgb, nil
}

// RawVideoWriter is a stand-in collab.VideoWriter that appends every pushed
// frame to a flat file rather than producing a real MP4 container, which
// spec.md §1 also places out of scope. The combined-recording package step
// still runs against a real file on disk.
type RawVideoWriter struct {
	f      *os.File
	width  int
	height int
}

func (w *RawVideoWriter) Open(ctx context.Context, path string, width, height, fps int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("backend: open video output: %w", err)
	}
	w.f, w.width, w.height = f, width, height
	return nil
}

func (w *RawVideoWriter) WriteFrame(ctx context.Context, rgb []byte) error {
	if w.f == nil {
		return fmt.Errorf("backend: write frame before open")
	}
	_, err := w.f.Write(rgb)
	return err
}

func (w *RawVideoWriter) Close(ctx context.Context) error {
	if w.f == nil {
		return nil
	}
	return w.f.Close()
}
