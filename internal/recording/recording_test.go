package recording

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/motivo-run/motivo-server/internal/collab"
	"github.com/motivo-run/motivo-server/internal/mocks"
	"github.com/motivo-run/motivo-server/internal/pose"
)

func newTestRecorder(t *testing.T, newWriter func() collab.VideoWriter) *Recorder {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "jobs.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewRecorder(dir, 60, newWriter, store)
}

func solidFrame(w, h int) []byte {
	return make([]byte, w*h*3)
}

func zipEntryNames(t *testing.T, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = data
	}
	return out
}

func TestStartCombinedWhileTrajectoryActiveReturnsConflict(t *testing.T) {
	r := newTestRecorder(t, func() collab.VideoWriter { return mocks.NewVideoWriter(t) })

	require.NoError(t, r.StartTrajectory(context.Background()))
	err := r.StartCombined(context.Background(), 64, 64)
	assert.ErrorIs(t, err, ErrRecordingConflict)
}

func TestStartTrajectoryTwiceReturnsAlreadyRecording(t *testing.T) {
	r := newTestRecorder(t, func() collab.VideoWriter { return mocks.NewVideoWriter(t) })

	require.NoError(t, r.StartTrajectory(context.Background()))
	err := r.StartTrajectory(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRecording)
}

func TestStopTrajectoryWithNothingActiveReturnsError(t *testing.T) {
	r := newTestRecorder(t, func() collab.VideoWriter { return mocks.NewVideoWriter(t) })

	_, err := r.StopTrajectory(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveRecording)
}

func TestTrajectoryLifecycleProducesArchiveWithCapturedFrames(t *testing.T) {
	r := newTestRecorder(t, func() collab.VideoWriter { return mocks.NewVideoWriter(t) })
	ctx := context.Background()

	require.NoError(t, r.StartTrajectory(ctx))
	assert.True(t, r.Active())

	converted := pose.Converted{
		Translation: [3]float64{1, 2, 3},
		Pose:        [][3]float64{{0, 0, 0}},
		BodyNames:   []string{"Pelvis"},
	}
	for i := 0; i < 5; i++ {
		r.OnFrame(collab.Snapshot{}, converted, nil, 0, 0)
	}

	archivePath, err := r.StopTrajectory(ctx)
	require.NoError(t, err)
	assert.False(t, r.Active())

	entries := zipEntryNames(t, archivePath)
	require.Contains(t, entries, "trajectory.bin")

	doc, err := decodeTrajectory(entries["trajectory.bin"])
	require.NoError(t, err)
	assert.Equal(t, 60, doc.FrameRate)
	assert.Len(t, doc.Frames, 5)
}

func TestCombinedLifecyclePushesVideoFramesAndBundlesArchive(t *testing.T) {
	var writerPath string
	writer := func() collab.VideoWriter {
		m := &mocks.VideoWriter{}
		m.On("Open", mock.Anything, mock.Anything, 8, 8, 15).Run(func(args mock.Arguments) {
			writerPath = args.String(1)
			require.NoError(t, os.WriteFile(writerPath, []byte("fake-mp4-bytes"), 0o644))
		}).Return(nil).Once()
		m.On("WriteFrame", mock.Anything, mock.Anything).Return(nil)
		m.On("Close", mock.Anything).Return(nil).Once()
		return m
	}

	r := newTestRecorder(t, writer)
	ctx := context.Background()

	require.NoError(t, r.StartCombined(ctx, 8, 8))
	assert.True(t, r.Active())

	converted := pose.Converted{Translation: [3]float64{0, 0, 0}}
	// The combined-package video runs at F/4: one push every 4th tick, so
	// 12 ticks yields exactly 3 pushed video frames and 3 captured images.
	const ticks = 12
	for i := 0; i < ticks; i++ {
		r.OnFrame(collab.Snapshot{}, converted, solidFrame(8, 8), 8, 8)
	}

	archivePath, err := r.StopCombined(ctx)
	require.NoError(t, err)
	assert.False(t, r.Active())

	entries := zipEntryNames(t, archivePath)
	assert.Contains(t, entries, "trajectory.bin")
	assert.Equal(t, []byte("fake-mp4-bytes"), entries["video.mp4"])

	var sawFrameImage bool
	for name := range entries {
		if filepath.Dir(name) == "frames" {
			sawFrameImage = true
		}
	}
	assert.True(t, sawFrameImage, "expected at least one frames/ entry in the archive")

	doc, err := decodeTrajectory(entries["trajectory.bin"])
	require.NoError(t, err)
	assert.Len(t, doc.Frames, ticks)

	_, err = os.Stat(writerPath)
	assert.True(t, os.IsNotExist(err), "working video file should be removed after archiving")
}

func TestStopCombinedWithNothingActiveReturnsError(t *testing.T) {
	r := newTestRecorder(t, func() collab.VideoWriter { return mocks.NewVideoWriter(t) })
	_, err := r.StopCombined(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveRecording)
}

func TestAutoStopEndsARunningTrajectoryRecording(t *testing.T) {
	r := newTestRecorder(t, func() collab.VideoWriter { return mocks.NewVideoWriter(t) })
	require.NoError(t, r.StartTrajectory(context.Background()))

	r.mu.Lock()
	r.autoStop.Stop()
	r.mu.Unlock()

	r.onAutoStop()
	assert.False(t, r.Active())
}
