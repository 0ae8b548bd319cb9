package recording

import "errors"

// ErrRecordingConflict is returned by Start{Trajectory,Combined} when the
// other mode is already active — spec.md §4.8's strict mutual exclusion
// between trajectory-zip and combined-package recording.
var ErrRecordingConflict = errors.New("recording: the other recording mode is already active")

// ErrAlreadyRecording is returned when the same mode that's already active
// is started again.
var ErrAlreadyRecording = errors.New("recording: this recording mode is already active")

// ErrNoActiveRecording is returned by Stop when nothing is active to stop.
var ErrNoActiveRecording = errors.New("recording: no recording is active")
