package recording

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// TrajectoryFrame is one tick's captured pose, the unit spec.md §4.8's
// trajectory mode accumulates at loop rate.
type TrajectoryFrame struct {
	Translation   [3]float64
	Pose          [][3]float64
	BodyNames     []string
	BodyPositions [][3]float64
	Timestamp     string
}

// TrajectoryDocument is the full capture: every frame from start to stop,
// plus the rate they were captured at so a consumer can replay them at the
// right speed. No repo in the example pack does structured binary
// serialization of application data (no gob, msgpack or protobuf import
// turned up anywhere in a complete example repo's source), so this follows
// the project's own established precedent from the context cache's flat
// binary format and reaches for the standard library's encoding/gob rather
// than inventing a bespoke layout or importing an unproven dependency.
type TrajectoryDocument struct {
	FrameRate int
	Frames    []TrajectoryFrame
}

// encodeTrajectory serializes a document to the bytes stored as
// trajectory.bin inside a recording archive.
func encodeTrajectory(doc TrajectoryDocument) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("recording: gob encode trajectory: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeTrajectory is the inverse of encodeTrajectory, used by tests to
// confirm a round trip.
func decodeTrajectory(data []byte) (TrajectoryDocument, error) {
	var doc TrajectoryDocument
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return TrajectoryDocument{}, fmt.Errorf("recording: gob decode trajectory: %w", err)
	}
	return doc, nil
}
