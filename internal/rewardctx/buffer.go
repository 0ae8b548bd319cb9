package rewardctx

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"github.com/motivo-run/motivo-server/internal/collab"
)

// Buffer is the Reward Buffer: an immutable table of physics snapshots and
// observations drawn from a reference distribution, loaded once at startup
// and sampled from by the Context Engine's batch-evaluation step
// (spec step 2). Grounded on original_source's buffer_data dict
// (next_qpos/next_qvel/action/next_observation parallel arrays).
type Buffer struct {
	snapshots    []collab.Snapshot
	observations [][]float32
}

// bufferFile is the on-disk shape a buffer is serialized as. JSON rather
// than a binary tensor format: no pack library loads numpy archives, and a
// self-describing format keeps the buffer human-inspectable for the fixture
// files tests load.
type bufferFile struct {
	Snapshots    []collab.Snapshot `json:"snapshots"`
	Observations [][]float32       `json:"observations"`
}

// LoadBuffer reads a Reward Buffer from path. The file must contain at least
// one sample; an empty buffer cannot serve batch sampling.
func LoadBuffer(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rewardctx: reading reward buffer: %w", err)
	}
	var bf bufferFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("rewardctx: parsing reward buffer: %w", err)
	}
	if len(bf.Snapshots) == 0 {
		return nil, fmt.Errorf("rewardctx: reward buffer %s is empty", path)
	}
	if len(bf.Observations) != len(bf.Snapshots) {
		return nil, fmt.Errorf("rewardctx: reward buffer %s has %d snapshots but %d observations", path, len(bf.Snapshots), len(bf.Observations))
	}
	return &Buffer{snapshots: bf.Snapshots, observations: bf.Observations}, nil
}

// Len returns the number of samples in the buffer.
func (b *Buffer) Len() int { return len(b.snapshots) }

// Sample draws n indices uniformly at random with replacement, matching
// original_source's np.random.randint(0, len(buffer), batch_size).
func (b *Buffer) Sample(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rand.Intn(len(b.snapshots))
	}
	return idx
}

// At returns the snapshot and observation for a sampled index.
func (b *Buffer) At(i int) (collab.Snapshot, []float32) {
	return b.snapshots[i], b.observations[i]
}
