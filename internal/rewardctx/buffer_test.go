package rewardctx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motivo-run/motivo-server/internal/collab"
)

func writeBufferFixture(t *testing.T, bf bufferFile) string {
	t.Helper()
	data, err := json.Marshal(bf)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "buffer.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadBufferRejectsEmpty(t *testing.T) {
	path := writeBufferFixture(t, bufferFile{})
	_, err := LoadBuffer(path)
	require.Error(t, err)
}

func TestLoadBufferRejectsMismatchedLengths(t *testing.T) {
	path := writeBufferFixture(t, bufferFile{
		Snapshots:    []collab.Snapshot{{}, {}},
		Observations: [][]float32{{1}},
	})
	_, err := LoadBuffer(path)
	require.Error(t, err)
}

func TestBufferSampleStaysInBounds(t *testing.T) {
	b := testBuffer(t, 25)
	idx := b.Sample(100)
	assert.Len(t, idx, 100)
	for _, i := range idx {
		assert.GreaterOrEqual(t, i, 0)
		assert.Less(t, i, 25)
	}
}

func TestBufferAtReturnsMatchingPair(t *testing.T) {
	b := testBuffer(t, 5)
	snap, obs := b.At(3)
	assert.Equal(t, []float32{3}, obs)
	assert.NotNil(t, snap.BodyPos)
}
