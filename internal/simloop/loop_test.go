package simloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/motivo-run/motivo-server/internal/collab"
	"github.com/motivo-run/motivo-server/internal/mocks"
)

func TestRunSubstitutesZeroActionOnPolicyActFailure(t *testing.T) {
	env := mocks.NewEnvironment(t)
	policy := mocks.NewPolicy(t)

	var loopRef *Loop
	env.On("Reset", mock.Anything).Return(collab.Snapshot{}, []float32{0}, nil).Once()
	policy.On("Act", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("policy offline")).Once()
	policy.On("ActionDim").Return(3).Once()
	policy.On("QualityScore", mock.Anything, mock.Anything, mock.Anything).Return(0.0, nil).Once()
	env.On("Step", mock.Anything, mock.MatchedBy(func(a collab.Action) bool {
		if len(a) != 3 {
			return false
		}
		for _, v := range a {
			if v != 0 {
				return false
			}
		}
		return true
	})).Run(func(mock.Arguments) {
		if loopRef != nil {
			loopRef.Stop()
		}
	}).Return(collab.Snapshot{}, []float32{0}, false, nil).Once()
	env.On("Render", mock.Anything).Return(nil, 0, 0, errors.New("no renderer in this test")).Once()

	source := func() ActiveContext { return ActiveContext{Vector: collab.Context{0, 1, 0}} }
	loopRef = New(env, policy, source, nil, nil, nil, 1000)

	done := make(chan error, 1)
	go func() { done <- loopRef.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Stop")
	}
}

func TestRunReturnsErrorWhenStepFails(t *testing.T) {
	env := mocks.NewEnvironment(t)
	policy := mocks.NewPolicy(t)

	env.On("Reset", mock.Anything).Return(collab.Snapshot{}, []float32{0}, nil).Once()
	policy.On("Act", mock.Anything, mock.Anything, mock.Anything).Return(collab.Action{0}, nil).Once()
	policy.On("QualityScore", mock.Anything, mock.Anything, mock.Anything).Return(50.0, nil).Once()
	env.On("Step", mock.Anything, mock.Anything).Return(collab.Snapshot{}, nil, false, errors.New("simulator crashed")).Once()

	source := func() ActiveContext { return ActiveContext{Vector: collab.Context{0, 1, 0}} }
	l := New(env, policy, source, nil, nil, nil, 1000)

	err := l.Run(context.Background())
	require.Error(t, err)
}

func TestRunResetsEnvironmentOnTermination(t *testing.T) {
	env := mocks.NewEnvironment(t)
	policy := mocks.NewPolicy(t)

	var loopRef *Loop
	env.On("Reset", mock.Anything).Return(collab.Snapshot{}, []float32{0}, nil).Twice()
	policy.On("Act", mock.Anything, mock.Anything, mock.Anything).Return(collab.Action{0}, nil).Once()
	policy.On("QualityScore", mock.Anything, mock.Anything, mock.Anything).Return(50.0, nil).Once()
	env.On("Step", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		if loopRef != nil {
			loopRef.Stop()
		}
	}).Return(collab.Snapshot{}, []float32{0}, true, nil).Once()
	env.On("Render", mock.Anything).Return(nil, 0, 0, errors.New("no renderer in this test")).Once()

	source := func() ActiveContext { return ActiveContext{Vector: collab.Context{0, 1, 0}} }
	loopRef = New(env, policy, source, nil, nil, nil, 1000)

	done := make(chan error, 1)
	go func() { done <- loopRef.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Stop")
	}
}

func TestOverlayQualityBarFillsProportionalToQuality(t *testing.T) {
	const width, height = 10, 4
	rgb := make([]byte, width*height*3)
	overlayQualityBar(rgb, width, height, 50)

	filled := rgb[0*3 : 0*3+3]
	require.Equal(t, []byte{0, 220, 0}, filled)

	empty := rgb[9*3 : 9*3+3]
	require.Equal(t, []byte{60, 60, 60}, empty)
}

func TestOverlayQualityBarClampsOutOfRangeQuality(t *testing.T) {
	const width, height = 4, 4
	rgb := make([]byte, width*height*3)
	overlayQualityBar(rgb, width, height, 500)
	for x := 0; x < width; x++ {
		require.Equal(t, []byte{0, 220, 0}, rgb[x*3:x*3+3])
	}
}

func TestOverlayQualityBarIgnoresUndersizedBuffer(t *testing.T) {
	rgb := make([]byte, 3)
	require.NotPanics(t, func() { overlayQualityBar(rgb, 10, 10, 50) })
}
