package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/histonet/core"
)

func TestDecode(t *testing.T) {
	t.Parallel()
	logits, err := core.FromSlice([]float32{
		0, 0, 5,
		2, 1, 0,
	}, 2, 3)
	require.NoError(t, err)

	preds, err := Decode(&Output{Logits: logits}, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, preds, 2)

	assert.Equal(t, 2, preds[0].Class)
	assert.Equal(t, "c", preds[0].Label)
	assert.Equal(t, 0, preds[1].Class)
	assert.Equal(t, "a", preds[1].Label)
	for _, p := range preds {
		var sum float32
		for _, v := range p.Probabilities {
			sum += v
		}
		assert.InDelta(t, 1, sum, 1e-5)
		assert.Equal(t, p.Probabilities[p.Class], p.Confidence)
		assert.Nil(t, p.Attention)
	}
	assert.Equal(t, []float32{2, 1, 0}, preds[1].Logits)

	_, err = Decode(&Output{Logits: logits}, []string{"a"})
	assert.Error(t, err)
	_, err = Decode(nil, nil)
	assert.ErrorIs(t, err, core.ErrShapeMismatch)
}

func TestPredictAttention(t *testing.T) {
	t.Parallel()
	c, err := New(ArchAttention, 12, 2, 3)
	require.NoError(t, err)
	preds, err := Predict(c, core.MustTensor(3, 12), nil)
	require.NoError(t, err)
	require.Len(t, preds, 3)
	for _, p := range preds {
		assert.Empty(t, p.Label)
		assert.Len(t, p.Attention, 12)
		assert.Len(t, p.Probabilities, 2)
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	c, err := New(ArchCNN, DefaultNumBins, DefaultNumClasses, 0)
	require.NoError(t, err)
	s := Describe(c)

	assert.Equal(t, ArchCNN, s.Architecture)
	assert.Equal(t, 960, s.Features)
	total := 0
	for _, p := range s.Params {
		total += p.Count
	}
	assert.Equal(t, total, s.TotalParams)
	// conv1 16*1*5+16, conv2 32*16*5+32, conv3 64*32*5+64, fc1 128*960+128, fc2 3*128+3
	assert.Equal(t, 96+2592+10304+123008+387, s.TotalParams)
	assert.Contains(t, s.String(), "fc1.weight")
}
