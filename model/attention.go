package model

import (
	"fmt"
	"math/rand"

	"github.com/sbl8/histonet/core"
	"github.com/sbl8/histonet/kernels"
)

// AttentionPooling reduces a sequence of bins to a weighted sum. A learned
// linear map scores every bin, the scores are softmax-normalised across bins,
// and the bins are summed with those weights.
type AttentionPooling struct {
	InputDim int
	Scorer   *Linear // InputDim -> 1
}

// NewAttentionPooling creates a pooling block for bins carrying inputDim features.
func NewAttentionPooling(inputDim int, rng *rand.Rand) (*AttentionPooling, error) {
	scorer, err := NewLinear(inputDim, 1, rng)
	if err != nil {
		return nil, fmt.Errorf("attention pooling: %w", err)
	}
	return &AttentionPooling{InputDim: inputDim, Scorer: scorer}, nil
}

// Pool accepts (batch, bins) when InputDim is 1, or (batch, bins, InputDim).
// It returns the pooled values, (batch) for 2-D input and (batch, InputDim)
// otherwise, together with the (batch, bins) attention weights. Each weight
// row is non-negative and sums to 1.
func (a *AttentionPooling) Pool(x *core.Tensor) (pooled, weights *core.Tensor, err error) {
	var feats *core.Tensor
	switch x.Rank() {
	case 2:
		if a.InputDim != 1 {
			return nil, nil, fmt.Errorf("attention pooling: %w: 2-D input needs input dim 1, have %d",
				core.ErrShapeMismatch, a.InputDim)
		}
		feats, err = x.Reshape(x.Shape[0], x.Shape[1], 1)
	case 3:
		err = x.ExpectShape(-1, -1, a.InputDim)
		feats = x
	default:
		err = fmt.Errorf("%w: input %v", core.ErrShapeMismatch, x.Shape)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("attention pooling: %w", err)
	}

	batch, bins := feats.Shape[0], feats.Shape[1]
	scores, err := a.Scorer.Forward(feats)
	if err != nil {
		return nil, nil, fmt.Errorf("attention pooling: %w", err)
	}
	weights, err = scores.Reshape(batch, bins)
	if err != nil {
		return nil, nil, err
	}
	kernels.SoftmaxRows(weights.Data, batch, bins)

	if x.Rank() == 2 {
		pooled = core.MustTensor(batch)
	} else {
		pooled = core.MustTensor(batch, a.InputDim)
	}
	for n := 0; n < batch; n++ {
		kernels.WeightedSum(weights.Row(n), feats.Row(n), bins, a.InputDim, pooled.Row(n))
	}
	return pooled, weights, nil
}

func (a *AttentionPooling) Params() []core.NamedTensor {
	return prefixed("attention_weights", a.Scorer.Params())
}
