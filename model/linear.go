package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sbl8/histonet/core"
	"github.com/sbl8/histonet/kernels"
)

// Linear is a fully-connected layer y = x·Wᵀ + b applied over the last dimension.
type Linear struct {
	In, Out int
	Weight  *core.Tensor // (Out, In)
	Bias    *core.Tensor // (Out)
}

// NewLinear creates a dense layer initialised from rng.
func NewLinear(in, out int, rng *rand.Rand) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("linear %dx%d: dimensions must be positive", in, out)
	}
	l := &Linear{
		In:     in,
		Out:    out,
		Weight: core.MustTensor(out, in),
		Bias:   core.MustTensor(out),
	}
	bound := fanInBound(in)
	uniform(l.Weight, bound, rng)
	uniform(l.Bias, bound, rng)
	return l, nil
}

// Forward maps (..., In) to (..., Out).
func (l *Linear) Forward(x *core.Tensor) (*core.Tensor, error) {
	if x.Dim(-1) != l.In {
		return nil, fmt.Errorf("linear %dx%d: %w: input %v", l.In, l.Out, core.ErrShapeMismatch, x.Shape)
	}
	shape := append([]int(nil), x.Shape...)
	shape[len(shape)-1] = l.Out
	y := core.MustTensor(shape...)

	rows := x.Len() / l.In
	kernels.Linear(x.Data, rows, l.In, l.Weight.Data, l.Out, l.Bias.Data, y.Data)
	return y, nil
}

func (l *Linear) Params() []core.NamedTensor {
	return []core.NamedTensor{
		{Name: "weight", Tensor: l.Weight},
		{Name: "bias", Tensor: l.Bias},
	}
}

// fanInBound is the default uniform bound 1/sqrt(fan_in) for weights and biases.
func fanInBound(fanIn int) float64 {
	return 1 / math.Sqrt(float64(fanIn))
}

// uniform fills t with values drawn from U(-bound, bound).
func uniform(t *core.Tensor, bound float64, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}

// NewRand returns the deterministic generator used to initialise models.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
