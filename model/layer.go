// Package model defines the histogram classifiers and the layers they are built from.
//
// Every layer maps a core.Tensor to a new core.Tensor and exposes its learned
// parameters as named tensors. Parameter names follow a dotted path
// ("network.0.weight", "conv1.bias") so checkpoints can be matched to models
// by name and shape.
//
// Classifiers:
//   - HistogramClassifier: fully-connected bins -> 64 -> 32 -> classes
//   - HistogramCNN: three conv/ReLU/avg-pool stages followed by two dense layers
//   - HistogramClassifierWithAttention: two conv stages and attention pooling
//
// Models are immutable after construction (or after Load) and safe for
// concurrent Forward calls.
package model

import (
	"fmt"

	"github.com/sbl8/histonet/core"
)

// Layer transforms one tensor into another.
type Layer interface {
	Forward(x *core.Tensor) (*core.Tensor, error)
	Params() []core.NamedTensor
}

// prefixed namespaces parameter names under prefix.
func prefixed(prefix string, params []core.NamedTensor) []core.NamedTensor {
	out := make([]core.NamedTensor, len(params))
	for i, p := range params {
		out[i] = core.NamedTensor{Name: prefix + "." + p.Name, Tensor: p.Tensor}
	}
	return out
}

// Sequential chains layers, feeding each output to the next layer.
type Sequential struct {
	Layers []Layer
}

// NewSequential creates a layer chain.
func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{Layers: layers}
}

// Forward runs x through every layer in order.
func (s *Sequential) Forward(x *core.Tensor) (*core.Tensor, error) {
	var err error
	for i, l := range s.Layers {
		x, err = l.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return x, nil
}

// Params names parameters by layer index, so parameter-free layers leave gaps
// ("0.weight", "2.weight").
func (s *Sequential) Params() []core.NamedTensor {
	var out []core.NamedTensor
	for i, l := range s.Layers {
		out = append(out, prefixed(fmt.Sprint(i), l.Params())...)
	}
	return out
}

// Flatten collapses every dimension after the first.
type Flatten struct{}

func (Flatten) Forward(x *core.Tensor) (*core.Tensor, error) {
	return x.Reshape(x.Shape[0], x.Len()/x.Shape[0])
}

func (Flatten) Params() []core.NamedTensor { return nil }

// batchInput normalizes classifier input to a (batch, bins) view. It accepts
// a single histogram (bins), a batch (batch, bins) or a single-channel batch
// (batch, 1, bins).
func batchInput(x *core.Tensor, bins int) (*core.Tensor, error) {
	if x == nil {
		return nil, fmt.Errorf("%w: nil input", core.ErrShapeMismatch)
	}
	switch x.Rank() {
	case 1:
		if err := x.ExpectShape(bins); err != nil {
			return nil, err
		}
		return x.Reshape(1, bins)
	case 2:
		if err := x.ExpectShape(-1, bins); err != nil {
			return nil, err
		}
		return x, nil
	case 3:
		if err := x.ExpectShape(-1, 1, bins); err != nil {
			return nil, err
		}
		return x.Reshape(x.Shape[0], bins)
	}
	return nil, fmt.Errorf("%w: histogram input of rank %d", core.ErrShapeMismatch, x.Rank())
}
