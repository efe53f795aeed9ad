package model

import (
	"fmt"
	"math/rand"

	"github.com/sbl8/histonet/core"
)

const (
	DefaultNumBins    = 120
	DefaultNumClasses = 3
)

// Output is the result of one forward pass.
type Output struct {
	Logits    *core.Tensor // (batch, classes), unnormalized
	Attention *core.Tensor // (batch, bins), nil for models without attention
}

// Classifier maps a batch of histograms to class logits.
type Classifier interface {
	Architecture() string
	NumBins() int
	NumClasses() int
	Forward(x *core.Tensor) (*Output, error)
	Params() []core.NamedTensor
}

func checkDims(numBins, numClasses int) error {
	if numBins <= 0 || numClasses <= 0 {
		return fmt.Errorf("num_bins (%d) and num_classes (%d) must be positive", numBins, numClasses)
	}
	return nil
}

// HistogramClassifier is a three-layer perceptron:
// bins -> 64 -> ReLU -> 32 -> ReLU -> classes.
type HistogramClassifier struct {
	bins, classes int
	Network       *Sequential
}

// NewHistogramClassifier builds the fully-connected classifier.
func NewHistogramClassifier(numBins, numClasses int, rng *rand.Rand) (*HistogramClassifier, error) {
	if err := checkDims(numBins, numClasses); err != nil {
		return nil, err
	}
	fc1, err := NewLinear(numBins, 64, rng)
	if err != nil {
		return nil, err
	}
	fc2, err := NewLinear(64, 32, rng)
	if err != nil {
		return nil, err
	}
	out, err := NewLinear(32, numClasses, rng)
	if err != nil {
		return nil, err
	}
	return &HistogramClassifier{
		bins:    numBins,
		classes: numClasses,
		Network: NewSequential(fc1, ReLU(), fc2, ReLU(), out),
	}, nil
}

func (m *HistogramClassifier) Architecture() string { return ArchMLP }
func (m *HistogramClassifier) NumBins() int         { return m.bins }
func (m *HistogramClassifier) NumClasses() int      { return m.classes }

// Forward returns raw class scores; no activation is applied to the output.
func (m *HistogramClassifier) Forward(x *core.Tensor) (*Output, error) {
	in, err := batchInput(x, m.bins)
	if err != nil {
		return nil, err
	}
	logits, err := m.Network.Forward(in)
	if err != nil {
		return nil, err
	}
	return &Output{Logits: logits}, nil
}

func (m *HistogramClassifier) Params() []core.NamedTensor {
	return prefixed("network", m.Network.Params())
}
