package model

import (
	"fmt"
	"math/rand"

	"github.com/sbl8/histonet/core"
	"github.com/sbl8/histonet/kernels"
)

// Convolution geometry shared by the convolutional classifiers.
const (
	convKernel  = 5
	convStride  = 1
	convPadding = 2
	poolWindow  = 2
)

var cnnChannels = []int{1, 16, 32, 64}

// HistogramCNN stacks three conv(k5, same)/ReLU/avg-pool(2) stages with
// 16, 32 and 64 channels, flattens, and classifies with two dense layers.
type HistogramCNN struct {
	bins, classes int
	features      int

	Conv1, Conv2, Conv3 *Conv1D
	Pool                AvgPool1D
	FC1, FC2            *Linear
}

// PooledFeatureCount returns the flattened feature count after the
// convolution stack, floor(numBins / 2^stages) * channels when every
// convolution preserves length.
func PooledFeatureCount(numBins, stages, channels int) int {
	length := numBins
	for i := 0; i < stages; i++ {
		length = kernels.ConvOutLen(length, convKernel, convStride, convPadding)
		length = kernels.PoolOutLen(length, poolWindow, poolWindow)
	}
	return length * channels
}

// NewHistogramCNN builds the convolutional classifier. num_bins must be at
// least 8 so that three halvings leave at least one position.
func NewHistogramCNN(numBins, numClasses int, rng *rand.Rand) (*HistogramCNN, error) {
	if err := checkDims(numBins, numClasses); err != nil {
		return nil, err
	}
	stages := len(cnnChannels) - 1
	features := PooledFeatureCount(numBins, stages, cnnChannels[stages])
	if features == 0 {
		return nil, fmt.Errorf("cnn: num_bins %d leaves no features after %d pooling stages (need >= %d)",
			numBins, stages, 1<<stages)
	}

	m := &HistogramCNN{
		bins:     numBins,
		classes:  numClasses,
		features: features,
		Pool:     AvgPool1D{Kernel: poolWindow, Stride: poolWindow},
	}
	convs := make([]*Conv1D, stages)
	for i := range convs {
		c, err := NewConv1D(cnnChannels[i], cnnChannels[i+1], convKernel, convStride, convPadding, rng)
		if err != nil {
			return nil, err
		}
		convs[i] = c
	}
	m.Conv1, m.Conv2, m.Conv3 = convs[0], convs[1], convs[2]

	traced, err := m.TracedFeatureCount()
	if err != nil {
		return nil, fmt.Errorf("cnn: tracing conv stack: %w", err)
	}
	if traced != features {
		return nil, fmt.Errorf("cnn: traced feature count %d disagrees with computed %d", traced, features)
	}

	if m.FC1, err = NewLinear(features, 128, rng); err != nil {
		return nil, err
	}
	if m.FC2, err = NewLinear(128, numClasses, rng); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HistogramCNN) Architecture() string { return ArchCNN }
func (m *HistogramCNN) NumBins() int         { return m.bins }
func (m *HistogramCNN) NumClasses() int      { return m.classes }

// Features returns the flattened feature count feeding FC1.
func (m *HistogramCNN) Features() int { return m.features }

// TracedFeatureCount runs an all-zero (1, 1, bins) tensor through the
// convolution stack and returns the number of values it produces.
func (m *HistogramCNN) TracedFeatureCount() (int, error) {
	zeros := core.MustTensor(1, 1, m.bins)
	out, err := m.convStack(zeros)
	if err != nil {
		return 0, err
	}
	return out.Len(), nil
}

func (m *HistogramCNN) convStack(x *core.Tensor) (*core.Tensor, error) {
	var err error
	for _, c := range []*Conv1D{m.Conv1, m.Conv2, m.Conv3} {
		if x, err = c.Forward(x); err != nil {
			return nil, err
		}
		if x, err = ReLU().Forward(x); err != nil {
			return nil, err
		}
		if x, err = m.Pool.Forward(x); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// Forward returns (batch, classes) logits.
func (m *HistogramCNN) Forward(x *core.Tensor) (*Output, error) {
	in, err := batchInput(x, m.bins)
	if err != nil {
		return nil, err
	}
	in, err = in.Reshape(in.Shape[0], 1, m.bins)
	if err != nil {
		return nil, err
	}

	feats, err := m.convStack(in)
	if err != nil {
		return nil, err
	}
	flat, err := Flatten{}.Forward(feats)
	if err != nil {
		return nil, err
	}

	h, err := m.FC1.Forward(flat)
	if err != nil {
		return nil, err
	}
	if h, err = ReLU().Forward(h); err != nil {
		return nil, err
	}
	logits, err := m.FC2.Forward(h)
	if err != nil {
		return nil, err
	}
	return &Output{Logits: logits}, nil
}

func (m *HistogramCNN) Params() []core.NamedTensor {
	var out []core.NamedTensor
	out = append(out, prefixed("conv1", m.Conv1.Params())...)
	out = append(out, prefixed("conv2", m.Conv2.Params())...)
	out = append(out, prefixed("conv3", m.Conv3.Params())...)
	out = append(out, prefixed("fc1", m.FC1.Params())...)
	out = append(out, prefixed("fc2", m.FC2.Params())...)
	return out
}
