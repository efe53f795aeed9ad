package model

import (
	"math/rand"

	"github.com/sbl8/histonet/core"
	"github.com/sbl8/histonet/kernels"
)

const attentionChannels = 32

// HistogramClassifierWithAttention extracts per-bin features with two
// length-preserving convolutions (1->16->32 channels), pools the bins with
// attention and classifies the pooled 32-wide vector.
//
// The conv output is not averaged across channels before pooling. Each bin
// keeps its 32 channel values as a feature vector, so the pooled vector
// matches the 32-wide input of FC. ChannelMean exposes the averaged map.
type HistogramClassifierWithAttention struct {
	bins, classes int

	Conv1, Conv2     *Conv1D
	AttentionPooling *AttentionPooling
	FC               *Linear
}

// NewHistogramClassifierWithAttention builds the attention classifier.
func NewHistogramClassifierWithAttention(numBins, numClasses int, rng *rand.Rand) (*HistogramClassifierWithAttention, error) {
	if err := checkDims(numBins, numClasses); err != nil {
		return nil, err
	}
	m := &HistogramClassifierWithAttention{bins: numBins, classes: numClasses}

	var err error
	if m.Conv1, err = NewConv1D(1, 16, convKernel, convStride, convPadding, rng); err != nil {
		return nil, err
	}
	if m.Conv2, err = NewConv1D(16, attentionChannels, convKernel, convStride, convPadding, rng); err != nil {
		return nil, err
	}
	if m.AttentionPooling, err = NewAttentionPooling(attentionChannels, rng); err != nil {
		return nil, err
	}
	if m.FC, err = NewLinear(attentionChannels, numClasses, rng); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HistogramClassifierWithAttention) Architecture() string { return ArchAttention }
func (m *HistogramClassifierWithAttention) NumBins() int         { return m.bins }
func (m *HistogramClassifierWithAttention) NumClasses() int      { return m.classes }

// features returns the (batch, 32, bins) convolution feature map.
func (m *HistogramClassifierWithAttention) features(x *core.Tensor) (*core.Tensor, error) {
	in, err := batchInput(x, m.bins)
	if err != nil {
		return nil, err
	}
	in, err = in.Reshape(in.Shape[0], 1, m.bins)
	if err != nil {
		return nil, err
	}

	h, err := m.Conv1.Forward(in)
	if err != nil {
		return nil, err
	}
	if h, err = ReLU().Forward(h); err != nil {
		return nil, err
	}
	if h, err = m.Conv2.Forward(h); err != nil {
		return nil, err
	}
	return ReLU().Forward(h)
}

// Forward returns (batch, classes) logits and (batch, bins) attention weights.
func (m *HistogramClassifierWithAttention) Forward(x *core.Tensor) (*Output, error) {
	h, err := m.features(x)
	if err != nil {
		return nil, err
	}

	// (batch, channels, bins) -> (batch, bins, channels): one feature vector per bin.
	batch := h.Shape[0]
	perBin := core.MustTensor(batch, m.bins, attentionChannels)
	for n := 0; n < batch; n++ {
		kernels.Transpose2D(h.Row(n), attentionChannels, m.bins, perBin.Row(n))
	}

	pooled, weights, err := m.AttentionPooling.Pool(perBin)
	if err != nil {
		return nil, err
	}
	logits, err := m.FC.Forward(pooled)
	if err != nil {
		return nil, err
	}
	return &Output{Logits: logits, Attention: weights}, nil
}

// ChannelMean returns the (batch, bins) mean of the convolution features
// across channels, for inspecting which bins excite the feature extractor.
func (m *HistogramClassifierWithAttention) ChannelMean(x *core.Tensor) (*core.Tensor, error) {
	h, err := m.features(x)
	if err != nil {
		return nil, err
	}
	batch := h.Shape[0]
	out := core.MustTensor(batch, m.bins)
	for n := 0; n < batch; n++ {
		kernels.ChannelMean(h.Row(n), attentionChannels, m.bins, out.Row(n))
	}
	return out, nil
}

func (m *HistogramClassifierWithAttention) Params() []core.NamedTensor {
	var out []core.NamedTensor
	out = append(out, prefixed("conv1", m.Conv1.Params())...)
	out = append(out, prefixed("conv2", m.Conv2.Params())...)
	out = append(out, prefixed("attention_pooling", m.AttentionPooling.Params())...)
	out = append(out, prefixed("fc", m.FC.Params())...)
	return out
}
