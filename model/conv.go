package model

import (
	"fmt"
	"math/rand"

	"github.com/sbl8/histonet/core"
	"github.com/sbl8/histonet/kernels"
)

// Conv1D is a 1-D convolution over (batch, channels, length) tensors.
type Conv1D struct {
	InChannels  int
	OutChannels int
	Kernel      int
	Stride      int
	Padding     int
	Weight      *core.Tensor // (OutChannels, InChannels, Kernel)
	Bias        *core.Tensor // (OutChannels)
}

// NewConv1D creates a convolution layer initialised from rng.
func NewConv1D(in, out, kernel, stride, padding int, rng *rand.Rand) (*Conv1D, error) {
	if in <= 0 || out <= 0 || kernel <= 0 || stride <= 0 || padding < 0 {
		return nil, fmt.Errorf("conv1d %d->%d k%d s%d p%d: invalid geometry", in, out, kernel, stride, padding)
	}
	c := &Conv1D{
		InChannels:  in,
		OutChannels: out,
		Kernel:      kernel,
		Stride:      stride,
		Padding:     padding,
		Weight:      core.MustTensor(out, in, kernel),
		Bias:        core.MustTensor(out),
	}
	bound := fanInBound(in * kernel)
	uniform(c.Weight, bound, rng)
	uniform(c.Bias, bound, rng)
	return c, nil
}

// OutLen returns the output length for an input of the given length.
func (c *Conv1D) OutLen(length int) int {
	return kernels.ConvOutLen(length, c.Kernel, c.Stride, c.Padding)
}

// Forward maps (batch, InChannels, L) to (batch, OutChannels, OutLen(L)).
func (c *Conv1D) Forward(x *core.Tensor) (*core.Tensor, error) {
	if err := x.ExpectShape(-1, c.InChannels, -1); err != nil {
		return nil, fmt.Errorf("conv1d %d->%d: %w", c.InChannels, c.OutChannels, err)
	}
	batch, length := x.Shape[0], x.Shape[2]
	outLen := c.OutLen(length)
	if outLen <= 0 {
		return nil, fmt.Errorf("conv1d %d->%d: %w: length %d too short for kernel %d",
			c.InChannels, c.OutChannels, core.ErrShapeMismatch, length, c.Kernel)
	}

	y := core.MustTensor(batch, c.OutChannels, outLen)
	for n := 0; n < batch; n++ {
		kernels.Conv1D(x.Row(n), c.InChannels, length, c.Weight.Data, c.OutChannels,
			c.Kernel, c.Stride, c.Padding, c.Bias.Data, y.Row(n))
	}
	return y, nil
}

func (c *Conv1D) Params() []core.NamedTensor {
	return []core.NamedTensor{
		{Name: "weight", Tensor: c.Weight},
		{Name: "bias", Tensor: c.Bias},
	}
}

// AvgPool1D averages non-overlapping (for Stride == Kernel) windows per channel.
type AvgPool1D struct {
	Kernel int
	Stride int
}

// OutLen returns the pooled length; trailing elements that do not fill a window are dropped.
func (p AvgPool1D) OutLen(length int) int {
	return kernels.PoolOutLen(length, p.Kernel, p.Stride)
}

// Forward maps (batch, C, L) to (batch, C, OutLen(L)).
func (p AvgPool1D) Forward(x *core.Tensor) (*core.Tensor, error) {
	if x.Rank() != 3 {
		return nil, fmt.Errorf("avgpool1d: %w: input %v", core.ErrShapeMismatch, x.Shape)
	}
	batch, channels, length := x.Shape[0], x.Shape[1], x.Shape[2]
	outLen := p.OutLen(length)
	if outLen <= 0 {
		return nil, fmt.Errorf("avgpool1d: %w: length %d too short for window %d", core.ErrShapeMismatch, length, p.Kernel)
	}

	y := core.MustTensor(batch, channels, outLen)
	for n := 0; n < batch; n++ {
		kernels.AvgPool1D(x.Row(n), channels, length, p.Kernel, p.Stride, y.Row(n))
	}
	return y, nil
}

func (AvgPool1D) Params() []core.NamedTensor { return nil }

// Activation applies a catalog kernel element-wise. Softmax is applied
// across the last dimension.
type Activation struct {
	Op byte
}

// ReLU is the rectified-linear activation layer.
func ReLU() Activation {
	return Activation{Op: kernels.OpReLU}
}

func (a Activation) Forward(x *core.Tensor) (*core.Tensor, error) {
	y := x.Clone()
	if a.Op == kernels.OpSoftmax {
		width := y.Dim(-1)
		kernels.SoftmaxRows(y.Data, y.Len()/width, width)
		return y, nil
	}
	fn := kernels.GetKernel(a.Op)
	if fn == nil {
		return nil, fmt.Errorf("activation %s not registered", kernels.OpName(a.Op))
	}
	fn(y.Data)
	return y, nil
}

func (Activation) Params() []core.NamedTensor { return nil }
