// Package kernels provides the float32 compute kernels behind histonet layers.
//
// Kernels operate on flat row-major slices; callers (the model package) own
// shape bookkeeping and allocate outputs. Element-wise activations run in
// place and are registered in the Catalog array so layers can be configured
// by opcode.
//
// Available operations:
//   - Activations: ReLU, sigmoid, tanh, softmax
//   - Linear algebra: dot products, dense (fully-connected) transforms
//   - Sequence ops: 1-D convolution, 1-D average pooling, channel mean
//   - Reductions: weighted sum over bins, argmax
package kernels

import (
	"fmt"
	"math"
	"strings"
)

// KernelFn operates in‑place on a float32 slice with zero allocations
type KernelFn func(data []float32)

// Kernel operation codes
const (
	OpNoop    = 0x00
	OpReLU    = 0x03
	OpSigmoid = 0x04
	OpTanh    = 0x05
	OpSoftmax = 0x0A
)

// Catalog maps opcodes to element-wise kernel implementations
var Catalog = [256]KernelFn{
	OpNoop:    noop,
	OpReLU:    ReLU,
	OpSigmoid: Sigmoid,
	OpTanh:    Tanh,
	OpSoftmax: Softmax,
}

var opNames = map[string]byte{
	"identity": OpNoop,
	"none":     OpNoop,
	"relu":     OpReLU,
	"sigmoid":  OpSigmoid,
	"tanh":     OpTanh,
	"softmax":  OpSoftmax,
}

// GetKernel returns the kernel function for the given opcode
func GetKernel(opcode byte) KernelFn {
	return Catalog[opcode]
}

// ParseOp resolves an activation name to its opcode.
func ParseOp(name string) (byte, error) {
	op, ok := opNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown activation %q", name)
	}
	return op, nil
}

// OpName returns the canonical name for an opcode.
func OpName(op byte) string {
	switch op {
	case OpNoop:
		return "identity"
	case OpReLU:
		return "relu"
	case OpSigmoid:
		return "sigmoid"
	case OpTanh:
		return "tanh"
	case OpSoftmax:
		return "softmax"
	}
	return fmt.Sprintf("op(0x%02x)", op)
}

func noop(data []float32) {}

// ReLU implements Rectified Linear Unit: max(0, x)
func ReLU(data []float32) {
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
}

// Sigmoid implements 1 / (1 + e^(-x))
func Sigmoid(data []float32) {
	for i, v := range data {
		data[i] = float32(1 / (1 + math.Exp(-float64(v))))
	}
}

// Tanh implements the hyperbolic tangent
func Tanh(data []float32) {
	for i, v := range data {
		data[i] = float32(math.Tanh(float64(v)))
	}
}

// Softmax implements numerically stable softmax over the whole slice
func Softmax(data []float32) {
	if len(data) == 0 {
		return
	}

	maxVal := float32(math.Inf(-1))
	for _, v := range data {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float64
	for i, v := range data {
		e := math.Exp(float64(v - maxVal))
		data[i] = float32(e)
		sum += e
	}

	inv := float32(1 / sum)
	for i := range data {
		data[i] *= inv
	}
}

// SoftmaxRows applies Softmax independently to each row of a (rows, width) slice.
func SoftmaxRows(data []float32, rows, width int) {
	for r := 0; r < rows; r++ {
		Softmax(data[r*width : (r+1)*width])
	}
}

// SIMD-friendly unrolling width
const unrollFactor = 4

// Dot computes the dot product of equal-length vectors with 4-way unrolling.
func Dot(a, b []float32) float32 {
	n := len(a)
	b = b[:n]

	var s0, s1, s2, s3 float32
	i := 0
	for ; i <= n-unrollFactor; i += unrollFactor {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		s0 += a[i] * b[i]
	}
	return (s0 + s1) + (s2 + s3)
}

// Linear computes y = x·Wᵀ + b for a (rows, in) input, an (out, in) weight
// matrix and an optional length-out bias. y must hold rows*out values.
func Linear(x []float32, rows, in int, w []float32, out int, b []float32, y []float32) {
	for r := 0; r < rows; r++ {
		xr := x[r*in : (r+1)*in]
		yr := y[r*out : (r+1)*out]
		for o := 0; o < out; o++ {
			s := Dot(xr, w[o*in:(o+1)*in])
			if b != nil {
				s += b[o]
			}
			yr[o] = s
		}
	}
}

// ConvOutLen returns the output length of a 1-D convolution.
func ConvOutLen(length, kernel, stride, padding int) int {
	if stride <= 0 {
		return 0
	}
	n := (length+2*padding-kernel)/stride + 1
	if n < 0 {
		return 0
	}
	return n
}

// Conv1D convolves one sample of shape (cin, length) with weights of shape
// (cout, cin, kernel) and an optional bias, writing (cout, outLen) into y.
// Positions outside [0, length) read as zero (zero padding).
func Conv1D(x []float32, cin, length int, w []float32, cout, kernel, stride, padding int, b []float32, y []float32) {
	outLen := ConvOutLen(length, kernel, stride, padding)
	for co := 0; co < cout; co++ {
		bias := float32(0)
		if b != nil {
			bias = b[co]
		}
		yc := y[co*outLen : (co+1)*outLen]
		for i := range yc {
			yc[i] = bias
		}
		for ci := 0; ci < cin; ci++ {
			xc := x[ci*length : (ci+1)*length]
			wk := w[(co*cin+ci)*kernel : (co*cin+ci+1)*kernel]
			for o := 0; o < outLen; o++ {
				start := o*stride - padding
				lo, hi := 0, kernel
				if start < 0 {
					lo = -start
				}
				if start+kernel > length {
					hi = length - start
				}
				if lo >= hi {
					continue
				}
				yc[o] += Dot(wk[lo:hi], xc[start+lo:start+hi])
			}
		}
	}
}

// PoolOutLen returns the output length of a 1-D pooling window without padding.
func PoolOutLen(length, kernel, stride int) int {
	if length < kernel || stride <= 0 {
		return 0
	}
	return (length-kernel)/stride + 1
}

// AvgPool1D averages non-padded windows over each channel of a (channels,
// length) sample, writing (channels, outLen) into y.
func AvgPool1D(x []float32, channels, length, kernel, stride int, y []float32) {
	outLen := PoolOutLen(length, kernel, stride)
	inv := 1 / float32(kernel)
	for c := 0; c < channels; c++ {
		xc := x[c*length : (c+1)*length]
		yc := y[c*outLen : (c+1)*outLen]
		for o := range yc {
			var s float32
			for _, v := range xc[o*stride : o*stride+kernel] {
				s += v
			}
			yc[o] = s * inv
		}
	}
}

// ChannelMean averages a (channels, length) sample across channels into a
// length-long y.
func ChannelMean(x []float32, channels, length int, y []float32) {
	for i := range y[:length] {
		y[i] = 0
	}
	for c := 0; c < channels; c++ {
		for i, v := range x[c*length : (c+1)*length] {
			y[i] += v
		}
	}
	inv := 1 / float32(channels)
	for i := range y[:length] {
		y[i] *= inv
	}
}

// WeightedSum reduces a (bins, dim) sample to dim values using per-bin weights.
func WeightedSum(weights []float32, x []float32, bins, dim int, y []float32) {
	for d := range y[:dim] {
		y[d] = 0
	}
	for i := 0; i < bins; i++ {
		wi := weights[i]
		row := x[i*dim : (i+1)*dim]
		for d, v := range row {
			y[d] += wi * v
		}
	}
}

// Transpose2D writes the (cols, rows) transpose of a (rows, cols) matrix into y.
func Transpose2D(x []float32, rows, cols int, y []float32) {
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			y[c*rows+r] = x[r*cols+c]
		}
	}
}

// ArgMax returns the index of the largest value; ties resolve to the lowest index.
func ArgMax(data []float32) int {
	best := 0
	for i, v := range data {
		if v > data[best] {
			best = i
		}
	}
	return best
}
