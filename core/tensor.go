// Package core provides the tensor primitives shared by histonet kernels and models.
//
// A Tensor is a dense row-major float32 array with an explicit shape. Batches of
// histograms are (batch, bins) tensors, convolution feature maps are
// (batch, channels, length) tensors. Tensors own their data; operations in the
// kernels and model packages allocate fresh outputs and never alias inputs.
//
// Key components:
//   - Tensor: shape + cache-aligned float32 storage
//   - Alignment helpers for kernel-friendly buffers
//   - Checkpoint serialization of named tensors with integrity checking
package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// maxElements bounds a tensor so its float32 byte size fits in an int.
const maxElements = math.MaxInt / floatSize

// ErrShapeMismatch reports tensors whose shapes are incompatible with an operation.
var ErrShapeMismatch = errors.New("shape mismatch")

// Tensor is a dense row-major float32 array.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zero-filled tensor of the given shape.
func NewTensor(shape ...int) (*Tensor, error) {
	n, err := numel(shape)
	if err != nil {
		return nil, err
	}
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  AlignedFloats(n),
	}, nil
}

// MustTensor is NewTensor for shapes known to be valid.
func MustTensor(shape ...int) *Tensor {
	t, err := NewTensor(shape...)
	if err != nil {
		panic(err.Error())
	}
	return t
}

// FromSlice wraps data in a tensor of the given shape without copying.
func FromSlice(data []float32, shape ...int) (*Tensor, error) {
	n, err := numel(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// FromRows stacks equal-length rows into a (len(rows), width) tensor.
func FromRows(rows [][]float32) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrShapeMismatch)
	}
	width := len(rows[0])
	t, err := NewTensor(len(rows), width)
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShapeMismatch, i, len(r), width)
		}
		copy(t.Data[i*width:], r)
	}
	return t, nil
}

func numel(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrShapeMismatch)
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: non-positive dimension in %v", ErrShapeMismatch, shape)
		}
		if n > maxElements/d {
			return 0, fmt.Errorf("%w: shape %v is too large", ErrShapeMismatch, shape)
		}
		n *= d
	}
	return n, nil
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Len returns the total number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Dim returns the size of dimension i; negative i counts from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// Row returns a view of the i-th slice along the first dimension.
func (t *Tensor) Row(i int) []float32 {
	stride := len(t.Data) / t.Shape[0]
	return t.Data[i*stride : (i+1)*stride]
}

// Reshape returns a view with a new shape over the same data.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	n, err := numel(shape)
	if err != nil {
		return nil, err
	}
	if n != len(t.Data) {
		return nil, fmt.Errorf("%w: cannot reshape %v to %v", ErrShapeMismatch, t.Shape, shape)
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: t.Data}, nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  AlignedFloats(len(t.Data)),
	}
	copy(c.Data, t.Data)
	return c
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// ExpectShape returns ErrShapeMismatch unless t has the given shape.
// A negative entry in want matches any size.
func (t *Tensor) ExpectShape(want ...int) error {
	if len(t.Shape) != len(want) {
		return fmt.Errorf("%w: got %v, want %s", ErrShapeMismatch, t.Shape, formatShape(want))
	}
	for i, d := range want {
		if d >= 0 && t.Shape[i] != d {
			return fmt.Errorf("%w: got %v, want %s", ErrShapeMismatch, t.Shape, formatShape(want))
		}
	}
	return nil
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		if d < 0 {
			parts[i] = "*"
		} else {
			parts[i] = fmt.Sprint(d)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// String renders the shape, not the data.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}
