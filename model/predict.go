package model

import (
	"fmt"
	"strings"

	"github.com/sbl8/histonet/core"
	"github.com/sbl8/histonet/kernels"
)

// Prediction is the decoded classification of one histogram.
type Prediction struct {
	Class         int       `json:"class" yaml:"class"`
	Label         string    `json:"label,omitempty" yaml:"label,omitempty"`
	Confidence    float32   `json:"confidence" yaml:"confidence"`
	Probabilities []float32 `json:"probabilities" yaml:"probabilities"`
	Logits        []float32 `json:"logits" yaml:"logits"`
	Attention     []float32 `json:"attention,omitempty" yaml:"attention,omitempty"`
}

// Decode turns a forward pass into one Prediction per batch row. labels may
// be nil; when present it must name every class.
func Decode(out *Output, labels []string) ([]Prediction, error) {
	if out == nil || out.Logits == nil {
		return nil, fmt.Errorf("%w: no logits", core.ErrShapeMismatch)
	}
	if out.Logits.Rank() != 2 {
		return nil, fmt.Errorf("%w: logits %v are not (batch, classes)", core.ErrShapeMismatch, out.Logits.Shape)
	}
	batch, classes := out.Logits.Shape[0], out.Logits.Shape[1]
	if labels != nil && len(labels) != classes {
		return nil, fmt.Errorf("%d labels for %d classes", len(labels), classes)
	}

	preds := make([]Prediction, batch)
	for n := 0; n < batch; n++ {
		logits := append([]float32(nil), out.Logits.Row(n)...)
		probs := append([]float32(nil), logits...)
		kernels.Softmax(probs)

		cls := kernels.ArgMax(probs)
		p := Prediction{
			Class:         cls,
			Confidence:    probs[cls],
			Probabilities: probs,
			Logits:        logits,
		}
		if labels != nil {
			p.Label = labels[cls]
		}
		if out.Attention != nil {
			p.Attention = append([]float32(nil), out.Attention.Row(n)...)
		}
		preds[n] = p
	}
	return preds, nil
}

// Predict runs c on x and decodes the result.
func Predict(c Classifier, x *core.Tensor, labels []string) ([]Prediction, error) {
	out, err := c.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("%s forward: %w", c.Architecture(), err)
	}
	return Decode(out, labels)
}

// ParamInfo describes one learned tensor.
type ParamInfo struct {
	Name  string `json:"name" yaml:"name"`
	Shape []int  `json:"shape" yaml:"shape"`
	Count int    `json:"count" yaml:"count"`
}

// Summary is a structural description of a classifier.
type Summary struct {
	Architecture string      `json:"architecture" yaml:"architecture"`
	NumBins      int         `json:"num_bins" yaml:"num_bins"`
	NumClasses   int         `json:"num_classes" yaml:"num_classes"`
	Features     int         `json:"features,omitempty" yaml:"features,omitempty"`
	TotalParams  int         `json:"total_params" yaml:"total_params"`
	Params       []ParamInfo `json:"params" yaml:"params"`
}

// Describe summarizes c's architecture and parameter tensors.
func Describe(c Classifier) Summary {
	s := Summary{
		Architecture: c.Architecture(),
		NumBins:      c.NumBins(),
		NumClasses:   c.NumClasses(),
	}
	if cnn, ok := c.(*HistogramCNN); ok {
		s.Features = cnn.Features()
	}
	for _, p := range c.Params() {
		s.Params = append(s.Params, ParamInfo{
			Name:  p.Name,
			Shape: append([]int(nil), p.Tensor.Shape...),
			Count: p.Tensor.Len(),
		})
		s.TotalParams += p.Tensor.Len()
	}
	return s
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d bins -> %d classes, %d parameters\n",
		s.Architecture, s.NumBins, s.NumClasses, s.TotalParams)
	for _, p := range s.Params {
		fmt.Fprintf(&b, "  %-40s %v\n", p.Name, p.Shape)
	}
	return b.String()
}
