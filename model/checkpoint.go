package model

import (
	"fmt"
	"io"
	"os"

	"github.com/sbl8/histonet/core"
)

const fileMode = 0600

// Save writes every parameter of c as a checkpoint.
func Save(w io.Writer, c Classifier) error {
	data, err := core.SerializeWithHeader(c.Params())
	if err != nil {
		return fmt.Errorf("serializing %s parameters: %w", c.Architecture(), err)
	}
	_, err = w.Write(data)
	return err
}

// Load replaces the parameters of c with the tensors stored in r. Every
// parameter must be present with a matching shape and the checkpoint may not
// carry unknown tensors.
func Load(r io.Reader, c Classifier) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading checkpoint: %w", err)
	}
	tensors, err := core.DeserializeWithHeader(data)
	if err != nil {
		return fmt.Errorf("decoding checkpoint: %w", err)
	}

	stored := make(map[string]*core.Tensor, len(tensors))
	for _, nt := range tensors {
		if _, dup := stored[nt.Name]; dup {
			return fmt.Errorf("checkpoint has duplicate tensor %q", nt.Name)
		}
		stored[nt.Name] = nt.Tensor
	}

	params := c.Params()
	for _, p := range params {
		t, ok := stored[p.Name]
		if !ok {
			return fmt.Errorf("checkpoint is missing %q for %s", p.Name, c.Architecture())
		}
		if !t.SameShape(p.Tensor) {
			return fmt.Errorf("%w: %q is %v in checkpoint, model expects %v",
				core.ErrShapeMismatch, p.Name, t.Shape, p.Tensor.Shape)
		}
		delete(stored, p.Name)
	}
	for name := range stored {
		return fmt.Errorf("checkpoint tensor %q is not a %s parameter", name, c.Architecture())
	}

	// Validated: copy in place so layers keep their aligned buffers.
	for _, p := range params {
		for _, nt := range tensors {
			if nt.Name == p.Name {
				copy(p.Tensor.Data, nt.Tensor.Data)
				break
			}
		}
	}
	return nil
}

// SaveFile writes a checkpoint to path.
func SaveFile(path string, c Classifier) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return fmt.Errorf("creating checkpoint %s: %w", path, err)
	}
	if err := Save(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a checkpoint from path into c.
func LoadFile(path string, c Classifier) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening checkpoint %s: %w", path, err)
	}
	defer f.Close()
	return Load(f, c)
}
