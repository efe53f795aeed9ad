package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// NamedTensor pairs a parameter name with its values.
type NamedTensor struct {
	Name   string
	Tensor *Tensor
}

// SerializationHeader provides metadata for serialized checkpoints
type SerializationHeader struct {
	Magic    uint32 // "HSTN" magic number
	Version  uint32 // format version
	Count    uint32 // number of tensors
	Checksum uint32 // CRC32 (IEEE) of the body
	Reserved uint32
}

const (
	SerializationMagic   = 0x4E545348 // "HSTN" in little endian
	SerializationVersion = 1
	HeaderSize           = 20 // sizeof(SerializationHeader)

	maxNameLen = math.MaxUint16
	maxRank    = math.MaxUint8

	// name length, one name byte, rank, one dim, one value
	minTensorSize = 2 + 1 + 1 + 4 + floatSize
)

var (
	// ErrChecksum is returned when the checkpoint body does not match its header checksum.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrBadMagic is returned for data that is not a checkpoint.
	ErrBadMagic = errors.New("invalid magic number")
)

// SerializeTensor writes one named tensor.
// Layout: [len(Name)(2)][Name][rank(1)][dims(4*rank)][data(4*numel)]
func SerializeTensor(w io.Writer, nt NamedTensor) error {
	if len(nt.Name) == 0 || len(nt.Name) > maxNameLen {
		return fmt.Errorf("invalid tensor name length %d", len(nt.Name))
	}
	if nt.Tensor == nil || nt.Tensor.Rank() == 0 || nt.Tensor.Rank() > maxRank {
		return fmt.Errorf("tensor %q has invalid rank", nt.Name)
	}

	if err := binary.Write(w, binary.LittleEndian, uint16(len(nt.Name))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, nt.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(nt.Tensor.Rank())); err != nil {
		return err
	}
	for _, d := range nt.Tensor.Shape {
		if err := binary.Write(w, binary.LittleEndian, uint32(d)); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, nt.Tensor.Data)
}

// DeserializeTensor reads one named tensor written by SerializeTensor.
func DeserializeTensor(r io.Reader) (NamedTensor, error) {
	var nameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return NamedTensor{}, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return NamedTensor{}, fmt.Errorf("reading tensor name: %w", err)
	}

	var rank uint8
	if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
		return NamedTensor{}, err
	}
	dims := make([]uint32, rank)
	if err := binary.Read(r, binary.LittleEndian, dims); err != nil {
		return NamedTensor{}, fmt.Errorf("reading shape of %q: %w", name, err)
	}
	shape := make([]int, rank)
	for i, d := range dims {
		shape[i] = int(d)
	}
	n, err := numel(shape)
	if err != nil {
		return NamedTensor{}, fmt.Errorf("tensor %q: %w", name, err)
	}
	// A sized reader must still hold the data, so a crafted shape cannot
	// force an allocation larger than the input.
	if lr, ok := r.(interface{ Len() int }); ok && n > lr.Len()/floatSize {
		return NamedTensor{}, fmt.Errorf("tensor %q: %w: shape %v needs %d values, %d bytes left",
			name, ErrShapeMismatch, shape, n, lr.Len())
	}

	t, err := NewTensor(shape...)
	if err != nil {
		return NamedTensor{}, fmt.Errorf("tensor %q: %w", name, err)
	}
	if err := binary.Read(r, binary.LittleEndian, t.Data); err != nil {
		return NamedTensor{}, fmt.Errorf("reading data of %q: %w", name, err)
	}
	return NamedTensor{Name: string(name), Tensor: t}, nil
}

// SerializeWithHeader creates a complete checkpoint with integrity checking
func SerializeWithHeader(tensors []NamedTensor) ([]byte, error) {
	var body bytes.Buffer
	for _, nt := range tensors {
		if err := SerializeTensor(&body, nt); err != nil {
			return nil, err
		}
	}

	header := SerializationHeader{
		Magic:    SerializationMagic,
		Version:  SerializationVersion,
		Count:    uint32(len(tensors)),
		Checksum: crc32.ChecksumIEEE(body.Bytes()),
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+body.Len()))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

// DeserializeWithHeader reads a complete checkpoint with integrity checking
func DeserializeWithHeader(data []byte) ([]NamedTensor, error) {
	if len(data) < HeaderSize {
		return nil, errors.New("data too short for header")
	}

	var header SerializationHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if header.Magic != SerializationMagic {
		return nil, fmt.Errorf("%w: %x", ErrBadMagic, header.Magic)
	}
	if header.Version != SerializationVersion {
		return nil, fmt.Errorf("unsupported version: %d", header.Version)
	}

	body := data[HeaderSize:]
	if sum := crc32.ChecksumIEEE(body); sum != header.Checksum {
		return nil, fmt.Errorf("%w: header %08x, body %08x", ErrChecksum, header.Checksum, sum)
	}

	r := bytes.NewReader(body)
	tensors := make([]NamedTensor, 0, int(min(header.Count, uint32(len(body)/minTensorSize))))
	for i := uint32(0); i < header.Count; i++ {
		nt, err := DeserializeTensor(r)
		if err != nil {
			return nil, fmt.Errorf("tensor %d: %w", i, err)
		}
		tensors = append(tensors, nt)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after %d tensors", r.Len(), header.Count)
	}
	return tensors, nil
}

// FloatsToBytes converts a slice of float32 to a byte slice using LittleEndian encoding.
func FloatsToBytes(f []float32) []byte {
	result := make([]byte, len(f)*floatSize)
	for i, val := range f {
		binary.LittleEndian.PutUint32(result[i*floatSize:], math.Float32bits(val))
	}
	return result
}

// BytesToFloats converts a byte slice to a float32 slice using LittleEndian encoding.
// Returns an error if the byte slice length is not a multiple of 4.
func BytesToFloats(b []byte) ([]float32, error) {
	if len(b)%floatSize != 0 {
		return nil, fmt.Errorf("byte slice length %d not multiple of 4", len(b))
	}
	result := make([]float32, len(b)/floatSize)
	for i := range result {
		result[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*floatSize:]))
	}
	return result, nil
}
