package core

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTensor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		shape   []int
		wantLen int
		wantErr bool
	}{
		{name: "vector", shape: []int{120}, wantLen: 120},
		{name: "batch", shape: []int{4, 120}, wantLen: 480},
		{name: "feature map", shape: []int{2, 16, 30}, wantLen: 960},
		{name: "empty shape", shape: nil, wantErr: true},
		{name: "zero dimension", shape: []int{4, 0}, wantErr: true},
		{name: "negative dimension", shape: []int{-1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := NewTensor(tt.shape...)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrShapeMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLen, tensor.Len())
			assert.Equal(t, tt.shape, tensor.Shape)
			assert.True(t, FloatsAligned(tensor.Data), "tensor data should start on a cache line")
		})
	}
}

func TestFromSlice(t *testing.T) {
	t.Parallel()
	tensor, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5, 6}, tensor.Row(1))

	_, err = FromSlice([]float32{1, 2, 3}, 2, 3)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestFromRows(t *testing.T) {
	t.Parallel()
	tensor, err := FromRows([][]float32{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, tensor.Shape)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Data)

	_, err = FromRows([][]float32{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = FromRows(nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestReshapeSharesData(t *testing.T) {
	t.Parallel()
	tensor := MustTensor(2, 6)
	view, err := tensor.Reshape(2, 1, 6)
	require.NoError(t, err)

	view.Data[7] = 42
	assert.Equal(t, float32(42), tensor.Data[7])

	_, err = tensor.Reshape(5)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	original, err := FromSlice([]float32{1, 2, 3}, 3)
	require.NoError(t, err)

	clone := original.Clone()
	clone.Data[0] = 99
	clone.Shape[0] = 7

	assert.Equal(t, float32(1), original.Data[0])
	assert.Equal(t, 3, original.Shape[0])
}

func TestExpectShape(t *testing.T) {
	t.Parallel()
	tensor := MustTensor(4, 1, 120)

	assert.NoError(t, tensor.ExpectShape(4, 1, 120))
	assert.NoError(t, tensor.ExpectShape(-1, 1, 120))
	assert.ErrorIs(t, tensor.ExpectShape(4, 120), ErrShapeMismatch)
	assert.ErrorIs(t, tensor.ExpectShape(-1, 2, 120), ErrShapeMismatch)
	assert.Equal(t, 120, tensor.Dim(-1))
}

func TestAlignSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 64, AlignSize(1, CacheLineSize))
	assert.Equal(t, 64, AlignSize(64, CacheLineSize))
	assert.Equal(t, 128, AlignSize(65, CacheLineSize))
	assert.Nil(t, AlignedFloats(0))
}

func sampleCheckpoint(t *testing.T) []NamedTensor {
	t.Helper()
	w, err := FromSlice([]float32{0.5, -1.25, 2, 3.75, -4, 5.5}, 2, 3)
	require.NoError(t, err)
	b, err := FromSlice([]float32{0.1, -0.2}, 2)
	require.NoError(t, err)
	return []NamedTensor{
		{Name: "network.0.weight", Tensor: w},
		{Name: "network.0.bias", Tensor: b},
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	t.Parallel()
	tensors := sampleCheckpoint(t)

	data, err := SerializeWithHeader(tensors)
	require.NoError(t, err)

	got, err := DeserializeWithHeader(data)
	require.NoError(t, err)
	require.Len(t, got, len(tensors))
	for i := range tensors {
		assert.Equal(t, tensors[i].Name, got[i].Name)
		assert.Equal(t, tensors[i].Tensor.Shape, got[i].Tensor.Shape)
		assert.Equal(t, tensors[i].Tensor.Data, got[i].Tensor.Data)
	}
}

func TestCheckpointRejectsCorruption(t *testing.T) {
	t.Parallel()
	data, err := SerializeWithHeader(sampleCheckpoint(t))
	require.NoError(t, err)

	corrupted := bytes.Clone(data)
	corrupted[len(corrupted)-1] ^= 0xFF
	_, err = DeserializeWithHeader(corrupted)
	assert.ErrorIs(t, err, ErrChecksum)

	badMagic := bytes.Clone(data)
	badMagic[0] ^= 0xFF
	_, err = DeserializeWithHeader(badMagic)
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = DeserializeWithHeader(data[:HeaderSize-1])
	assert.Error(t, err)
}

// rawTensor encodes one tensor record with arbitrary dims followed by
// values float32 zeros.
func rawTensor(name string, dims []uint32, values int) []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.LittleEndian, uint16(len(name)))
	b.WriteString(name)
	b.WriteByte(uint8(len(dims)))
	for _, d := range dims {
		_ = binary.Write(&b, binary.LittleEndian, d)
	}
	b.Write(make([]byte, values*floatSize))
	return b.Bytes()
}

// rawCheckpoint frames body with a valid header declaring count tensors.
func rawCheckpoint(count uint32, body []byte) []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.LittleEndian, SerializationHeader{
		Magic:    SerializationMagic,
		Version:  SerializationVersion,
		Count:    count,
		Checksum: crc32.ChecksumIEEE(body),
	})
	b.Write(body)
	return b.Bytes()
}

func TestCheckpointRejectsMalformedBody(t *testing.T) {
	t.Parallel()
	valid := rawTensor("w", []uint32{2}, 2)

	tests := []struct {
		name      string
		data      []byte
		wantShape bool
	}{
		{"overflowing shape", rawCheckpoint(1, rawTensor("w", []uint32{0xFFFFFFFF, 0xFFFFFFFF}, 1)), true},
		{"shape larger than body", rawCheckpoint(1, rawTensor("w", []uint32{1 << 31}, 1)), true},
		{"zero dimension", rawCheckpoint(1, rawTensor("w", []uint32{0}, 0)), true},
		{"rank zero", rawCheckpoint(1, rawTensor("w", nil, 1)), true},
		{"count beyond body", rawCheckpoint(3, valid), false},
		{"huge count", rawCheckpoint(0xFFFFFFFF, valid), false},
		{"trailing tensor", rawCheckpoint(0, valid), false},
		{"truncated data", rawCheckpoint(1, valid[:len(valid)-1]), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var err error
			require.NotPanics(t, func() { _, err = DeserializeWithHeader(tt.data) })
			require.Error(t, err)
			if tt.wantShape {
				assert.ErrorIs(t, err, ErrShapeMismatch)
			}
		})
	}

	got, err := DeserializeWithHeader(rawCheckpoint(1, valid))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, got[0].Tensor.Shape)
}

func TestNewTensorRejectsOverflow(t *testing.T) {
	t.Parallel()
	_, err := NewTensor(math.MaxInt/2, 4)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSerializeTensorValidation(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	assert.Error(t, SerializeTensor(&buf, NamedTensor{Name: "", Tensor: MustTensor(1)}))
	assert.Error(t, SerializeTensor(&buf, NamedTensor{Name: "w", Tensor: nil}))
}

func TestFloatConversion(t *testing.T) {
	t.Parallel()
	in := []float32{1.0, -2.5, 3.25, 0}
	b := FloatsToBytes(in)
	assert.Len(t, b, 16)

	out, err := BytesToFloats(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = BytesToFloats([]byte{1, 2, 3})
	assert.Error(t, err)
}

func BenchmarkCheckpointSerialize(b *testing.B) {
	w := MustTensor(64, 120)
	tensors := []NamedTensor{{Name: "network.0.weight", Tensor: w}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = SerializeWithHeader(tensors)
	}
}
