package model

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/histonet/core"
)

func TestCheckpointRoundTrip(t *testing.T) {
	t.Parallel()
	for _, arch := range Names() {
		arch := arch
		t.Run(arch, func(t *testing.T) {
			t.Parallel()
			src, err := New(arch, 24, 4, 1)
			require.NoError(t, err)
			dst, err := New(arch, 24, 4, 2)
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), arch+".hstn")
			require.NoError(t, SaveFile(path, src))
			require.NoError(t, LoadFile(path, dst))

			sp, dp := src.Params(), dst.Params()
			for i := range sp {
				assert.Equal(t, sp[i].Tensor.Data, dp[i].Tensor.Data, sp[i].Name)
			}

			x := core.MustTensor(2, 24)
			for i := range x.Data {
				x.Data[i] = float32(i)
			}
			a, err := src.Forward(x)
			require.NoError(t, err)
			b, err := dst.Forward(x)
			require.NoError(t, err)
			assert.Equal(t, a.Logits.Data, b.Logits.Data)
		})
	}
}

func TestCheckpointMismatch(t *testing.T) {
	t.Parallel()
	mlp, err := New(ArchMLP, 24, 4, 1)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, mlp))
	data := buf.Bytes()

	wider, err := New(ArchMLP, 25, 4, 1)
	require.NoError(t, err)
	err = Load(bytes.NewReader(data), wider)
	assert.ErrorIs(t, err, core.ErrShapeMismatch)

	cnn, err := New(ArchCNN, 24, 4, 1)
	require.NoError(t, err)
	err = Load(bytes.NewReader(data), cnn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	corrupt := bytes.Clone(data)
	corrupt[len(corrupt)-1] ^= 0xFF
	err = Load(bytes.NewReader(corrupt), mlp)
	assert.ErrorIs(t, err, core.ErrChecksum)
}

func TestCheckpointExtraTensor(t *testing.T) {
	t.Parallel()
	mlp, err := New(ArchMLP, 8, 2, 1)
	require.NoError(t, err)
	params := append(mlp.Params(), core.NamedTensor{Name: "extra", Tensor: core.MustTensor(1)})
	data, err := core.SerializeWithHeader(params)
	require.NoError(t, err)

	err = Load(bytes.NewReader(data), mlp)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "extra"))
}

func TestCheckpointTruncatedWithValidChecksum(t *testing.T) {
	t.Parallel()
	mlp, err := New(ArchMLP, 8, 2, 1)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, mlp))

	// drop the last value and re-sign the body so only the structure is wrong
	data := bytes.Clone(buf.Bytes()[:buf.Len()-4])
	binary.LittleEndian.PutUint32(data[12:16], crc32.ChecksumIEEE(data[core.HeaderSize:]))

	before := append([]float32(nil), mlp.Params()[0].Tensor.Data...)
	require.NotPanics(t, func() { err = Load(bytes.NewReader(data), mlp) })
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrChecksum)
	assert.Equal(t, before, mlp.Params()[0].Tensor.Data)
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()
	mlp, err := New(ArchMLP, 8, 2, 1)
	require.NoError(t, err)
	assert.Error(t, LoadFile(filepath.Join(t.TempDir(), "nope.hstn"), mlp))
}
