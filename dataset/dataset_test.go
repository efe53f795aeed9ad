package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/histonet/core"
)

func TestReadCSV(t *testing.T) {
	t.Parallel()
	in := `# counts per bin
1,2,3,4

5 6	7 8
  9.5, 10, 11 ,12
`
	rows, err := ReadCSV(strings.NewReader(in), 4)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9.5, 10, 11, 12},
	}, rows)
}

func TestReadCSVErrors(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"short row": "1,2,3,4\n1,2,3\n",
		"bad value": "1,2,x,4\n",
		"empty":     "# nothing\n\n",
	}
	for name, in := range tests {
		_, err := ReadCSV(strings.NewReader(in), 4)
		assert.Error(t, err, name)
	}

	_, err := ReadCSV(strings.NewReader("1,2,3\n"), 4)
	assert.ErrorIs(t, err, core.ErrShapeMismatch)
	assert.Contains(t, err.Error(), "line 1")

	_, err = ReadCSV(strings.NewReader(""), 4)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = ReadCSV(strings.NewReader("1\n"), 0)
	assert.Error(t, err)
}

func TestBinaryRoundTrip(t *testing.T) {
	t.Parallel()
	rows := [][]float32{{1, 2, 3}, {-4.5, 0, 1e6}}
	var buf bytes.Buffer
	require.NoError(t, WriteBinary(&buf, rows))
	assert.Equal(t, 2*3*4, buf.Len())

	got, err := ReadBinary(bytes.NewReader(buf.Bytes()), 3)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	_, err = ReadBinary(bytes.NewReader(buf.Bytes()[:buf.Len()-2]), 3)
	assert.ErrorIs(t, err, core.ErrShapeMismatch)

	_, err = ReadBinary(bytes.NewReader(nil), 3)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "h.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("1,2\n3,4\n"), 0o600))
	rows, err := ReadFile(csvPath, "", 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	binPath := filepath.Join(dir, "h.bin")
	var buf bytes.Buffer
	require.NoError(t, WriteBinary(&buf, rows))
	require.NoError(t, os.WriteFile(binPath, buf.Bytes(), 0o600))
	got, err := ReadFile(binPath, "", 2)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	_, err = ReadFile(csvPath, "parquet", 2)
	assert.Error(t, err)
	_, err = ReadFile(filepath.Join(dir, "missing.csv"), "", 2)
	assert.Error(t, err)

	assert.Equal(t, FormatBinary, DetectFormat("x.F32"))
	assert.Equal(t, FormatCSV, DetectFormat("x.txt"))
}
