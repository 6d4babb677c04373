package dataset

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
)

func TestEncodeLayout(t *testing.T) {
	g, err := Point(2, 3, 1, 2)
	require.NoError(t, err)
	g.Set(0, 1, 1.5)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, g))
	data := buf.Bytes()
	require.Len(t, data, 8+6*8)
	assert.EqualValues(t, 2, binary.LittleEndian.Uint32(data[0:]))
	assert.EqualValues(t, 3, binary.LittleEndian.Uint32(data[4:]))

	decoded, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, g.Data(), decoded.Data())
	assert.True(t, decoded.IsSource(1, 2))
	assert.False(t, decoded.IsSource(0, 1))
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{1, 0, 0}))
	assert.Error(t, err)

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, []uint32{2, 2})
	binary.Write(&buf, binary.LittleEndian, []float64{1, 2})
	_, err = Decode(&buf)
	assert.Error(t, err)
}

func TestReadWrite(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	url := t.TempDir() + "/square.dat"

	g, err := Square(8, 8)
	require.NoError(t, err)
	require.NoError(t, Write(ctx, fs, url, g))
	loaded, err := Read(ctx, fs, url)
	require.NoError(t, err)
	assert.Equal(t, g.Data(), loaded.Data())
	assert.Equal(t, g.FixedBlock(0, 8), loaded.FixedBlock(0, 8))
}

func TestGenerators(t *testing.T) {
	g, err := Columns(2, 250, 100)
	require.NoError(t, err)
	for j := 0; j < 250; j++ {
		assert.Equal(t, j%100 == 0, g.IsSource(1, j), "column %d", j)
	}

	g, err = Square(8, 8)
	require.NoError(t, err)
	var hot int
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			if g.IsSource(i, j) {
				hot++
				assert.Equal(t, MaxTemperature, g.At(i, j))
				assert.True(t, i >= 2 && i <= 6 && j >= 2 && j <= 6)
			}
		}
	}
	assert.Equal(t, 25, hot)

	_, err = Point(4, 4, 4, 0)
	assert.Error(t, err)
	_, err = Generate("stripes", 4, 4)
	assert.Error(t, err)
	g, err = Generate("point", 4, 4)
	require.NoError(t, err)
	assert.True(t, g.IsSource(2, 2))
}
