package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyColumn_RoundTripWithOffsets(t *testing.T) {
	var buf bytes.Buffer
	keys := []string{"/a.txt", "", "/ünïcode/path.md", string(make([]byte, 300))}
	for _, k := range keys {
		buf.Write(encodeKey(k))
	}

	got, ends, err := readKeyColumn(&buf)
	require.NoError(t, err)
	assert.Equal(t, keys, got)
	require.Len(t, ends, len(keys))
	// 300 bytes needs a two-byte varint prefix.
	assert.Equal(t, int64(1+6), ends[0])
	assert.Equal(t, ends[2]+2+300, ends[3])
}

func TestKeyColumn_TornTailIgnored(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(encodeKey("complete"))
	torn := encodeKey("incomplete")
	buf.Write(torn[:4])

	got, ends, err := readKeyColumn(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"complete"}, got)
	assert.Equal(t, []int64{9}, ends)
}

func TestKeyColumn_RejectsAbsurdLength(t *testing.T) {
	// A varint far above maxKeyBytes.
	buf := bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x0f})
	_, _, err := readKeyColumn(buf)
	assert.Error(t, err)
}

func TestVectorColumn_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rows := [][]float32{{1.5, -2, 0}, {3.25, 4, 1e-7}}
	for _, r := range rows {
		buf.Write(encodeVector(r))
	}
	assert.Equal(t, 2*3*4, buf.Len())

	got, err := readVectorColumn(&buf, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestVectorColumn_ShortRead(t *testing.T) {
	buf := bytes.NewReader(encodeVector([]float32{1, 2}))
	_, err := readVectorColumn(buf, 2, 2)
	assert.Error(t, err)
}

func TestColumnFile_AppendAndTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.col")
	c, err := openColumnFile(path, false)
	require.NoError(t, err)
	defer c.close()

	require.NoError(t, c.append([]byte("hello"), true))
	require.NoError(t, c.append([]byte("world"), false))
	assert.Equal(t, int64(10), c.size)

	require.NoError(t, c.truncate(5))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestColumnFile_ReadOnlyAppendFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.col")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	c, err := openColumnFile(path, true)
	require.NoError(t, err)
	defer c.close()

	assert.Equal(t, int64(3), c.size)
	assert.Error(t, c.append([]byte("x"), false))
	assert.Equal(t, int64(3), c.size)
}

func TestSchema_ReadWrite(t *testing.T) {
	dir := t.TempDir()

	_, ok, err := readSchema(dir)
	require.NoError(t, err)
	assert.False(t, ok)

	want := newTableSchema("files", 1024, MetricCosine)
	require.NoError(t, writeSchema(dir, want))

	got, ok, err := readSchema(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Dimension, got.Dimension)
	assert.Equal(t, want.Collection, got.Collection)
	assert.Equal(t, want.Metric, got.Metric)
	assert.Equal(t, want.Columns, got.Columns)
}

func TestSchema_RejectsBadManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, schemaFile), []byte("format_version: 99\ndimension: 4\n"), 0o644))
	_, _, err := readSchema(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, schemaFile), []byte("format_version: 1\ndimension: 0\n"), 0o644))
	_, _, err = readSchema(dir)
	assert.Error(t, err)
}

func TestDistanceFunc(t *testing.T) {
	cos := distanceFunc(MetricCosine)
	a := []float32{3, 4}
	normalizeVectorInPlace(a)
	assert.InDelta(t, 0, cos(a, a), 1e-6)
	assert.InDelta(t, 1, cos(a, []float32{0, 0}), 1e-6)

	l2 := distanceFunc(MetricL2)
	assert.InDelta(t, 5, l2([]float32{0, 0}, []float32{3, 4}), 1e-6)
}

func TestDirLock(t *testing.T) {
	dir := t.TempDir()
	a := NewDirLock(dir)
	b := NewDirLock(dir)

	ok, err := a.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Unlock())
	require.NoError(t, a.Unlock(), "double unlock is a no-op")

	ok, err = b.TryRLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock())
	assert.Equal(t, filepath.Join(dir, ".lock"), b.Path())
}
