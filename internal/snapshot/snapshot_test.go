package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "origin-0.trpm.gz")

	m := &Matrix{
		NStops:      3,
		NIterations: 2,
		Values: [][]int32{
			{100, 200, 300},
			{-1, 250, 310},
		},
	}

	require.NoError(t, Write(path, m))

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, m.NStops, got.NStops)
	require.Equal(t, m.NIterations, got.NIterations)
	require.Equal(t, m.Values, got.Values)
}

func TestReadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-snapshot.gz")

	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte("NOPE not a valid snapshot header"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	_, err = Read(path)
	require.Error(t, err)
}
