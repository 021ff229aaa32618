// Package snapshot persists per-origin travel-time matrices to disk so a
// batch run's output can be reused without re-running the search. The
// matrix (nStops x nIterations int32 values) is the dominant per-origin
// allocation, so it is gzip-compressed via klauspost/compress/gzip, a
// drop-in faster replacement for the standard library's implementation.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

const magic = "TRPM" // transitraptor matrix

// Matrix is one origin's travel-time matrix, iteration-major exactly as
// raptor.SearchResult.TravelTimesToStopsPerIteration produces it.
type Matrix struct {
	NStops      int
	NIterations int
	Values      [][]int32 // [iteration][stop]
}

// Write serializes m to path as gzip-compressed little-endian int32s,
// prefixed by a small header (magic, stop count, iteration count).
func Write(path string, m *Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating snapshot file %s", path)
	}
	defer f.Close()

	gz, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if err != nil {
		return errors.Wrap(err, "creating gzip writer")
	}
	defer gz.Close()

	bw := bufio.NewWriter(gz)
	if err := writeHeader(bw, m.NStops, m.NIterations); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for _, row := range m.Values {
		for _, v := range row {
			binary.LittleEndian.PutUint32(buf, uint32(v))
			if _, err := bw.Write(buf); err != nil {
				return errors.Wrap(err, "writing matrix values")
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "flushing snapshot writer")
	}
	return nil
}

func writeHeader(w io.Writer, nStops, nIterations int) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return errors.Wrap(err, "writing magic")
	}
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], uint32(nStops))
	binary.LittleEndian.PutUint32(header[4:8], uint32(nIterations))
	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	return nil
}

// Read deserializes a Matrix previously written by Write.
func Read(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening snapshot file %s", path)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "creating gzip reader")
	}
	defer gz.Close()

	br := bufio.NewReader(gz)

	magicBuf := make([]byte, 4)
	if _, err := io.ReadFull(br, magicBuf); err != nil {
		return nil, errors.Wrap(err, "reading magic")
	}
	if string(magicBuf) != magic {
		return nil, errors.Errorf("snapshot %s: bad magic %q", path, magicBuf)
	}

	header := make([]byte, 8)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	nStops := int(binary.LittleEndian.Uint32(header[0:4]))
	nIterations := int(binary.LittleEndian.Uint32(header[4:8]))

	values := make([][]int32, nIterations)
	buf := make([]byte, 4)
	for i := 0; i < nIterations; i++ {
		row := make([]int32, nStops)
		for s := 0; s < nStops; s++ {
			if _, err := io.ReadFull(br, buf); err != nil {
				return nil, errors.Wrapf(err, "reading value at iteration %d stop %d", i, s)
			}
			row[s] = int32(binary.LittleEndian.Uint32(buf))
		}
		values[i] = row
	}

	return &Matrix{NStops: nStops, NIterations: nIterations, Values: values}, nil
}
