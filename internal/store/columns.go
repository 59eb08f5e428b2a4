package store

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	keyColumnFile    = "path.col"
	vectorColumnFile = "vector.col"

	// maxKeyBytes rejects absurd length prefixes as corruption.
	maxKeyBytes = 1 << 20
)

// Key column: uvarint length + UTF-8 bytes per row.
// Vector column: dimension little-endian float32 values per row.
// A row exists only once both columns hold it; the key is written last.

func encodeKey(key string) []byte {
	buf := make([]byte, binary.MaxVarintLen64+len(key))
	n := binary.PutUvarint(buf, uint64(len(key)))
	n += copy(buf[n:], key)
	return buf[:n]
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// readKeyColumn decodes complete key records and returns them with the
// end offset of each. A torn final record is ignored.
func readKeyColumn(r io.Reader) (keys []string, ends []int64, err error) {
	br := bufio.NewReader(r)
	var offset int64
	for {
		n, err := binary.ReadUvarint(br)
		if err == io.EOF {
			return keys, ends, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return keys, ends, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("key column at offset %d: %w", offset, err)
		}
		if n > maxKeyBytes {
			return nil, nil, fmt.Errorf("key column at offset %d: length %d exceeds limit", offset, n)
		}

		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
				return keys, ends, nil
			}
			return nil, nil, fmt.Errorf("key column at offset %d: %w", offset, err)
		}

		var prefix [binary.MaxVarintLen64]byte
		offset += int64(binary.PutUvarint(prefix[:], n)) + int64(n)
		keys = append(keys, string(buf))
		ends = append(ends, offset)
	}
}

// readVectorColumn decodes rows fixed-width vectors.
func readVectorColumn(r io.Reader, rows, dimension int) ([][]float32, error) {
	br := bufio.NewReader(r)
	buf := make([]byte, 4*dimension)
	out := make([][]float32, rows)
	for i := 0; i < rows; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("vector column row %d: %w", i, err)
		}
		vec := make([]float32, dimension)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		out[i] = vec
	}
	return out, nil
}

// columnFile is an append-only file that can roll back a failed append.
type columnFile struct {
	f    *os.File
	size int64
}

func openColumnFile(path string, readOnly bool) (*columnFile, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &columnFile{f: f, size: info.Size()}, nil
}

// truncate drops everything past size.
func (c *columnFile) truncate(size int64) error {
	if err := c.f.Truncate(size); err != nil {
		return err
	}
	c.size = size
	return nil
}

// append writes p at the end. A short or failed write is rolled back.
func (c *columnFile) append(p []byte, sync bool) error {
	n, err := c.f.WriteAt(p, c.size)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err == nil && sync {
		err = c.f.Sync()
	}
	if err != nil {
		_ = c.f.Truncate(c.size)
		return err
	}
	c.size += int64(n)
	return nil
}

func (c *columnFile) close() error {
	return c.f.Close()
}
