// Package encoding converts codewords and vectors to and from their
// little-endian byte representation. The codeword encoding doubles as the
// in-memory bucket key and as the BLOB stored in the SQLite backend, so both
// backends agree on byte-equality of hashes.
package encoding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
)

// ErrInvalidCodeword is returned when a blob cannot be decoded back to a codeword
var ErrInvalidCodeword = errors.New("invalid codeword blob")

// ErrInvalidVector is returned when a blob cannot be decoded back to a vector
var ErrInvalidVector = errors.New("invalid vector blob")

// Element is the integer type of a single codeword entry.
type Element interface {
	~int8 | ~int16 | ~int32 | ~int64
}

// Numeric covers the scalar types accepted as vector entries.
type Numeric interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// ElementSize returns the width in bytes of the codeword element type.
func ElementSize[E Element]() int {
	var e E
	return int(reflect.TypeOf(e).Size())
}

// ElementRange returns the smallest and largest value representable by E.
func ElementRange[E Element]() (min, max int64) {
	bits := uint(ElementSize[E]() * 8)
	max = int64(1)<<(bits-1) - 1
	min = -max - 1
	return min, max
}

// EncodeCodeword serializes a codeword as raw little-endian element bytes.
func EncodeCodeword[E Element](code []E) []byte {
	size := ElementSize[E]()
	buf := make([]byte, len(code)*size)
	for i, v := range code {
		u := uint64(int64(v))
		off := i * size
		for b := 0; b < size; b++ {
			buf[off+b] = byte(u >> (8 * b))
		}
	}
	return buf
}

// DecodeCodeword deserializes a blob produced by EncodeCodeword.
func DecodeCodeword[E Element](blob []byte) ([]E, error) {
	size := ElementSize[E]()
	if len(blob)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of element size %d", ErrInvalidCodeword, len(blob), size)
	}
	code := make([]E, len(blob)/size)
	shift := uint(64 - 8*size)
	for i := range code {
		var u uint64
		off := i * size
		for b := 0; b < size; b++ {
			u |= uint64(blob[off+b]) << (8 * b)
		}
		// sign extend from the element width
		code[i] = E(int64(u<<shift) >> shift)
	}
	return code, nil
}

// EncodeVector serializes a vector as a little-endian length-prefixed blob.
// Entries are widened to float64, which round-trips exactly for float32 and
// for the integer magnitudes used as MinHash inputs.
func EncodeVector[N Numeric](v []N) ([]byte, error) {
	buf := new(bytes.Buffer)
	if len(v) > 1<<31-1 {
		return nil, fmt.Errorf("vector too large: %d elements", len(v))
	}
	if err := binary.Write(buf, binary.LittleEndian, int32(len(v))); err != nil {
		return nil, fmt.Errorf("failed to encode vector length: %w", err)
	}
	for _, x := range v {
		if err := binary.Write(buf, binary.LittleEndian, float64(x)); err != nil {
			return nil, fmt.Errorf("failed to encode vector value: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeVector deserializes a blob produced by EncodeVector.
func DecodeVector[N Numeric](blob []byte) ([]N, error) {
	if len(blob) < 4 {
		return nil, ErrInvalidVector
	}
	buf := bytes.NewReader(blob)
	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to decode vector length: %w", err)
	}
	if length < 0 || buf.Len() < int(length)*8 {
		return nil, ErrInvalidVector
	}
	v := make([]N, length)
	for i := range v {
		var x float64
		if err := binary.Read(buf, binary.LittleEndian, &x); err != nil {
			return nil, fmt.Errorf("failed to decode vector value at index %d: %w", i, err)
		}
		v[i] = N(x)
	}
	return v, nil
}
