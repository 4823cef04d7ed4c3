package fractions

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
)

// serFlag is the set of wire-only bits layered onto the header byte mask
// alongside the in-memory Flag bits (SER_VALUE=0x04,
// SER_ZDELTA=0x08, SER_RAW=0x10).
type serFlag uint32

const (
	serValue  serFlag = 0x04
	serZDelta serFlag = 0x08
	serRaw    serFlag = 0x10
)

const maxZLen = 2 * Size * 8 // 2*PEG_SIZE*sizeof(int64)

// toDeltas exploits the near-geometric shape of a STD vector: deltas[0] is
// f[0], and deltas[i] is f[i] minus the expected decay of f[i-1].
func (v Vector) toDeltas() []int64 {
	deltas := make([]int64, Size)
	var prev int64
	for i := 0; i < Size; i++ {
		if i == 0 {
			deltas[0] = v.F[0]
			prev = v.F[0]
			continue
		}
		deltas[i] = v.F[i] - prev*(Rate-1)/Rate
		prev = v.F[i]
	}
	return deltas
}

// fromDeltas inverts toDeltas bucket-by-bucket.
func fromDeltas(deltas []int64) [Size]int64 {
	var f [Size]int64
	var prev int64
	for i := 0; i < Size; i++ {
		if i == 0 {
			f[0] = deltas[0]
			prev = f[0]
			continue
		}
		f[i] = deltas[i] + prev*(Rate-1)/Rate
		prev = f[i]
	}
	return f
}

// Pack serializes v to w using one of three wire forms:
// SER_VALUE when v is VALUE-form, SER_ZDELTA (deflate level 9 over the
// delta stream) for the common STD case, falling back to SER_RAW if
// deflate itself errors.
func (v Vector) Pack(w io.Writer) error {
	if v.Flags.has(Value) {
		header := uint32(v.Flags) | uint32(serValue)
		if err := writeU32(w, header); err != nil {
			return err
		}
		if err := writeU32(w, v.LockTime); err != nil {
			return err
		}
		return writeI64(w, v.F[0])
	}

	deltas := v.toDeltas()
	raw := make([]byte, Size*8)
	for i, d := range deltas {
		binary.LittleEndian.PutUint64(raw[i*8:], uint64(d))
	}

	var zbuf bytes.Buffer
	zw, zerr := flate.NewWriter(&zbuf, flate.BestCompression)
	if zerr == nil {
		if _, err := zw.Write(raw); err == nil {
			if err := zw.Close(); err == nil {
				header := uint32(v.Flags) | uint32(serZDelta)
				if err := writeU32(w, header); err != nil {
					return err
				}
				if err := writeU32(w, v.LockTime); err != nil {
					return err
				}
				if err := writeU64(w, uint64(zbuf.Len())); err != nil {
					return err
				}
				_, err := w.Write(zbuf.Bytes())
				return err
			}
		}
	}

	// deflate failed: fall back to raw
	header := uint32(v.Flags) | uint32(serRaw)
	if err := writeU32(w, header); err != nil {
		return err
	}
	if err := writeU32(w, v.LockTime); err != nil {
		return err
	}
	_, err := w.Write(raw)
	return err
}

// Unpack decodes a Vector from r, rejecting out-of-range zlen and deflate
// failures as corruption. After Unpack the in-memory flag becomes STD,
// except for the SER_VALUE shortcut which stays VALUE.
func Unpack(r io.Reader) (Vector, error) {
	var v Vector

	header, err := readU32(r)
	if err != nil {
		return v, err
	}
	lockTime, err := readU32(r)
	if err != nil {
		return v, err
	}
	v.LockTime = lockTime

	sf := serFlag(header)
	switch {
	case sf&serValue != 0:
		val, err := readI64(r)
		if err != nil {
			return v, err
		}
		v.Flags = Flag(header) &^ Flag(serValue|serZDelta|serRaw)
		v.Flags |= Value
		v.F[0] = val

	case sf&serZDelta != 0:
		zlen, err := readU64(r)
		if err != nil {
			return v, err
		}
		if zlen > uint64(maxZLen) {
			return v, fmt.Errorf("fractions: zlen %d exceeds max %d: corruption", zlen, maxZLen)
		}
		zdata := make([]byte, zlen)
		if _, err := io.ReadFull(r, zdata); err != nil {
			return v, err
		}
		zr := flate.NewReader(bytes.NewReader(zdata))
		defer zr.Close()
		raw := make([]byte, Size*8)
		if _, err := io.ReadFull(zr, raw); err != nil {
			return v, fmt.Errorf("fractions: deflate decode failed: %w: corruption", err)
		}
		deltas := make([]int64, Size)
		for i := range deltas {
			deltas[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		v.F = fromDeltas(deltas)
		v.Flags = (Flag(header) &^ Flag(serValue|serZDelta|serRaw)) | Std

	case sf&serRaw != 0:
		raw := make([]byte, Size*8)
		if _, err := io.ReadFull(r, raw); err != nil {
			return v, err
		}
		for i := 0; i < Size; i++ {
			v.F[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		v.Flags = (Flag(header) &^ Flag(serValue|serZDelta|serRaw)) | Std

	default:
		return v, fmt.Errorf("fractions: unrecognized serialization header 0x%x: corruption", header)
	}

	return v, nil
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeI64(w io.Writer, v int64) error {
	return writeU64(w, uint64(v))
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readI64(r io.Reader) (int64, error) {
	v, err := readU64(r)
	return int64(v), err
}
