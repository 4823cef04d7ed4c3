// Package pegdata implements the serialized tuple exchanged between the
// engine and outside callers: a FractionVector, the PegLevel it was cut
// at, and the resulting reserve/liquid scalars. It is the exchange-wire
// format named PegData.
package pegdata

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/peglevel"
)

// Data is the exchange-wire value object: Fractions, the Level it was cut
// against, and the reserve/liquid split. FromString only returns a
// decoded Data whose Reserve+Liquid equals Fractions.Total(); IsValid
// itself checks the Level alone.
type Data struct {
	Fractions fractions.Vector
	Level     peglevel.Level
	Reserve   int64
	Liquid    int64
}

// FromString decodes a base64 PegData blob, tolerating the legacy
// encoding that omits the trailing Reserve/Liquid scalars: when
// Pack/Unpack fails, reserve/liquid are derived from the fractions
// themselves at the level's effective bucket.
// An empty string decodes to the zero Data with an invalid Level, matching
// CPegData's empty-constructor behavior.
func FromString(s string) Data {
	if s == "" {
		return Data{}
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Data{}
	}

	if d, ok := unpackFull(raw); ok {
		return d
	}
	if d, ok := unpackLegacy(raw); ok {
		return d
	}
	return Data{}
}

// unpackFull is the current wire shape: fractions ∥ peglevel-hex-length-
// prefixed ∥ peglevel-hex ∥ reserve:i64 ∥ liquid:i64, then validated against
// the level's effective bucket.
func unpackFull(raw []byte) (Data, bool) {
	r := bytes.NewReader(raw)

	fr, err := fractions.Unpack(r)
	if err != nil {
		return Data{}, false
	}

	hexLen, err := readByte(r)
	if err != nil {
		return Data{}, false
	}
	hexBuf := make([]byte, hexLen)
	if _, err := readFull(r, hexBuf); err != nil {
		return Data{}, false
	}
	lvl := peglevel.FromHex(string(hexBuf))
	if !lvl.IsValid() {
		return Data{}, false
	}

	reserve, err := readI64(r)
	if err != nil {
		return Data{}, false
	}
	liquid, err := readI64(r)
	if err != nil {
		return Data{}, false
	}

	if reserve+liquid != fr.Total() {
		return Data{}, false
	}
	if !reserveLiquidConsistent(fr, lvl, reserve, liquid) {
		return Data{}, false
	}

	return Data{Fractions: fr, Level: lvl, Reserve: reserve, Liquid: liquid}, true
}

// unpackLegacy decodes a pre-reserve/liquid blob: fractions ∥ peglevel
// only, with reserve/liquid derived from the fractions at the level's
// effective bucket (mirrors CPegData::Unpack1's legacy layout).
func unpackLegacy(raw []byte) (Data, bool) {
	r := bytes.NewReader(raw)

	fr, err := fractions.Unpack(r)
	if err != nil {
		return Data{}, false
	}
	hexLen, err := readByte(r)
	if err != nil {
		return Data{}, false
	}
	hexBuf := make([]byte, hexLen)
	if _, err := readFull(r, hexBuf); err != nil {
		return Data{}, false
	}
	lvl := peglevel.FromHex(string(hexBuf))
	if !lvl.IsValid() {
		return Data{}, false
	}

	effective := lvl.Effective()
	reserve := fr.Low(effective)
	liquid := fr.High(effective)

	return Data{Fractions: fr, Level: lvl, Reserve: reserve, Liquid: liquid}, true
}

// reserveLiquidConsistent re-derives the reserve/liquid boundary at the
// level's effective bucket. When the level has a partial bucket, it checks
// the stored scalars are no smaller than what the fractions outside that
// bucket produce; otherwise they must match the derived values exactly
// (CPegData::Unpack's validation).
func reserveLiquidConsistent(fr fractions.Vector, lvl peglevel.Level, reserve, liquid int64) bool {
	effective := lvl.Effective()
	partial := lvl.ShiftLastPart > 0 && lvl.ShiftLastTotal > 0

	if partial {
		effective++
		liquidWithoutPartial := fr.High(effective)
		reserveWithoutPartial := fr.Low(effective - 1)
		if liquid < liquidWithoutPartial {
			return false
		}
		if reserve < reserveWithoutPartial {
			return false
		}
		return true
	}

	liquidCalc := fr.High(effective)
	reserveCalc := fr.Low(effective)
	return liquid == liquidCalc && reserve == reserveCalc
}

// IsValid reports whether d's Level is valid (CPegData::IsValid delegates
// entirely to the level, as the fractions/scalars are only meaningful
// alongside a valid cut point).
func (d Data) IsValid() bool {
	return d.Level.IsValid()
}

// ToString serializes d to the base64 wire form: fractions ∥ length-
// prefixed peglevel hex ∥ reserve:i64 ∥ liquid:i64.
func (d Data) ToString() string {
	var buf bytes.Buffer
	if err := d.Fractions.Pack(&buf); err != nil {
		return ""
	}

	hx := d.Level.ToHex()
	if len(hx) > 255 {
		return ""
	}
	buf.WriteByte(byte(len(hx)))
	buf.WriteString(hx)

	writeI64(&buf, d.Reserve)
	writeI64(&buf, d.Liquid)

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func readByte(r *bytes.Reader) (byte, error) {
	return r.ReadByte()
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err == nil && n != len(b) {
		err = fmt.Errorf("pegdata: short read")
	}
	return n, err
}

func readI64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return int64(v), nil
}

func writeI64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u)
		u >>= 8
	}
	buf.Write(b[:])
}
