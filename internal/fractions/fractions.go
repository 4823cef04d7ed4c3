// Package fractions implements the fixed-length denominational vector
// that backs every peg-accounted UTXO: PEG_SIZE signed buckets whose
// algebraic sum is the output's coin value, split at a network-wide
// supply index into a reserve (low) and liquid (high) part.
package fractions

import (
	"math/big"
)

const (
	// Size is the number of buckets in a fraction vector (PEG_SIZE).
	Size = 1200
	// Rate is the denomination ratio between adjacent buckets in
	// VALUE-expansion form (PEG_RATE).
	Rate = 200
	// MaxSupplyIndex is the highest valid peg supply index (PEG_MAX_SUPPLY_INDEX).
	MaxSupplyIndex = 1198
)

// Flag is the tag discipline for a Vector: either VALUE (a single scalar
// shorthand) or STD (PEG_SIZE explicit buckets), optionally combined with
// a notary mark.
type Flag uint32

// Bit layout matches the on-disk header mask exactly, so a
// packed header byte can be masked straight into a Flag.
const (
	Value   Flag = 0x01
	Std     Flag = 0x02
	NotaryF Flag = 0x20
	NotaryV Flag = 0x40
	NotaryL Flag = 0x80
)

func (f Flag) has(bit Flag) bool { return f&bit != 0 }

// Vector is a tagged fraction container: either VALUE form (a scalar in
// bucket 0) or STD form (PEG_SIZE explicit buckets). LockTime is only
// meaningful when a NotaryF/NotaryV mark is set.
type Vector struct {
	Flags    Flag
	LockTime uint32
	F        [Size]int64
}

// FromValue builds a VALUE-form vector holding the given scalar.
func FromValue(v int64) Vector {
	var vec Vector
	vec.Flags = Value
	vec.F[0] = v
	return vec
}

// FromStd builds a STD-form vector whose bucket 0 is the given scalar,
// expanded via the geometric split — the same shape ToStd would produce
// given VALUE(v), but tagged STD directly: init as VALUE, expand, then
// force the STD tag.
func FromStd(v int64) Vector {
	vec := FromValue(v)
	vec = vec.Std()
	vec.Flags = Std
	return vec
}

// Std returns the STD-form equivalent of v, expanding a VALUE scalar via
// the geometric split: bucket i (i < Size-1) takes
// floor(v/Rate) and the remainder falls into the last bucket. Idempotent
// on an already-STD vector.
func (v Vector) Std() Vector {
	if !v.Flags.has(Value) {
		return v
	}
	out := Vector{Flags: (v.Flags &^ Value) | Std, LockTime: v.LockTime}
	rem := v.F[0]
	for i := 0; i < Size; i++ {
		if i == Size-1 {
			out.F[i] = rem
			break
		}
		frac := rem / Rate
		out.F[i] = frac
		rem -= frac
	}
	return out
}

// toStd mutates v in place the way CFractions::ToStd does, used internally
// by operators that need a writable STD vector without reallocating twice.
func (v *Vector) toStd() {
	if !v.Flags.has(Value) {
		return
	}
	v.Flags = (v.Flags &^ Value) | Std
	rem := v.F[0]
	for i := 0; i < Size; i++ {
		if i == Size-1 {
			v.F[i] = rem
			break
		}
		frac := rem / Rate
		v.F[i] = frac
		rem -= frac
	}
}

// Total returns the algebraic sum of all buckets (or the VALUE scalar).
func (v Vector) Total() int64 {
	if v.Flags.has(Value) {
		return v.F[0]
	}
	var total int64
	for i := 0; i < Size; i++ {
		total += v.F[i]
	}
	return total
}

// Low returns the sum of buckets [0, s) — the reserve part.
func (v Vector) Low(s int) int64 {
	if v.Flags.has(Value) {
		return v.Std().Low(s)
	}
	var total int64
	for i := 0; i < s && i < Size; i++ {
		total += v.F[i]
	}
	return total
}

// High returns the sum of buckets [s, Size) — the liquid part.
func (v Vector) High(s int) int64 {
	if v.Flags.has(Value) {
		return v.Std().High(s)
	}
	var total int64
	for i := s; i < Size; i++ {
		if i < 0 {
			continue
		}
		total += v.F[i]
	}
	return total
}

// IsPositive reports whether every bucket is non-negative (true for any
// VALUE-form vector by construction).
func (v Vector) IsPositive() bool {
	if v.Flags.has(Value) {
		return true
	}
	for i := 0; i < Size; i++ {
		if v.F[i] < 0 {
			return false
		}
	}
	return true
}

// IsNegative reports whether every bucket is non-positive (never true for
// a VALUE-form vector).
func (v Vector) IsNegative() bool {
	if v.Flags.has(Value) {
		return false
	}
	for i := 0; i < Size; i++ {
		if v.F[i] > 0 {
			return false
		}
	}
	return true
}

// Positive returns the STD vector keeping only strictly-positive buckets,
// and the sum of the buckets kept.
func (v Vector) Positive() (Vector, int64) {
	if !v.Flags.has(Std) {
		return v.Std().Positive()
	}
	out := Vector{Flags: Std}
	var total int64
	for i := 0; i < Size; i++ {
		if v.F[i] <= 0 {
			continue
		}
		out.F[i] = v.F[i]
		total += v.F[i]
	}
	return out, total
}

// Negative returns the STD vector keeping only strictly-negative buckets,
// and the sum (negative) of the buckets kept.
func (v Vector) Negative() (Vector, int64) {
	if !v.Flags.has(Std) {
		return v.Std().Negative()
	}
	out := Vector{Flags: Std}
	var total int64
	for i := 0; i < Size; i++ {
		if v.F[i] >= 0 {
			continue
		}
		out.F[i] = v.F[i]
		total += v.F[i]
	}
	return out, total
}

// LowPart returns the STD vector zeroing buckets >= s, and the sum kept.
func (v Vector) LowPart(s int) (Vector, int64) {
	if !v.Flags.has(Std) {
		return v.Std().LowPart(s)
	}
	out := Vector{Flags: Std}
	var total int64
	for i := 0; i < s && i < Size; i++ {
		out.F[i] += v.F[i]
		total += v.F[i]
	}
	return out, total
}

// HighPart returns the STD vector zeroing buckets < s, and the sum kept.
func (v Vector) HighPart(s int) (Vector, int64) {
	if !v.Flags.has(Std) {
		return v.Std().HighPart(s)
	}
	out := Vector{Flags: Std}
	var total int64
	start := s
	if start < 0 {
		start = 0
	}
	for i := start; i < Size; i++ {
		out.F[i] += v.F[i]
		total += v.F[i]
	}
	return out, total
}

// RatioMul computes floor(value*part/total), escalating to a 128-bit
// intermediate when the int64 multiplication would overflow. This is the
// checked-multiplication discipline required for every i64*i64/i64
// product in ratio computations — exported so other packages performing
// the same kind of ratio arithmetic (internal/balance) share this
// overflow check instead of duplicating an unchecked version.
func RatioMul(value, part, total int64) int64 {
	return ratioMul(value, part, total)
}

// ratioMul is RatioMul's unexported implementation.
func ratioMul(value, part, total int64) int64 {
	if part == 0 || total == 0 {
		return 0
	}
	hi, lo := bits64Mul(value, part)
	if hi == 0 && lo>>63 == 0 {
		// fits in int64 without overflow (non-negative product case,
		// the common case for peg buckets which are never negative
		// on the value/part side of a ratio computation)
		return (value * part) / total
	}
	// overflow path: exact 128-bit product / total
	bv := big.NewInt(value)
	bp := big.NewInt(part)
	bt := big.NewInt(total)
	prod := new(big.Int).Mul(bv, bp)
	q := new(big.Int).Quo(prod, bt)
	return q.Int64()
}

// bits64Mul is a cheap overflow pre-check before falling back to math/big:
// it returns (0, 0) when value*part is known to fit in an int64 and
// (1, 0) otherwise. It does not compute the product's actual words.
func bits64Mul(value, part int64) (hi, lo uint64) {
	// Detect overflow the simple way: if both fit in 31 bits the product
	// always fits in int64, otherwise defer to the big.Int path by
	// reporting a nonzero hi word.
	av, ap := value, part
	if av < 0 {
		av = -av
	}
	if ap < 0 {
		ap = -ap
	}
	if av == 0 || ap == 0 {
		return 0, 0
	}
	if av <= (1<<31)-1 && ap <= (1<<31)-1 {
		return 0, 0
	}
	// conservatively force the big.Int path for anything else
	return 1, 0
}

// RatioPart produces a new STD vector with total exactly p: each bucket
// approximates floor(f[i]*p/T) where T = v.Total(). Any truncation
// shortfall is distributed by incrementing buckets in ascending index
// order, starting at the first non-zero source bucket, cycling until the
// shortfall is exhausted; a bucket is never pushed past its source value.
// Returns the empty vector when p==0 or T==0, and v.Std() when p>=T.
func (v Vector) RatioPart(p int64) Vector {
	if !v.Flags.has(Std) {
		return v.Std().RatioPart(p)
	}
	total := v.Total()
	out := Vector{Flags: Std}
	if p == 0 || total == 0 {
		return out
	}
	if p >= total {
		return v.Std()
	}

	adjustFrom := Size
	var sum int64
	for i := 0; i < Size; i++ {
		fi := v.F[i]
		if fi != 0 && i < adjustFrom {
			adjustFrom = i
		}
		out.F[i] = ratioMul(fi, p, total)
		sum += out.F[i]
	}

	if sum >= p {
		return out
	}

	idx := adjustFrom
	remaining := p - sum
	for remaining > 0 {
		if out.F[idx] < v.F[idx] {
			remaining--
			out.F[idx]++
		}
		idx++
		if idx >= Size {
			idx = adjustFrom
		}
	}
	return out
}

// MoveRatioPartTo moves up to p of value from v into dst, mutating both in
// place, and returns the uncompleted amount: when v's total is less than
// p, the whole of v is moved and p-T is returned.
func (v *Vector) MoveRatioPartTo(p int64, dst *Vector) int64 {
	total := v.Total()
	if total == 0 {
		return p
	}
	if p == 0 {
		return 0
	}
	v.toStd()
	dst.toStd()

	if p >= total {
		dst.Add(*v)
		for i := 0; i < Size; i++ {
			v.F[i] = 0
		}
		return p - total
	}

	adjustFrom := Size
	var sum int64
	moved := make([]int64, Size)
	for i := 0; i < Size; i++ {
		fi := v.F[i]
		if fi != 0 && i < adjustFrom {
			adjustFrom = i
		}
		mv := ratioMul(fi, p, total)
		moved[i] = mv
		sum += mv
	}

	if sum < p {
		idx := adjustFrom
		remaining := p - sum
		for remaining > 0 {
			if v.F[idx]-moved[idx] > 0 {
				remaining--
				moved[idx]++
			}
			idx++
			if idx >= Size {
				idx = adjustFrom
			}
		}
	}

	for i := 0; i < Size; i++ {
		dst.F[i] += moved[i]
		v.F[i] -= moved[i]
	}
	return 0
}

// Add adds b into v bucket-wise, auto-promoting both to STD first.
func (v *Vector) Add(b Vector) {
	if !b.Flags.has(Std) {
		b = b.Std()
	}
	v.toStd()
	for i := 0; i < Size; i++ {
		v.F[i] += b.F[i]
	}
}

// Sub subtracts b from v bucket-wise, auto-promoting both to STD first.
func (v *Vector) Sub(b Vector) {
	if !b.Flags.has(Std) {
		b = b.Std()
	}
	v.toStd()
	for i := 0; i < Size; i++ {
		v.F[i] -= b.F[i]
	}
}

// Plus returns v+b without mutating either operand.
func Plus(a, b Vector) Vector {
	out := a.Std()
	out.Add(b)
	return out
}

// Minus returns a-b without mutating either operand.
func Minus(a, b Vector) Vector {
	out := a.Std()
	out.Sub(b)
	return out
}

// Neg returns the bucket-wise negation of v.
func (v Vector) Neg() Vector {
	out := v.Std()
	for i := 0; i < Size; i++ {
		out.F[i] = -out.F[i]
	}
	return out
}

// And returns the bucket-wise conservative intersection of a and b: the
// same-sign minimum of magnitudes, zero on sign mismatch.
func And(a, b Vector) Vector {
	out := a.Std()
	bs := b.Std()
	for i := 0; i < Size; i++ {
		va, vb := out.F[i], bs.F[i]
		switch {
		case va >= 0 && vb >= 0:
			out.F[i] = min64(va, vb)
		case va < 0 && vb < 0:
			out.F[i] = max64(va, vb)
		default:
			out.F[i] = 0
		}
	}
	return out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Distortion returns a scaled symmetric measure of how much v differs
// from other: when totals are equal, sum(max(0, v[i]-other[i]))/total.
// When totals differ, the larger vector is scaled down to the smaller's
// total via RatioPart first.
func (v Vector) Distortion(other Vector) float64 {
	ta := v.Total()
	tb := other.Total()

	if ta == tb {
		if ta == 0 {
			return 0
		}
		a := v.Std()
		b := other.Std()
		var diff int64
		for i := 0; i < Size; i++ {
			if a.F[i] > b.F[i] {
				diff += a.F[i] - b.F[i]
			}
		}
		return float64(diff) / float64(ta)
	}

	if ta < tb {
		if ta == 0 {
			return float64(tb)
		}
		scaled := other.RatioPart(ta)
		return v.Distortion(scaled)
	}

	// ta > tb
	if tb == 0 {
		return float64(ta)
	}
	scaled := v.RatioPart(tb)
	return scaled.Distortion(other)
}
