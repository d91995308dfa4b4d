package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// AmountBits is the width of every on-chain quantity.
const AmountBits = 128

// Amount is an unsigned 128-bit quantity. Arithmetic is carried out in 256
// bits so intermediate products never wrap; results that do not fit back into
// 128 bits are reported to the caller.
type Amount struct {
	v uint256.Int
}

// NewAmount wraps a uint64.
func NewAmount(x uint64) Amount {
	var a Amount
	a.v.SetUint64(x)
	return a
}

// ParseAmount parses a base-10 string. Values above 2^128-1 are rejected.
func ParseAmount(s string) (Amount, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Amount{}, fmt.Errorf("amount: empty value")
	}
	if strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "-") {
		return Amount{}, fmt.Errorf("amount: invalid value %q", s)
	}
	v, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return Amount{}, fmt.Errorf("amount: invalid value %q: %w", s, err)
	}
	if v.BitLen() > AmountBits {
		return Amount{}, fmt.Errorf("amount: %s exceeds 128 bits", trimmed)
	}
	return Amount{v: *v}, nil
}

// MustAmount is ParseAmount that panics; intended for constants and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MaxAmount returns 2^128-1.
func MaxAmount() Amount {
	var a Amount
	a.v.Lsh(uint256.NewInt(1), AmountBits)
	a.v.SubUint64(&a.v, 1)
	return a
}

func fromU256(v *uint256.Int) (Amount, bool) {
	if v.BitLen() > AmountBits {
		return Amount{}, false
	}
	return Amount{v: *v}, true
}

func (a Amount) String() string { return a.v.Dec() }

func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) Lt(b Amount) bool { return a.v.Lt(&b.v) }

func (a Amount) Gt(b Amount) bool { return a.v.Gt(&b.v) }

// Uint64 truncates; use IsUint64 first when the value may be large.
func (a Amount) Uint64() uint64 { return a.v.Uint64() }

func (a Amount) IsUint64() bool { return a.v.IsUint64() }

// Float64 is a lossy conversion for metrics.
func (a Amount) Float64() float64 {
	f, _ := new(big.Float).SetInt(a.v.ToBig()).Float64()
	return f
}

// CheckedAdd returns a+b and false if the sum exceeds 128 bits.
func (a Amount) CheckedAdd(b Amount) (Amount, bool) {
	var sum uint256.Int
	sum.Add(&a.v, &b.v)
	return fromU256(&sum)
}

// CheckedSub returns a-b and false when b > a.
func (a Amount) CheckedSub(b Amount) (Amount, bool) {
	if a.v.Lt(&b.v) {
		return Amount{}, false
	}
	var diff uint256.Int
	diff.Sub(&a.v, &b.v)
	return Amount{v: diff}, true
}

// SaturatingSub returns a-b or zero when b > a.
func (a Amount) SaturatingSub(b Amount) Amount {
	diff, ok := a.CheckedSub(b)
	if !ok {
		return Amount{}
	}
	return diff
}

// MulDiv returns floor(a*mul/div). It fails when div is zero or the quotient
// does not fit 128 bits.
func MulDiv(a, mul, div Amount) (Amount, bool) {
	if div.IsZero() {
		return Amount{}, false
	}
	var prod, quo uint256.Int
	// Operands are at most 128 bits wide so the product fits 256 bits.
	prod.Mul(&a.v, &mul.v)
	quo.Div(&prod, &div.v)
	return fromU256(&quo)
}

// MarshalJSON renders the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a quoted decimal string or a bare integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*a = Amount{}
		return nil
	}
	var s string
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
	} else {
		s = string(trimmed)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText renders the decimal form; TOML config files use it.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// EncodeRLP stores the amount as a big-endian byte string.
func (a Amount) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, a.v.Bytes())
}

// DecodeRLP restores an amount written by EncodeRLP.
func (a *Amount) DecodeRLP(s *rlp.Stream) error {
	raw, err := s.Bytes()
	if err != nil {
		return err
	}
	if len(raw) > AmountBits/8 {
		return fmt.Errorf("amount: encoded value exceeds 128 bits")
	}
	a.v.SetBytes(raw)
	return nil
}
