package model

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// MissingMarker is the rendered form of a missing value.
const MissingMarker = "N/A"

// ValueKind discriminates Value contents.
type ValueKind uint8

const (
	// KindMissing marks a field that was absent, null, or the literal N/A.
	KindMissing ValueKind = iota
	// KindString holds a normalized (lowercased) string.
	KindString
	// KindNumber holds a numeric value. Integers compare exactly at any
	// magnitude; fractional values compare as float64.
	KindNumber
)

// Value is a single extracted field value. It is comparable and safe to use
// as a map key.
type Value struct {
	kind ValueKind
	// str is the string payload, or the canonical number text for numbers.
	str string
	num float64
}

// Missing returns the missing-value sentinel.
func Missing() Value { return Value{kind: KindMissing} }

// String returns a string value. The caller is responsible for normalization.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n, str: numberKey(n)} }

// ParseNumber returns a numeric value for a JSON number literal. Integer
// literals keep full precision, so 9007199254740993 and 9007199254740992
// stay distinct.
func ParseNumber(s string) (Value, bool) {
	if isIntegerText(s) {
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return Value{}, false
		}
		f, _ := new(big.Float).SetInt(i).Float64()
		return Value{kind: KindNumber, num: f, str: i.String()}, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Value{}, false
	}
	return Number(f), true
}

// numberKey is the canonical comparison text of n. Integral values use exact
// integer digits so they match integer literals of the same value.
func numberKey(n float64) string {
	if !math.IsInf(n, 0) && !math.IsNaN(n) && n == math.Trunc(n) {
		i, _ := big.NewFloat(n).Int(nil)
		return i.String()
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func isIntegerText(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Kind reports the value kind.
func (v Value) Kind() ValueKind { return v.kind }

// IsMissing reports whether v is the missing sentinel.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload and whether v is a number. Integers beyond
// float64 precision are rounded.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// String renders v for reports. Integers render with all their digits,
// other numbers in the shortest form that round-trips.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if isIntegerText(v.str) {
			return v.str
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return MissingMarker
	}
}

// MarshalJSON encodes strings and numbers natively and the sentinel as "N/A".
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if isIntegerText(v.str) {
			return []byte(v.str), nil
		}
		return json.Marshal(v.num)
	default:
		return json.Marshal(MissingMarker)
	}
}
