package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind tags a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindReal
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is a tagged union over the sqlite storage classes. Conversion
// accessors are total: they coerce across kinds instead of failing, so
// callers never branch on Kind unless they care.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

func Null() Value          { return Value{kind: KindNull} }
func Int(v int64) Value    { return Value{kind: KindInt, i: v} }
func Real(v float64) Value { return Value{kind: KindReal, f: v} }
func Text(v string) Value  { return Value{kind: KindText, s: v} }
func Blob(v []byte) Value  { return Value{kind: KindBlob, b: v} }

// FromDriver converts anything database/sql hands back into a Value.
// Unrecognized types are stringified rather than dropped.
func FromDriver(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case int64:
		return Int(t)
	case float64:
		return Real(t)
	case string:
		return Text(t)
	case []byte:
		cp := make([]byte, len(t))
		copy(cp, t)
		return Blob(cp)
	case bool:
		if t {
			return Int(1)
		}
		return Int(0)
	case time.Time:
		return Text(t.UTC().Format(time.RFC3339))
	default:
		return Text(fmt.Sprint(t))
	}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Int64() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindReal:
		return int64(v.f)
	case KindText:
		n, _ := strconv.ParseInt(v.s, 10, 64)
		return n
	}
	return 0
}

func (v Value) Float64() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindReal:
		return v.f
	case KindText:
		f, _ := strconv.ParseFloat(v.s, 64)
		return f
	}
	return 0
}

func (v Value) Text() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	case KindBlob:
		return string(v.b)
	}
	return ""
}

func (v Value) Bytes() []byte {
	if v.kind == KindBlob {
		return v.b
	}
	if v.kind == KindNull {
		return nil
	}
	return []byte(v.Text())
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt:
		return json.Marshal(v.i)
	case KindReal:
		return json.Marshal(v.f)
	case KindText:
		return json.Marshal(v.s)
	case KindBlob:
		return json.Marshal(v.b)
	}
	return []byte("null"), nil
}
