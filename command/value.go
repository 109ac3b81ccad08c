package command

import (
  "bytes"
  "encoding/json"
  "fmt"
  "io"
  "math"
  "strconv"
)

type Kind uint8

const (
  KindNull Kind = iota
  KindBool
  KindNumber
  KindString
  KindArray
  KindObject
)

func (k Kind) String() string {
  switch k {
  case KindNull:
    return "null"
  case KindBool:
    return "bool"
  case KindNumber:
    return "number"
  case KindString:
    return "string"
  case KindArray:
    return "array"
  case KindObject:
    return "object"
  default:
    panic("unknown Kind value: " + strconv.Itoa(int(k)))
  }
}

// Value is an untyped JSON value as found in the result of a command. The shape depends on the
// command that produced it; callers are expected to check it with Kind() or the typed accessors.
//
// The zero value is null.
type Value struct {
  raw any
}

// ValueOf builds a Value out of a Go value. Values already shaped like the output of a
// json.Decoder with UseNumber() are kept as is, anything else goes through a JSON round trip.
func ValueOf(v any) Value {
  if n, ok := normalize(v); ok {
    return Value{raw: n}
  }

  data, err := json.Marshal(v)
  if err != nil {
    panic(fmt.Sprintf("command: cannot convert %T to a JSON value: %v", v, err))
  }

  var out Value
  if err := out.UnmarshalJSON(data); err != nil {
    panic(fmt.Sprintf("command: cannot convert %T to a JSON value: %v", v, err))
  }

  return out
}

func normalize(v any) (any, bool) {
  switch t := v.(type) {
  case nil:
    return nil, true
  case Value:
    return t.raw, true
  case bool, string, json.Number:
    return t, true
  case int:
    return json.Number(strconv.FormatInt(int64(t), 10)), true
  case int64:
    return json.Number(strconv.FormatInt(t, 10)), true
  case int32:
    return json.Number(strconv.FormatInt(int64(t), 10)), true
  case uint8:
    return json.Number(strconv.FormatUint(uint64(t), 10)), true
  case uint16:
    return json.Number(strconv.FormatUint(uint64(t), 10)), true
  case uint32:
    return json.Number(strconv.FormatUint(uint64(t), 10)), true
  case float64:
    return json.Number(strconv.FormatFloat(t, 'g', -1, 64)), true
  case []string:
    out := make([]any, len(t))
    for i, s := range t {
      out[i] = s
    }
    return out, true
  case []any:
    out := make([]any, len(t))
    for i, elem := range t {
      n, ok := normalize(elem)
      if !ok {
        return nil, false
      }
      out[i] = n
    }
    return out, true
  case map[string]any:
    out := make(map[string]any, len(t))
    for k, elem := range t {
      n, ok := normalize(elem)
      if !ok {
        return nil, false
      }
      out[k] = n
    }
    return out, true
  }

  return nil, false
}

func (v Value) Kind() Kind {
  switch v.raw.(type) {
  case bool:
    return KindBool
  case json.Number:
    return KindNumber
  case string:
    return KindString
  case []any:
    return KindArray
  case map[string]any:
    return KindObject
  default:
    return KindNull
  }
}

func (v Value) IsNull() bool {
  return v.Kind() == KindNull
}

func (v Value) Bool() (bool, bool) {
  b, ok := v.raw.(bool)
  return b, ok
}

// Int returns the value as an integer. Numbers with a fractional part are rejected.
func (v Value) Int() (int64, bool) {
  n, ok := v.raw.(json.Number)
  if !ok {
    return 0, false
  }

  if i, err := n.Int64(); err == nil {
    return i, true
  }

  f, err := n.Float64()
  if err != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
    return 0, false
  }

  return int64(f), true
}

func (v Value) Float() (float64, bool) {
  n, ok := v.raw.(json.Number)
  if !ok {
    return 0, false
  }

  f, err := n.Float64()
  return f, err == nil
}

// Str returns the value if it is a JSON string. String() renders any value as JSON instead.
func (v Value) Str() (string, bool) {
  s, ok := v.raw.(string)
  return s, ok
}

// Strings returns the value as a list of strings if it is an array made only of strings.
func (v Value) Strings() ([]string, bool) {
  arr, ok := v.raw.([]any)
  if !ok {
    return nil, false
  }

  out := make([]string, len(arr))
  for i, elem := range arr {
    s, ok := elem.(string)
    if !ok {
      return nil, false
    }
    out[i] = s
  }

  return out, true
}

// Len is the number of elements of an array or object, 0 for anything else.
func (v Value) Len() int {
  switch t := v.raw.(type) {
  case []any:
    return len(t)
  case map[string]any:
    return len(t)
  default:
    return 0
  }
}

// Index returns the i-th element of an array, null when out of range or not an array.
func (v Value) Index(i int) Value {
  arr, ok := v.raw.([]any)
  if !ok || i < 0 || i >= len(arr) {
    return Value{}
  }

  return Value{raw: arr[i]}
}

func (v Value) Lookup(key string) (Value, bool) {
  obj, ok := v.raw.(map[string]any)
  if !ok {
    return Value{}, false
  }

  elem, ok := obj[key]
  return Value{raw: elem}, ok
}

// Get returns the member of an object, null if missing or not an object.
func (v Value) Get(key string) Value {
  elem, _ := v.Lookup(key)
  return elem
}

func (v Value) Array() []Value {
  arr, ok := v.raw.([]any)
  if !ok {
    return nil
  }

  out := make([]Value, len(arr))
  for i, elem := range arr {
    out[i] = Value{raw: elem}
  }

  return out
}

func (v Value) Object() map[string]Value {
  obj, ok := v.raw.(map[string]any)
  if !ok {
    return nil
  }

  out := make(map[string]Value, len(obj))
  for k, elem := range obj {
    out[k] = Value{raw: elem}
  }

  return out
}

// Interface returns the underlying representation: nil, bool, json.Number, string, []any or
// map[string]any.
func (v Value) Interface() any {
  return v.raw
}

func (v Value) MarshalJSON() ([]byte, error) {
  return json.Marshal(v.raw)
}

func (v *Value) UnmarshalJSON(data []byte) error {
  dec := json.NewDecoder(bytes.NewReader(data))
  dec.UseNumber()

  var raw any
  if err := dec.Decode(&raw); err != nil {
    return err
  }

  if _, err := dec.Token(); err != io.EOF {
    return fmt.Errorf("unexpected data after the JSON value at offset %d", dec.InputOffset())
  }

  v.raw = raw
  return nil
}

func (v Value) String() string {
  data, err := json.Marshal(v.raw)
  if err != nil {
    return fmt.Sprintf("%v", v.raw)
  }

  return string(data)
}
