package command

import (
  "encoding/json"
  "errors"
  "fmt"
)

var (
  // The reply had no line left to decode once the trailing return code line was removed.
  ErrMalformedResponse = errors.New("malformed response")
  // The reply body is not a JSON object carrying an integer status.
  ErrDecode = errors.New("cannot decode response")
  // A command or one of its arguments cannot be sent as is.
  ErrInvalidArgument = errors.New("invalid argument")
)

const (
  fieldStatus = "status"
  fieldError = "error"
  fieldResult = "result"
  fieldName = "name"
  fieldArguments = "arguments"
)

// Result is the outcome of a single command. A result with a non-zero status is still a
// successfully decoded reply: it is up to the caller to check Success().
type Result struct {
  status Status
  errMsg string
  payload Value
  name string
  arguments []string
  returnCode int

  hasError bool
  hasPayload bool
  hasReturnCode bool
}

// FromMap builds a Result out of a decoded JSON object. The "status" key is required and must
// be an integer; "error" and "result" are optional.
func FromMap(obj map[string]any) (r Result, err error) {
  rawStatus, ok := obj[fieldStatus]
  if !ok {
    return r, fmt.Errorf("%w: missing %q field", ErrDecode, fieldStatus)
  }

  status, ok := ValueOf(rawStatus).Int()
  if !ok || int64(int(status)) != status {
    return r, fmt.Errorf("%w: %q is not an integer: %v", ErrDecode, fieldStatus, rawStatus)
  }

  r.status = Status(status)

  if rawErr, ok := obj[fieldError]; ok && rawErr != nil {
    r.hasError = true

    if s, ok := rawErr.(string); ok {
      r.errMsg = s
    } else {
      r.errMsg = ValueOf(rawErr).String()
    }
  }

  if rawResult, ok := obj[fieldResult]; ok && rawResult != nil {
    r.hasPayload = true
    r.payload = ValueOf(rawResult)
  }

  if name, ok := obj[fieldName].(string); ok {
    r.name = name
  }

  if args, ok := ValueOf(obj[fieldArguments]).Strings(); ok {
    r.arguments = args
  }

  return r, nil
}

// Decode parses a single JSON document into a Result.
func Decode(data []byte) (Result, error) {
  var body Value

  if err := body.UnmarshalJSON(data); err != nil {
    return Result{}, fmt.Errorf("%w: %v", ErrDecode, err)
  }

  obj, ok := body.Interface().(map[string]any)
  if !ok {
    return Result{}, fmt.Errorf("%w: expected a JSON object, got %v", ErrDecode, body.Kind())
  }

  return FromMap(obj)
}

func (r Result) Status() Status {
  return r.status
}

func (r Result) Success() bool {
  return r.status == StatusSuccess
}

// ErrorMessage returns the error reported by the device, if any.
func (r Result) ErrorMessage() (string, bool) {
  return r.errMsg, r.hasError
}

// Payload returns the command specific result. It is null when the reply carries no result.
func (r Result) Payload() Value {
  return r.payload
}

func (r Result) HasPayload() bool {
  return r.hasPayload
}

// Name is the command name echoed back by the firmware, empty if the reply did not carry it.
func (r Result) Name() string {
  return r.name
}

func (r Result) Arguments() []string {
  if r.arguments == nil {
    return nil
  }

  out := make([]string, len(r.arguments))
  copy(out, r.arguments)

  return out
}

// ReturnCode is only available when the trailing line has been parsed (TrailerParsed).
func (r Result) ReturnCode() (int, bool) {
  return r.returnCode, r.hasReturnCode
}

func (r Result) withReturnCode(rc int) Result {
  r.returnCode = rc
  r.hasReturnCode = true
  return r
}

func (r Result) String() string {
  if r.Success() {
    return fmt.Sprintf("result:success(%v)", r.payload)
  }

  if r.hasError {
    return fmt.Sprintf("result:failure(status=%d, error=%q)", r.status, r.errMsg)
  }

  return fmt.Sprintf("result:failure(status=%d)", r.status)
}

// MarshalJSON renders the result back in the wire shape.
func (r Result) MarshalJSON() ([]byte, error) {
  obj := map[string]any{
    fieldStatus: int(r.status),
  }

  if r.hasError {
    obj[fieldError] = r.errMsg
  }

  if r.hasPayload {
    obj[fieldResult] = r.payload
  }

  if r.name != "" {
    obj[fieldName] = r.name
  }

  if r.arguments != nil {
    obj[fieldArguments] = r.arguments
  }

  return json.Marshal(obj)
}
