package command

import (
  "fmt"
  "regexp"
  "strconv"
  "strings"
)

// TrailerPolicy describes the line the firmware appends after the JSON body of a reply.
type TrailerPolicy uint8

const (
  // One trailing return code line is dropped without looking at it.
  TrailerReturnCode TrailerPolicy = iota
  // The trailing line is dropped and parsed as a return code.
  TrailerParsed
  // There is no trailing line: the whole reply is the JSON body.
  TrailerNone
)

// ReturnCodePattern matches the return code line printed by the device command line,
// either "retcode: N" or "RC=N".
var ReturnCodePattern = regexp.MustCompile(`^\s*(?:retcode:\s*|RC=)(-?\d+)\s*$`)

func (p TrailerPolicy) String() string {
  switch p {
  case TrailerReturnCode:
    return "return-code"
  case TrailerParsed:
    return "parsed"
  case TrailerNone:
    return "none"
  default:
    return fmt.Sprintf("TrailerPolicy(%d)", uint8(p))
  }
}

// *flag.Value
func (p *TrailerPolicy) Set(v string) error {
  for _, candidate := range []TrailerPolicy{TrailerReturnCode, TrailerParsed, TrailerNone} {
    if candidate.String() == v {
      *p = candidate
      return nil
    }
  }

  return fmt.Errorf("unknown trailer policy %q (must be one of return-code, parsed, none)", v)
}

func (p TrailerPolicy) MarshalText() ([]byte, error) {
  return []byte(p.String()), nil
}

func (p *TrailerPolicy) UnmarshalText(text []byte) error {
  return p.Set(string(text))
}

// ParseReturnCode extracts the code out of a return code line.
func ParseReturnCode(line string) (int, error) {
  m := ReturnCodePattern.FindStringSubmatch(line)
  if m == nil {
    return 0, fmt.Errorf("%w: %q is not a return code line", ErrMalformedResponse, line)
  }

  rc, err := strconv.Atoi(m[1])
  if err != nil {
    return 0, fmt.Errorf("%w: invalid return code in %q: %v", ErrMalformedResponse, line, err)
  }

  return rc, nil
}

// ParseResponse turns the raw lines of a reply into a Result. The lines are not modified.
func ParseResponse(policy TrailerPolicy, lines []string) (Result, error) {
  body := lines
  rc, hasRC := 0, false

  switch policy {
  case TrailerReturnCode, TrailerParsed:
    if len(lines) == 0 {
      return Result{}, fmt.Errorf("%w: empty response", ErrMalformedResponse)
    }

    body = lines[:len(lines)-1]

    if policy == TrailerParsed {
      code, err := ParseReturnCode(lines[len(lines)-1])
      if err != nil {
        return Result{}, err
      }

      rc, hasRC = code, true
    }
  case TrailerNone:
  default:
    return Result{}, fmt.Errorf("%w: unknown trailer policy %v", ErrMalformedResponse, policy)
  }

  if len(body) == 0 {
    return Result{}, fmt.Errorf("%w: no line left to decode", ErrMalformedResponse)
  }

  res, err := Decode([]byte(strings.Join(body, "")))
  if err != nil {
    return Result{}, err
  }

  if hasRC {
    res = res.withReturnCode(rc)
  }

  return res, nil
}
