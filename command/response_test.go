package command_test

import (
  "errors"
  "reflect"
  "testing"

  "github.com/robertof/go-blecli-bench/command"
)

func TestParseResponse_Success(t *testing.T) {
  lines := []string{`{"status": 0, "result": 5}`, "RC=0"}

  got, err := command.ParseResponse(command.TrailerReturnCode, lines)

  if err != nil {
    t.Fatalf("ParseResponse(%q) got error: %v", lines, err)
  }

  if got.Status() != 0 || !got.Success() {
    t.Fatalf("ParseResponse(%q): got status %v, wanted success", lines, got.Status())
  }

  if v, ok := got.Payload().Int(); !ok || v != 5 {
    t.Fatalf("ParseResponse(%q): got payload %v, wanted 5", lines, got.Payload())
  }

  if msg, ok := got.ErrorMessage(); ok {
    t.Fatalf("ParseResponse(%q): got error message %q, wanted none", lines, msg)
  }

  if len(lines) != 2 {
    t.Fatalf("ParseResponse modified its input: %q", lines)
  }
}

func TestParseResponse_Failure(t *testing.T) {
  lines := []string{`{"status": 1, "error": "bad arg"}`, "RC=1"}

  got, err := command.ParseResponse(command.TrailerReturnCode, lines)

  if err != nil {
    t.Fatalf("ParseResponse(%q) got error: %v", lines, err)
  }

  if got.Status() != 1 || got.Success() {
    t.Fatalf("ParseResponse(%q): got status %v, wanted 1", lines, got.Status())
  }

  if msg, ok := got.ErrorMessage(); !ok || msg != "bad arg" {
    t.Fatalf("ParseResponse(%q): got error message (%q, %v), wanted \"bad arg\"", lines, msg, ok)
  }

  if got.HasPayload() {
    t.Fatalf("ParseResponse(%q): got payload %v, wanted none", lines, got.Payload())
  }
}

func TestParseResponse_MultiLineBody(t *testing.T) {
  lines := []string{
    `{"name": "getAddress", "arguments": [], "status": 0,`,
    `"result": {"address_type": "PUBLIC", "address": "c8:6c:dd:a2:07:e5"}}`,
    "retcode: 0",
  }

  got, err := command.ParseResponse(command.TrailerReturnCode, lines)

  if err != nil {
    t.Fatalf("ParseResponse(%q) got error: %v", lines, err)
  }

  if addr, _ := got.Payload().Get("address").Str(); addr != "c8:6c:dd:a2:07:e5" {
    t.Fatalf("ParseResponse(%q): got address %q", lines, addr)
  }

  if got.Name() != "getAddress" {
    t.Fatalf("ParseResponse(%q): got name %q", lines, got.Name())
  }

  if !reflect.DeepEqual(got.Arguments(), []string{}) {
    t.Fatalf("ParseResponse(%q): got arguments %#v", lines, got.Arguments())
  }
}

func TestParseResponse_Malformed(t *testing.T) {
  tests := []struct {
    name string
    policy command.TrailerPolicy
    lines []string
  }{
    {"only the return code line", command.TrailerReturnCode, []string{"RC=0"}},
    {"no line at all", command.TrailerReturnCode, nil},
    {"no line without trailer", command.TrailerNone, []string{}},
    {"parsed trailer is not a return code", command.TrailerParsed, []string{`{"status": 0}`, "done"}},
  }

  for _, tt := range tests {
    t.Run(tt.name, func(t *testing.T) {
      got, err := command.ParseResponse(tt.policy, tt.lines)

      if !errors.Is(err, command.ErrMalformedResponse) {
        t.Fatalf("ParseResponse(%v, %q): got (%v, %v), wanted ErrMalformedResponse", tt.policy, tt.lines, got, err)
      }
    })
  }
}

func TestParseResponse_DecodeError(t *testing.T) {
  tests := []struct {
    name string
    lines []string
  }{
    {"not JSON", []string{"Command not found", "retcode: -5"}},
    {"missing status", []string{`{"result": 1}`, "RC=0"}},
    {"status is a string", []string{`{"status": "0"}`, "RC=0"}},
    {"status is fractional", []string{`{"status": 0.5}`, "RC=0"}},
    {"not an object", []string{`[0]`, "RC=0"}},
    {"two documents", []string{`{"status": 0}`, `{"status": 1}`, "RC=0"}},
  }

  for _, tt := range tests {
    t.Run(tt.name, func(t *testing.T) {
      got, err := command.ParseResponse(command.TrailerReturnCode, tt.lines)

      if !errors.Is(err, command.ErrDecode) {
        t.Fatalf("ParseResponse(%q): got (%v, %v), wanted ErrDecode", tt.lines, got, err)
      }
    })
  }
}

func TestParseResponse_TrailerPolicies(t *testing.T) {
  got, err := command.ParseResponse(command.TrailerParsed, []string{`{"status": -2, "error": "x"}`, "retcode: -2"})

  if err != nil {
    t.Fatalf("ParseResponse(TrailerParsed) got error: %v", err)
  }

  if rc, ok := got.ReturnCode(); !ok || rc != -2 {
    t.Fatalf("ParseResponse(TrailerParsed): got return code (%d, %v), wanted -2", rc, ok)
  }

  got, err = command.ParseResponse(command.TrailerNone, []string{`{"status": 0, "result": "a"}`})

  if err != nil {
    t.Fatalf("ParseResponse(TrailerNone) got error: %v", err)
  }

  if s, _ := got.Payload().Str(); s != "a" {
    t.Fatalf("ParseResponse(TrailerNone): got payload %v", got.Payload())
  }

  if _, ok := got.ReturnCode(); ok {
    t.Fatalf("ParseResponse(TrailerNone): unexpected return code")
  }
}

func TestParseReturnCode(t *testing.T) {
  for line, want := range map[string]int{"RC=0": 0, "retcode: -5": -5, "retcode:2": 2, "  RC=12 ": 12} {
    got, err := command.ParseReturnCode(line)

    if err != nil || got != want {
      t.Fatalf("ParseReturnCode(%q): got (%d, %v), wanted %d", line, got, err, want)
    }
  }
}
