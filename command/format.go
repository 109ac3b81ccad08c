package command

import (
  "fmt"
  "strings"
  "unicode"
)

// ArgPolicy decides what happens to arguments the device command line would split or drop.
type ArgPolicy uint8

const (
  // Reject empty arguments and arguments containing whitespace.
  ArgsStrict ArgPolicy = iota
  // Send arguments untouched, whatever they contain.
  ArgsVerbatim
  // Wrap empty arguments and arguments containing whitespace in double quotes.
  ArgsQuoted
)

func (p ArgPolicy) String() string {
  switch p {
  case ArgsStrict:
    return "strict"
  case ArgsVerbatim:
    return "verbatim"
  case ArgsQuoted:
    return "quoted"
  default:
    return fmt.Sprintf("ArgPolicy(%d)", uint8(p))
  }
}

// *flag.Value
func (p *ArgPolicy) Set(v string) error {
  for _, candidate := range []ArgPolicy{ArgsStrict, ArgsVerbatim, ArgsQuoted} {
    if candidate.String() == v {
      *p = candidate
      return nil
    }
  }

  return fmt.Errorf("unknown argument policy %q (must be one of strict, verbatim, quoted)", v)
}

func (p ArgPolicy) MarshalText() ([]byte, error) {
  return []byte(p.String()), nil
}

func (p *ArgPolicy) UnmarshalText(text []byte) error {
  return p.Set(string(text))
}

func hasSpace(s string) bool {
  return strings.IndexFunc(s, unicode.IsSpace) >= 0
}

func checkToken(what, s string) error {
  if s == "" {
    return fmt.Errorf("%w: empty %s", ErrInvalidArgument, what)
  }

  if hasSpace(s) {
    return fmt.Errorf("%w: %s %q contains whitespace", ErrInvalidArgument, what, s)
  }

  return nil
}

func quote(s string) string {
  if s != "" && !strings.ContainsAny(s, "\"\\") && !hasSpace(s) {
    return s
  }

  var b strings.Builder

  b.WriteByte('"')
  for _, r := range s {
    if r == '"' || r == '\\' {
      b.WriteByte('\\')
    }
    b.WriteRune(r)
  }
  b.WriteByte('"')

  return b.String()
}

// Format builds the text of a command: "<module> <cmd> <args joined by a space>". The
// separator after the command is always written, so a command without arguments ends with a
// single space.
func Format(policy ArgPolicy, module, cmd string, args ...string) (string, error) {
  if policy != ArgsVerbatim {
    if err := checkToken("module", module); err != nil {
      return "", err
    }

    if err := checkToken("command", cmd); err != nil {
      return "", err
    }
  }

  out := args

  switch policy {
  case ArgsVerbatim:
  case ArgsStrict:
    for i, arg := range args {
      if err := checkToken(fmt.Sprintf("argument #%d", i), arg); err != nil {
        return "", err
      }
    }
  case ArgsQuoted:
    out = make([]string, len(args))
    for i, arg := range args {
      out[i] = quote(arg)
    }
  default:
    return "", fmt.Errorf("%w: unknown argument policy %v", ErrInvalidArgument, policy)
  }

  return module + " " + cmd + " " + strings.Join(out, " "), nil
}
