package command_test

import (
  "errors"
  "testing"

  "github.com/robertof/go-blecli-bench/command"
)

func TestFormat(t *testing.T) {
  tests := []struct {
    name string
    policy command.ArgPolicy
    module, cmd string
    args []string
    want string
  }{
    {"three args", command.ArgsStrict, "module", "cmd", []string{"a", "b", "c"}, "module cmd a b c"},
    {"no args keeps trailing space", command.ArgsStrict, "ble", "init", nil, "ble init "},
    {"single arg", command.ArgsStrict, "gap", "setAdvertisingType", []string{"ADV_CONNECTABLE_UNDIRECTED"},
      "gap setAdvertisingType ADV_CONNECTABLE_UNDIRECTED"},
    {"verbatim passes whitespace through", command.ArgsVerbatim, "gap", "setDeviceName", []string{"foo bar"},
      "gap setDeviceName foo bar"},
    {"verbatim no args", command.ArgsVerbatim, "gap", "getAddress", nil, "gap getAddress "},
    {"quoted leaves plain args alone", command.ArgsQuoted, "gap", "startScan", []string{"3000", "aa:bb"},
      "gap startScan 3000 aa:bb"},
    {"quoted wraps whitespace", command.ArgsQuoted, "gap", "setDeviceName", []string{"foo bar"},
      `gap setDeviceName "foo bar"`},
    {"quoted escapes quotes", command.ArgsQuoted, "gap", "setDeviceName", []string{`a"b`},
      `gap setDeviceName "a\"b"`},
    {"quoted empty arg", command.ArgsQuoted, "gap", "setDeviceName", []string{""},
      `gap setDeviceName ""`},
  }

  for _, tt := range tests {
    t.Run(tt.name, func(t *testing.T) {
      got, err := command.Format(tt.policy, tt.module, tt.cmd, tt.args...)

      if err != nil {
        t.Fatalf("Format(%v, %q, %q, %q) got error: %v", tt.policy, tt.module, tt.cmd, tt.args, err)
      }

      if got != tt.want {
        t.Fatalf("Format(%v, %q, %q, %q): got %q, wanted %q", tt.policy, tt.module, tt.cmd, tt.args, got, tt.want)
      }
    })
  }
}

func TestFormat_Rejected(t *testing.T) {
  tests := []struct {
    name string
    policy command.ArgPolicy
    module, cmd string
    args []string
  }{
    {"whitespace in arg", command.ArgsStrict, "gap", "setDeviceName", []string{"foo bar"}},
    {"tab in arg", command.ArgsStrict, "gap", "setDeviceName", []string{"foo\tbar"}},
    {"empty arg", command.ArgsStrict, "gap", "setDeviceName", []string{""}},
    {"empty module", command.ArgsStrict, "", "init", nil},
    {"whitespace in command", command.ArgsStrict, "ble", "in it", nil},
    {"quoted still checks module", command.ArgsQuoted, "b le", "init", nil},
  }

  for _, tt := range tests {
    t.Run(tt.name, func(t *testing.T) {
      got, err := command.Format(tt.policy, tt.module, tt.cmd, tt.args...)

      if !errors.Is(err, command.ErrInvalidArgument) {
        t.Fatalf("Format(%v, %q, %q, %q): got (%q, %v), wanted ErrInvalidArgument",
          tt.policy, tt.module, tt.cmd, tt.args, got, err)
      }
    })
  }
}

func TestArgPolicy_Set(t *testing.T) {
  var p command.ArgPolicy

  if err := p.Set("quoted"); err != nil || p != command.ArgsQuoted {
    t.Fatalf("Set(quoted): got (%v, %v)", p, err)
  }

  if err := p.Set("whatever"); err == nil {
    t.Fatalf("Set(whatever): expected an error")
  }
}
