// Package fake provides in-memory transports for tests: a scripted one, replying with canned
// lines, and a simulated firmware keeping per-device BLE state.
package fake

import (
  "context"
  "encoding/json"
  "fmt"
  "strings"
  "sync"

  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/transport"
)

// Handler produces the raw reply lines of one command.
type Handler func(deviceID string, args []string) []string

type Sent struct {
  Device string
  Text string
}

// Transport replies to commands with scripted lines and records what has been sent.
type Transport struct {
  // Err is returned by every call when set.
  Err error

  mu sync.Mutex
  handlers map[string]Handler
  sent []Sent
  closed bool
}

var _ transport.Transport = (*Transport)(nil)

func New() *Transport {
  return &Transport{
    handlers: make(map[string]Handler),
  }
}

func key(module, cmd string) string {
  return module + " " + cmd
}

// Reply makes module/cmd answer with the given lines.
func (t *Transport) Reply(module, cmd string, lines ...string) *Transport {
  return t.Handle(module, cmd, func(string, []string) []string {
    return lines
  })
}

func (t *Transport) Handle(module, cmd string, h Handler) *Transport {
  t.mu.Lock()
  defer t.mu.Unlock()

  t.handlers[key(module, cmd)] = h
  return t
}

func (t *Transport) Sent() []Sent {
  t.mu.Lock()
  defer t.mu.Unlock()

  return append([]Sent(nil), t.sent...)
}

// Texts returns the command lines sent so far, in order.
func (t *Transport) Texts() []string {
  t.mu.Lock()
  defer t.mu.Unlock()

  out := make([]string, len(t.sent))
  for i, s := range t.sent {
    out[i] = s.Text
  }

  return out
}

func (t *Transport) Closed() bool {
  t.mu.Lock()
  defer t.mu.Unlock()

  return t.closed
}

func (t *Transport) Close() error {
  t.mu.Lock()
  defer t.mu.Unlock()

  t.closed = true
  return nil
}

func (t *Transport) Command(ctx context.Context, deviceID string, text string) (*transport.Response, error) {
  if err := ctx.Err(); err != nil {
    return nil, fmt.Errorf("%w: %w", transport.ErrTransport, err)
  }

  t.mu.Lock()
  t.sent = append(t.sent, Sent{Device: deviceID, Text: text})
  closed := t.closed
  fields := strings.Fields(text)
  var h Handler
  if len(fields) >= 2 {
    h = t.handlers[key(fields[0], fields[1])]
  }
  t.mu.Unlock()

  if t.Err != nil {
    return nil, t.Err
  }

  if closed {
    return nil, transport.ErrClosed
  }

  if h == nil {
    return &transport.Response{
      Lines: ReplyLines("", nil, command.StatusNotFound, nil, "command not found"),
    }, nil
  }

  var args []string
  if len(fields) > 2 {
    args = fields[2:]
  }

  return &transport.Response{Lines: h(deviceID, args)}, nil
}

// ReplyLines renders a reply the way the firmware prints it: the JSON body followed by the
// return code line. errMsg is only written for a non-zero status.
func ReplyLines(name string, args []string, status command.Status, result any, errMsg string) []string {
  body := map[string]any{
    "status": int(status),
  }

  if name != "" {
    if args == nil {
      args = []string{}
    }
    body["name"] = name
    body["arguments"] = args
  }

  if status != command.StatusSuccess {
    body["error"] = errMsg
  } else if result != nil {
    body["result"] = result
  }

  data, err := json.Marshal(body)
  if err != nil {
    panic(fmt.Sprintf("fake: cannot marshal reply: %v", err))
  }

  return []string{string(data), fmt.Sprintf("retcode: %d", int(status))}
}

// Success is shorthand for the reply of a successful command.
func Success(result any) []string {
  return ReplyLines("", nil, command.StatusSuccess, result, "")
}

// Failure is shorthand for the reply of a failed command.
func Failure(status command.Status, errMsg string) []string {
  return ReplyLines("", nil, status, nil, errMsg)
}
