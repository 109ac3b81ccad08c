package transport

import (
  "context"
  "errors"
  "fmt"
  "strings"
)

var (
  // ErrTransport is wrapped by every failure to reach a device or to get its reply.
  ErrTransport = errors.New("transport error")
  ErrClosed = fmt.Errorf("%w: transport closed", ErrTransport)
)

// Response is the raw reply of a device: every line it printed for one command, the return
// code line included.
type Response struct {
  Lines []string
}

func (r *Response) String() string {
  return strings.Join(r.Lines, "\n")
}

// Transport delivers a command line to a device and returns its reply. Implementations are
// responsible for their own timeouts and for serializing concurrent callers if needed.
type Transport interface {
  Command(ctx context.Context, deviceID string, text string) (*Response, error)
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, deviceID string, text string) (*Response, error)

func (f Func) Command(ctx context.Context, deviceID string, text string) (*Response, error) {
  return f(ctx, deviceID, text)
}

// Wrapper is implemented by transports decorating another one.
type Wrapper interface {
  Unwrap() Transport
}

// Innermost strips every decorator off t.
func Innermost(t Transport) Transport {
  for {
    w, ok := t.(Wrapper)
    if !ok {
      return t
    }

    t = w.Unwrap()
  }
}

// Close closes t if it holds resources.
func Close(t Transport) error {
  if c, ok := t.(interface{ Close() error }); ok {
    return c.Close()
  }

  return nil
}

// Split returns the module and the command name of a command line, as far as they can be told.
func Split(text string) (module, cmd string) {
  fields := strings.Fields(text)

  switch len(fields) {
  case 0:
    return "", ""
  case 1:
    return fields[0], ""
  default:
    return fields[0], fields[1]
  }
}
