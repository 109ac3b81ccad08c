// Package serial talks to a device through the console of its serial port.
package serial

import (
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "io"
  "regexp"
  "strings"
  "sync"
  "time"

  "github.com/pkg/errors"
  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/transport"
  "github.com/rs/zerolog/log"
  "go.bug.st/serial"
)

const (
  DefaultBaudRate = 115200
  DefaultReadTimeout = 100 * time.Millisecond
  DefaultLineEnding = "\r\n"

  readBufferSize = 256
)

// Port is the subset of a serial port used by the transport.
type Port interface {
  io.ReadWriteCloser
  SetReadTimeout(t time.Duration) error
  ResetInputBuffer() error
}

type PortFactory func(path string, mode *serial.Mode) (Port, error)

func DefaultPortFactory(path string, mode *serial.Mode) (Port, error) {
  port, err := serial.Open(path, mode)
  if err != nil {
    return nil, fmt.Errorf("failed to open serial port: %w", err)
  }

  return port, nil
}

type Options struct {
  Path string
  BaudRate int
  // Polling period of the port. The context of a command is checked between two reads.
  ReadTimeout time.Duration
  LineEnding string
  // Trailer the firmware prints after a reply. Without a trailer, a reply ends with the line
  // completing its JSON document.
  Trailer command.TrailerPolicy
  // Matches the last line of a reply. Defaults to the return code line, unless Trailer is
  // TrailerNone.
  Terminator *regexp.Regexp
  // The console echoes the command line back before the reply.
  Echo bool
  OpenPort PortFactory
}

func (o Options) withDefaults() Options {
  if o.BaudRate == 0 {
    o.BaudRate = DefaultBaudRate
  }

  if o.ReadTimeout == 0 {
    o.ReadTimeout = DefaultReadTimeout
  }

  if o.LineEnding == "" {
    o.LineEnding = DefaultLineEnding
  }

  if o.Terminator == nil && o.Trailer != command.TrailerNone {
    o.Terminator = command.ReturnCodePattern
  }

  if o.OpenPort == nil {
    o.OpenPort = DefaultPortFactory
  }

  return o
}

// Transport sends one command at a time over a serial port. Concurrent callers are serialized.
type Transport struct {
  mu sync.Mutex
  port Port
  options Options
  // bytes read past the end of the previous reply.
  pending []byte
  closed bool
}

var _ transport.Transport = (*Transport)(nil)

func Open(options Options) (*Transport, error) {
  options = options.withDefaults()

  if options.Path == "" {
    return nil, fmt.Errorf("%w: no serial port given", transport.ErrTransport)
  }

  port, err := options.OpenPort(options.Path, &serial.Mode{
    BaudRate: options.BaudRate,
    DataBits: 8,
    Parity: serial.NoParity,
    StopBits: serial.OneStopBit,
  })

  if err != nil {
    return nil, fmt.Errorf("%w: %w", transport.ErrTransport, err)
  }

  log.Debug().
    Str("Port", options.Path).
    Int("BaudRate", options.BaudRate).
    Msg("serial: port opened")

  return NewWithPort(port, options)
}

func NewWithPort(port Port, options Options) (*Transport, error) {
  options = options.withDefaults()

  if err := port.SetReadTimeout(options.ReadTimeout); err != nil {
    port.Close()
    return nil, fmt.Errorf("%w: %w", transport.ErrTransport, errors.Wrap(err, "failed to set read timeout"))
  }

  return &Transport{
    port: port,
    options: options,
  }, nil
}

func (t *Transport) String() string {
  return fmt.Sprintf("serial[port=%q]", t.options.Path)
}

func (t *Transport) Command(ctx context.Context, deviceID string, text string) (*transport.Response, error) {
  t.mu.Lock()
  defer t.mu.Unlock()

  if t.closed {
    return nil, transport.ErrClosed
  }

  if err := ctx.Err(); err != nil {
    return nil, fmt.Errorf("%w: %w", transport.ErrTransport, err)
  }

  // anything left from a previous reply is noise at this point.
  t.pending = nil
  if err := t.port.ResetInputBuffer(); err != nil {
    return nil, t.wrap(err, "failed to reset input buffer")
  }

  if _, err := io.WriteString(t.port, text + t.options.LineEnding); err != nil {
    return nil, t.wrap(err, "failed to write command")
  }

  echo := t.options.Echo
  resp := &transport.Response{}
  buf := make([]byte, readBufferSize)

  for {
    for {
      idx := bytes.IndexByte(t.pending, '\n')
      if idx < 0 {
        break
      }

      line := strings.TrimRight(string(t.pending[:idx]), "\r")
      t.pending = t.pending[idx+1:]

      if strings.TrimSpace(line) == "" {
        continue
      }

      if echo && strings.TrimSpace(line) == strings.TrimSpace(text) {
        echo = false
        continue
      }

      resp.Lines = append(resp.Lines, line)

      if t.replyComplete(resp.Lines) {
        return resp, nil
      }
    }

    if err := ctx.Err(); err != nil {
      log.Debug().
        Str("Device", deviceID).
        Str("Command", text).
        Strs("Lines", resp.Lines).
        Msg("serial: giving up on partial reply")

      return nil, fmt.Errorf("%w: %w", transport.ErrTransport, err)
    }

    // a zero length read is a read timeout.
    n, err := t.port.Read(buf)
    if err != nil {
      return nil, t.wrap(err, "failed to read reply")
    }

    t.pending = append(t.pending, buf[:n]...)
  }
}

func (t *Transport) replyComplete(lines []string) bool {
  if t.options.Terminator != nil {
    return t.options.Terminator.MatchString(lines[len(lines)-1])
  }

  return json.Valid([]byte(strings.Join(lines, "")))
}

func (t *Transport) wrap(err error, msg string) error {
  return fmt.Errorf("%w: %w", transport.ErrTransport, errors.Wrapf(err, "%s on %s", msg, t.options.Path))
}

func (t *Transport) Close() error {
  t.mu.Lock()
  defer t.mu.Unlock()

  if t.closed {
    return nil
  }

  t.closed = true

  return t.port.Close()
}

// Ports lists the serial ports of the host.
func Ports() ([]string, error) {
  ports, err := serial.GetPortsList()
  if err != nil {
    return nil, errors.Wrap(err, "failed to enumerate serial ports")
  }

  return ports, nil
}
