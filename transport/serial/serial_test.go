package serial_test

import (
  "bytes"
  "context"
  "errors"
  "strings"
  "sync"
  "testing"
  "time"

  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/device"
  "github.com/robertof/go-blecli-bench/transport"
  "github.com/robertof/go-blecli-bench/transport/serial"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
  bugst "go.bug.st/serial"
)

// fakePort answers every written line with the scripted reply, handed out a few bytes at a
// time with empty reads in between.
type fakePort struct {
  mu sync.Mutex
  replies map[string]string
  written bytes.Buffer
  unread []byte
  chunk int
  readTimeout time.Duration
  resets int
  closed bool
  readErr error
}

func newFakePort(replies map[string]string) *fakePort {
  return &fakePort{replies: replies, chunk: 5}
}

func (p *fakePort) Write(b []byte) (int, error) {
  p.mu.Lock()
  defer p.mu.Unlock()

  p.written.Write(b)
  line := strings.TrimRight(string(b), "\r\n")

  if reply, ok := p.replies[line]; ok {
    p.unread = append(p.unread, reply...)
  }

  return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
  p.mu.Lock()
  defer p.mu.Unlock()

  if p.readErr != nil {
    return 0, p.readErr
  }

  if len(p.unread) == 0 {
    return 0, nil
  }

  n := p.chunk
  if n > len(p.unread) {
    n = len(p.unread)
  }

  n = copy(b, p.unread[:n])
  p.unread = p.unread[n:]

  return n, nil
}

func (p *fakePort) Close() error {
  p.closed = true
  return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
  p.readTimeout = t
  return nil
}

func (p *fakePort) ResetInputBuffer() error {
  p.resets++
  return nil
}

func TestCommandReadsUntilReturnCode(t *testing.T) {
  port := newFakePort(map[string]string{
    "ble init ": "\r\n{\"status\": 0,\r\n \"name\": \"init\"}\r\nretcode: 0\r\n",
  })

  tr, err := serial.NewWithPort(port, serial.Options{Path: "/dev/fake"})
  require.NoError(t, err)
  assert.Equal(t, serial.DefaultReadTimeout, port.readTimeout)

  resp, err := tr.Command(context.Background(), "1", "ble init ")
  require.NoError(t, err)

  assert.Equal(t, []string{"{\"status\": 0,", " \"name\": \"init\"}", "retcode: 0"}, resp.Lines)
  assert.Equal(t, "ble init \r\n", port.written.String())
  assert.Equal(t, 1, port.resets)
}

func TestCommandThroughDevice(t *testing.T) {
  port := newFakePort(map[string]string{
    "gap getAddress ": "{\"status\": 0, \"result\": {\"address\": \"AA:BB:CC:DD:EE:FF\"}}\nRC=0\n",
  })

  tr, err := serial.NewWithPort(port, serial.Options{})
  require.NoError(t, err)

  res, err := device.New("1", tr).Gap(context.Background(), "getAddress")
  require.NoError(t, err)
  assert.True(t, res.Success())
  assert.Equal(t, "AA:BB:CC:DD:EE:FF", res.Payload().Get("address").Interface())
}

func TestCommandSkipsEcho(t *testing.T) {
  port := newFakePort(map[string]string{
    "ble getVersion ": "ble getVersion\r\n{\"status\": 0, \"result\": \"1.0\"}\r\nretcode: 0\r\n",
  })

  tr, err := serial.NewWithPort(port, serial.Options{Echo: true})
  require.NoError(t, err)

  resp, err := tr.Command(context.Background(), "1", "ble getVersion ")
  require.NoError(t, err)
  assert.Equal(t, []string{"{\"status\": 0, \"result\": \"1.0\"}", "retcode: 0"}, resp.Lines)
}

func TestCommandHonorsContext(t *testing.T) {
  port := newFakePort(map[string]string{
    "ble init ": "{\"status\": 0}\r\n",
  })

  tr, err := serial.NewWithPort(port, serial.Options{})
  require.NoError(t, err)

  ctx, cancel := context.WithTimeout(context.Background(), 20 * time.Millisecond)
  defer cancel()

  _, err = tr.Command(ctx, "1", "ble init ")
  assert.ErrorIs(t, err, transport.ErrTransport)
  assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommandCanceledBeforeSending(t *testing.T) {
  port := newFakePort(nil)

  tr, err := serial.NewWithPort(port, serial.Options{})
  require.NoError(t, err)

  ctx, cancel := context.WithCancel(context.Background())
  cancel()

  _, err = tr.Command(ctx, "1", "ble init ")
  assert.ErrorIs(t, err, transport.ErrTransport)
  assert.ErrorIs(t, err, context.Canceled)
  assert.Zero(t, port.written.Len())
}

func TestCommandWithoutTrailerEndsWithJSONDocument(t *testing.T) {
  port := newFakePort(map[string]string{
    "ble getVersion ": "{\"status\": 0,\r\n \"result\": \"1.0\"}\r\n",
  })

  tr, err := serial.NewWithPort(port, serial.Options{Trailer: command.TrailerNone})
  require.NoError(t, err)

  ctx, cancel := context.WithTimeout(context.Background(), 5 * time.Second)
  defer cancel()

  dev := device.NewWithOptions("1", tr, device.Options{Trailer: command.TrailerNone})

  res, err := dev.Ble(ctx, "getVersion")
  require.NoError(t, err)
  assert.True(t, res.Success())
  assert.Equal(t, "1.0", res.Payload().Interface())
}

func TestCommandReadError(t *testing.T) {
  port := newFakePort(nil)
  port.readErr = errors.New("unplugged")

  tr, err := serial.NewWithPort(port, serial.Options{})
  require.NoError(t, err)

  _, err = tr.Command(context.Background(), "1", "ble init ")
  assert.ErrorIs(t, err, transport.ErrTransport)
  assert.Contains(t, err.Error(), "unplugged")
}

func TestClose(t *testing.T) {
  port := newFakePort(nil)

  tr, err := serial.NewWithPort(port, serial.Options{})
  require.NoError(t, err)

  require.NoError(t, transport.Close(tr))
  assert.True(t, port.closed)

  _, err = tr.Command(context.Background(), "1", "ble init ")
  assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestFactory(t *testing.T) {
  port := newFakePort(nil)
  var gotPath string
  var gotMode *bugst.Mode

  factory := &serial.Factory{
    OpenPort: func(path string, mode *bugst.Mode) (serial.Port, error) {
      gotPath, gotMode = path, mode
      return port, nil
    },
  }

  tr, err := factory.FromSpec(device.NewDeviceSpec("id=1,port=/dev/ttyACM0,baud=9600,read-timeout=50ms"))
  require.NoError(t, err)
  require.NotNil(t, tr)

  assert.Equal(t, "/dev/ttyACM0", gotPath)
  assert.Equal(t, 9600, gotMode.BaudRate)
  assert.Equal(t, 50 * time.Millisecond, port.readTimeout)

  _, err = factory.FromSpec(device.NewDeviceSpec("id=1"))
  assert.Error(t, err)

  _, err = factory.FromSpec(device.NewDeviceSpec("id=1,port=/dev/ttyACM0,baud=fast"))
  assert.Error(t, err)

  _, err = factory.FromSpec(device.NewDeviceSpec("id=1,port=/dev/ttyACM0,trailer=maybe"))
  assert.Error(t, err)
}

func TestFactoryTrailerNone(t *testing.T) {
  port := newFakePort(map[string]string{
    "ble getVersion ": "{\"status\": 0, \"result\": \"1.0\"}\r\n",
  })

  factory := &serial.Factory{
    OpenPort: func(string, *bugst.Mode) (serial.Port, error) {
      return port, nil
    },
  }

  tr, err := factory.FromSpec(device.NewDeviceSpec("id=1,port=/dev/ttyACM0,trailer=none"))
  require.NoError(t, err)

  ctx, cancel := context.WithTimeout(context.Background(), 5 * time.Second)
  defer cancel()

  resp, err := tr.Command(ctx, "1", "ble getVersion ")
  require.NoError(t, err)
  assert.Equal(t, []string{"{\"status\": 0, \"result\": \"1.0\"}"}, resp.Lines)
}
