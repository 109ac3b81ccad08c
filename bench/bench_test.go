package bench_test

import (
  "context"
  "errors"
  "os"
  "path/filepath"
  "testing"

  "github.com/robertof/go-blecli-bench/bench"
  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/device"
  "github.com/robertof/go-blecli-bench/transport"
  "github.com/robertof/go-blecli-bench/transport/fake"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

func TestDevicesInBenchOrder(t *testing.T) {
  fw := fake.NewFirmware()

  b, err := bench.New(
    bench.Binding{ID: "10", Transport: fw},
    bench.Binding{ID: "2", Name: "scanner", Transport: fw},
    bench.Binding{ID: "1", Name: "advertiser", Transport: fw},
  )
  require.NoError(t, err)

  assert.Equal(t, []string{"1", "2", "10"}, b.IDs())
  assert.Equal(t, 3, b.Len())
  assert.Equal(t, "advertiser", b.Name("1"))
  assert.Equal(t, "10", b.Name("10"))

  d1, err := b.Device("1")
  require.NoError(t, err)
  d2, err := b.Device("1")
  require.NoError(t, err)
  assert.Same(t, d1, d2)
  assert.Equal(t, "1", d1.ID())

  _, err = b.Device("3")
  assert.ErrorIs(t, err, bench.ErrUnknownDevice)
}

func TestNewRejectsDuplicates(t *testing.T) {
  tr := fake.New()

  _, err := bench.New(
    bench.Binding{ID: "1", Transport: tr},
    bench.Binding{ID: "1", Transport: tr},
  )
  assert.ErrorIs(t, err, bench.ErrDuplicateDevice)

  _, err = bench.New(bench.Binding{ID: "1"})
  assert.Error(t, err)
}

func TestCloseSharedTransportOnce(t *testing.T) {
  shared := &countingCloser{Transport: fake.New()}
  other := fake.New()
  fn := transport.Func(func(context.Context, string, string) (*transport.Response, error) {
    return nil, nil
  })

  b, err := bench.New(
    bench.Binding{ID: "1", Transport: shared},
    bench.Binding{ID: "2", Transport: shared},
    bench.Binding{ID: "3", Transport: other},
    bench.Binding{ID: "4", Transport: fn},
  )
  require.NoError(t, err)

  require.NoError(t, b.Close())
  assert.Equal(t, 1, shared.closes)
  assert.True(t, other.Closed())
}

func TestCloseDecoratedSharedTransportOnce(t *testing.T) {
  shared := &countingCloser{Transport: fake.New()}

  b, err := bench.New(
    bench.Binding{ID: "1", Transport: transport.Logged(shared)},
    bench.Binding{ID: "2", Transport: transport.Logged(transport.Logged(shared))},
  )
  require.NoError(t, err)

  require.NoError(t, b.Close())
  assert.Equal(t, 1, shared.closes)
}

func TestCloseReportsErrors(t *testing.T) {
  failing := &countingCloser{Transport: fake.New(), err: errors.New("stuck")}

  b, err := bench.New(bench.Binding{ID: "1", Transport: failing})
  require.NoError(t, err)

  assert.ErrorContains(t, b.Close(), "stuck")
}

type countingCloser struct {
  transport.Transport
  closes int
  err error
}

func (c *countingCloser) Close() error {
  c.closes++
  return c.err
}

type fakeFactory struct {
  transports map[string]*fake.Transport
  specs []device.DeviceSpec
}

func (f *fakeFactory) FromSpec(spec device.DeviceSpec) (transport.Transport, error) {
  if spec["fail"] == "yes" {
    return nil, errors.New("cannot open")
  }

  f.specs = append(f.specs, spec)

  t := fake.New()
  if f.transports == nil {
    f.transports = make(map[string]*fake.Transport)
  }
  f.transports[spec.ID()] = t

  return t, nil
}

const inventory = `
args: quoted
trailer: parsed
devices:
  - id: "1"
    name: advertiser
    transport: serial
    spec:
      port: /dev/ttyACM0
      baud: "115200"
  - id: "2"
    transport: serial
    spec:
      port: /dev/ttyACM1
`

func TestInventory(t *testing.T) {
  path := filepath.Join(t.TempDir(), "bench.yaml")
  require.NoError(t, os.WriteFile(path, []byte(inventory), 0o644))

  inv, err := bench.LoadInventory(path)
  require.NoError(t, err)
  assert.Equal(t, command.ArgsQuoted, inv.Args)
  assert.Equal(t, command.TrailerParsed, inv.Trailer)
  require.Len(t, inv.Devices, 2)

  factory := &fakeFactory{}
  decorated := 0

  b, err := inv.Open(
    map[string]device.Factory{"serial": factory},
    func(t transport.Transport) transport.Transport {
      decorated++
      return t
    },
  )
  require.NoError(t, err)
  assert.Equal(t, 2, decorated)

  assert.Equal(t, []string{"1", "2"}, b.IDs())
  assert.Equal(t, "advertiser", b.Name("1"))
  assert.Equal(t, "/dev/ttyACM0", factory.specs[0]["port"])
  assert.Equal(t, "1", factory.specs[0].ID())

  d, err := b.Device("2")
  require.NoError(t, err)
  assert.Equal(t, device.Options{Args: command.ArgsQuoted, Trailer: command.TrailerParsed}, d.Options())

  require.NoError(t, b.Close())
  assert.True(t, factory.transports["1"].Closed())
}

func TestInventoryErrors(t *testing.T) {
  _, err := bench.ParseInventory([]byte("args: sloppy"))
  assert.Error(t, err)

  _, err = bench.LoadInventory(filepath.Join(t.TempDir(), "missing.yaml"))
  assert.Error(t, err)

  inv, err := bench.ParseInventory([]byte(`
devices:
  - id: "1"
    transport: serial
  - id: "2"
    transport: serial
    spec:
      fail: "yes"
`))
  require.NoError(t, err)

  factory := &fakeFactory{}
  _, err = inv.Open(map[string]device.Factory{"serial": factory})
  assert.ErrorContains(t, err, "cannot open")
  assert.True(t, factory.transports["1"].Closed())

  _, err = inv.Open(map[string]device.Factory{"mqtt": factory})
  assert.ErrorContains(t, err, "unknown transport")
}
