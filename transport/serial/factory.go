package serial

import (
  "fmt"

  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/device"
  "github.com/robertof/go-blecli-bench/transport"
)

const (
  specFieldPort = "port"
  specFieldBaud = "baud"
  specFieldReadTimeout = "read-timeout"
  specFieldEcho = "echo"
)

type Factory struct {
  // Overrides how ports are opened, DefaultPortFactory when nil.
  OpenPort PortFactory
}

func (f *Factory) FromSpec(spec device.DeviceSpec) (transport.Transport, error) {
  path := spec[specFieldPort]
  if path == "" {
    return nil, fmt.Errorf("missing %s", specFieldPort)
  }

  baud, err := spec.Int(specFieldBaud, DefaultBaudRate)
  if err != nil {
    return nil, err
  }

  readTimeout, err := spec.Duration(specFieldReadTimeout, DefaultReadTimeout)
  if err != nil {
    return nil, err
  }

  echo, err := spec.Bool(specFieldEcho, false)
  if err != nil {
    return nil, err
  }

  var trailer command.TrailerPolicy
  if v := spec[device.DeviceSpecFieldTrailer]; v != "" {
    if err := trailer.Set(v); err != nil {
      return nil, err
    }
  }

  return Open(Options{
    Path: path,
    Trailer: trailer,
    BaudRate: baud,
    ReadTimeout: readTimeout,
    Echo: echo,
    OpenPort: f.OpenPort,
  })
}

func (f *Factory) Help() string {
  return `Supported parameters:
id (string, required): Identifier of the device under test (1, 2, ...)
name (string): Name of the device, defaults to its identifier
port (string, required): Serial port the device console is attached to (e.g. /dev/ttyACM0)
baud (int): Baud rate, defaults to 115200
read-timeout (duration): Polling period of the port, defaults to 100ms
echo (bool): The console echoes commands back
trailer (string): Reply trailer, one of return-code, parsed or none. Defaults to -trailer`
}
