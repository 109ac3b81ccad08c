package mqtt_test

import (
  "context"
  "encoding/json"
  "strings"
  "sync"
  "testing"
  "time"

  MQTT "github.com/eclipse/paho.mqtt.golang"
  "github.com/robertof/go-blecli-bench/device"
  "github.com/robertof/go-blecli-bench/transport"
  "github.com/robertof/go-blecli-bench/transport/fake"
  "github.com/robertof/go-blecli-bench/transport/mqtt"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

type token struct {
  err error
}

func (t *token) Wait() bool { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Error() error { return t.err }

func (t *token) Done() <-chan struct{} {
  ch := make(chan struct{})
  close(ch)
  return ch
}

type message struct {
  MQTT.Message
  topic string
  payload []byte
}

func (m *message) Topic() string { return m.topic }
func (m *message) Payload() []byte { return m.payload }

// agent plays the remote side: it runs published commands on a simulated firmware and
// publishes the reply back.
type agent struct {
  MQTT.Client

  mu sync.Mutex
  fw *fake.Firmware
  handlers map[string]MQTT.MessageHandler
  published []mqtt.Command
  // status reported instead of running the command, when set.
  status string
  silent bool
  disconnected bool
}

func newAgent(fw *fake.Firmware) *agent {
  return &agent{fw: fw, handlers: make(map[string]MQTT.MessageHandler)}
}

func (a *agent) Subscribe(topic string, _ byte, cb MQTT.MessageHandler) MQTT.Token {
  a.mu.Lock()
  defer a.mu.Unlock()

  a.handlers[topic] = cb
  return &token{}
}

func (a *agent) Unsubscribe(topics ...string) MQTT.Token {
  a.mu.Lock()
  defer a.mu.Unlock()

  for _, topic := range topics {
    delete(a.handlers, topic)
  }
  return &token{}
}

func (a *agent) Disconnect(uint) {
  a.disconnected = true
}

func (a *agent) Publish(topic string, _ byte, _ bool, payload interface{}) MQTT.Token {
  var cmd mqtt.Command
  if err := json.Unmarshal(payload.([]byte), &cmd); err != nil {
    panic(err)
  }

  a.mu.Lock()
  a.published = append(a.published, cmd)
  handler := a.handlers["device/+/response"]
  status, silent := a.status, a.silent
  a.mu.Unlock()

  if silent || handler == nil {
    return &token{}
  }

  resp := mqtt.Response{ID: cmd.ID, Device: cmd.Device, Status: mqtt.StatusSuccess}

  if status != "" {
    resp.Status, resp.Error = status, "device unplugged"
  } else {
    out, err := a.fw.Command(context.Background(), cmd.Device, cmd.Command)
    if err != nil {
      resp.Status, resp.Error = mqtt.StatusError, err.Error()
    } else {
      resp.Output = strings.Join(out.Lines, "\r\n")
    }
  }

  data, _ := json.Marshal(&resp)

  go handler(a, &message{
    topic: "device/" + cmd.Device + "/response",
    payload: data,
  })

  return &token{}
}

func TestCommandRoundTrip(t *testing.T) {
  fw := fake.NewFirmware().AddDevice("dut1", "aa:bb:cc:dd:ee:01")
  a := newAgent(fw)

  tr, err := mqtt.NewWithClient(a, mqtt.Options{})
  require.NoError(t, err)

  dev := device.New("dut1", tr)

  res, err := dev.Ble(context.Background(), "init")
  require.NoError(t, err)
  assert.True(t, res.Success())

  res, err = dev.Gap(context.Background(), "getAddress")
  require.NoError(t, err)
  assert.Equal(t, "AA:BB:CC:DD:EE:01", res.Payload().Get("address").Interface())

  require.Len(t, a.published, 2)
  assert.Equal(t, "ble init ", a.published[0].Command)
  assert.Equal(t, "dut1", a.published[0].Device)
  assert.NotEqual(t, a.published[0].ID, a.published[1].ID)
}

func TestCommandAgentError(t *testing.T) {
  a := newAgent(fake.NewFirmware())
  a.status = mqtt.StatusTimeout

  tr, err := mqtt.NewWithClient(a, mqtt.Options{})
  require.NoError(t, err)

  _, err = tr.Command(context.Background(), "dut1", "ble init ")
  assert.ErrorIs(t, err, transport.ErrTransport)
  assert.Contains(t, err.Error(), "device unplugged")
}

func TestCommandTimesOut(t *testing.T) {
  a := newAgent(fake.NewFirmware())
  a.silent = true

  tr, err := mqtt.NewWithClient(a, mqtt.Options{})
  require.NoError(t, err)

  ctx, cancel := context.WithTimeout(context.Background(), 20 * time.Millisecond)
  defer cancel()

  _, err = tr.Command(ctx, "dut1", "ble init ")
  assert.ErrorIs(t, err, transport.ErrTransport)
  assert.ErrorIs(t, err, context.DeadlineExceeded)

  // a short deadline is still sent as a limit.
  require.Len(t, a.published, 1)
  assert.Equal(t, 1, a.published[0].Timeout)
}

func TestCommandTimeoutRoundsUp(t *testing.T) {
  fw := fake.NewFirmware().AddDevice("dut1", "aa:bb:cc:dd:ee:01")
  a := newAgent(fw)

  tr, err := mqtt.NewWithClient(a, mqtt.Options{})
  require.NoError(t, err)

  ctx, cancel := context.WithTimeout(context.Background(), 2500 * time.Millisecond)
  defer cancel()

  _, err = tr.Command(ctx, "dut1", "ble getVersion ")
  require.NoError(t, err)

  _, err = tr.Command(context.Background(), "dut1", "ble getVersion ")
  require.NoError(t, err)

  require.Len(t, a.published, 2)
  assert.Equal(t, 3, a.published[0].Timeout)
  assert.Equal(t, 0, a.published[1].Timeout)
}

func TestCommandRejectsTopicWildcards(t *testing.T) {
  tr, err := mqtt.NewWithClient(newAgent(fake.NewFirmware()), mqtt.Options{})
  require.NoError(t, err)

  _, err = tr.Command(context.Background(), "dut/+", "ble init ")
  assert.ErrorIs(t, err, transport.ErrTransport)
}

func TestClose(t *testing.T) {
  a := newAgent(fake.NewFirmware())

  tr, err := mqtt.NewWithClient(a, mqtt.Options{})
  require.NoError(t, err)

  require.NoError(t, tr.Close())
  require.NoError(t, tr.Close())
  assert.True(t, a.disconnected)

  _, err = tr.Command(context.Background(), "dut1", "ble init ")
  assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestFactorySharesConnection(t *testing.T) {
  fw := fake.NewFirmware().AddDevice("serial-1234", "aa:bb:cc:dd:ee:01")
  dials := 0

  factory := &mqtt.Factory{
    Dial: func(options mqtt.Options) (*mqtt.Transport, error) {
      dials++
      return mqtt.NewWithClient(newAgent(fw), options)
    },
  }

  first, err := factory.FromSpec(device.NewDeviceSpec("id=1,broker=tcp://localhost:1883,remote=serial-1234"))
  require.NoError(t, err)
  second, err := factory.FromSpec(device.NewDeviceSpec("id=2,broker=tcp://localhost:1883"))
  require.NoError(t, err)
  assert.Equal(t, 1, dials)
  assert.Same(t, transport.Innermost(second), transport.Innermost(transport.Logged(first)))

  res, err := device.New("1", first).Ble(context.Background(), "init")
  require.NoError(t, err)
  assert.True(t, res.Success())

  _, err = factory.FromSpec(device.NewDeviceSpec("id=3"))
  assert.Error(t, err)

  _, err = factory.FromSpec(device.NewDeviceSpec("id=3,broker=tcp://localhost:1883,qos=3"))
  assert.Error(t, err)
}
