// Package mqtt reaches devices attached to a remote bench agent through an MQTT broker. The
// agent receives commands on "<prefix>/<device>/command" and publishes what the device printed
// on "<prefix>/<device>/response".
package mqtt

import (
  "context"
  "encoding/json"
  "fmt"
  "strings"
  "sync"
  "time"

  MQTT "github.com/eclipse/paho.mqtt.golang"
  "github.com/oklog/ulid/v2"
  "github.com/pkg/errors"
  "github.com/robertof/go-blecli-bench/transport"
  "github.com/rs/zerolog/log"
)

const (
  DefaultTopicPrefix = "device"
  DefaultConnectTimeout = 10 * time.Second
  disconnectQuiesceMs = 250

  StatusSuccess = "success"
  StatusError = "error"
  StatusTimeout = "timeout"
)

type Options struct {
  // Broker URL, e.g. tcp://localhost:1883.
  Broker string
  ClientID string
  Username string
  Password string
  TopicPrefix string
  QoS byte
  ConnectTimeout time.Duration
}

func (o Options) withDefaults() Options {
  if o.TopicPrefix == "" {
    o.TopicPrefix = DefaultTopicPrefix
  }

  if o.ConnectTimeout == 0 {
    o.ConnectTimeout = DefaultConnectTimeout
  }

  if o.ClientID == "" {
    o.ClientID = "blecli-bench-" + strings.ToLower(ulid.Make().String())
  }

  return o
}

// Command is the message published to the agent.
type Command struct {
  ID string `json:"id"`
  Device string `json:"device"`
  Command string `json:"command"`
  // Seconds the agent may wait for the device, 0 for no limit.
  Timeout int `json:"timeout"`
  Timestamp int64 `json:"timestamp"`
}

// Response is the message published back by the agent. Lines is preferred over Output, the
// raw console text, when both are set.
type Response struct {
  ID string `json:"id"`
  Device string `json:"device"`
  Status string `json:"status"`
  Lines []string `json:"lines,omitempty"`
  Output string `json:"output,omitempty"`
  Error string `json:"error,omitempty"`
  Duration int64 `json:"duration"`
  Timestamp int64 `json:"timestamp"`
}

func (r *Response) lines() []string {
  if r.Lines != nil {
    return r.Lines
  }

  var out []string
  for _, line := range strings.Split(r.Output, "\n") {
    line = strings.TrimRight(line, "\r")

    if strings.TrimSpace(line) != "" {
      out = append(out, line)
    }
  }

  return out
}

// Transport multiplexes the commands of every device of an agent over one MQTT client.
// Replies are matched to commands by their identifier.
type Transport struct {
  client MQTT.Client
  options Options

  mu sync.Mutex
  pending map[string]chan *Response
  closed bool
}

var _ transport.Transport = (*Transport)(nil)

func Dial(options Options) (*Transport, error) {
  options = options.withDefaults()

  if options.Broker == "" {
    return nil, fmt.Errorf("%w: no MQTT broker given", transport.ErrTransport)
  }

  opts := MQTT.NewClientOptions().AddBroker(options.Broker)
  opts.SetClientID(options.ClientID)
  opts.SetConnectTimeout(options.ConnectTimeout)
  opts.SetAutoReconnect(true)

  if options.Username != "" {
    opts.SetUsername(options.Username)
    opts.SetPassword(options.Password)
  }

  client := MQTT.NewClient(opts)
  token := client.Connect()

  if !token.WaitTimeout(options.ConnectTimeout) {
    return nil, fmt.Errorf("%w: timed out connecting to %s", transport.ErrTransport, options.Broker)
  }

  if err := token.Error(); err != nil {
    return nil, fmt.Errorf("%w: %w", transport.ErrTransport, errors.Wrapf(err, "failed to connect to %s", options.Broker))
  }

  log.Debug().
    Str("Broker", options.Broker).
    Str("ClientID", options.ClientID).
    Msg("mqtt: connected to broker")

  return NewWithClient(client, options)
}

// NewWithClient subscribes to the agent replies with an already connected client.
func NewWithClient(client MQTT.Client, options Options) (*Transport, error) {
  options = options.withDefaults()

  t := &Transport{
    client: client,
    options: options,
    pending: make(map[string]chan *Response),
  }

  topic := t.responseTopic("+")
  token := client.Subscribe(topic, options.QoS, t.onResponse)

  if !token.WaitTimeout(options.ConnectTimeout) {
    return nil, fmt.Errorf("%w: timed out subscribing to %s", transport.ErrTransport, topic)
  }

  if err := token.Error(); err != nil {
    return nil, fmt.Errorf("%w: %w", transport.ErrTransport, errors.Wrapf(err, "failed to subscribe to %s", topic))
  }

  log.Debug().Str("Topic", topic).Msg("mqtt: subscribed to responses")

  return t, nil
}

func (t *Transport) commandTopic(deviceID string) string {
  return t.options.TopicPrefix + "/" + deviceID + "/command"
}

func (t *Transport) responseTopic(deviceID string) string {
  return t.options.TopicPrefix + "/" + deviceID + "/response"
}

func (t *Transport) String() string {
  return fmt.Sprintf("mqtt[broker=%q, prefix=%q]", t.options.Broker, t.options.TopicPrefix)
}

func (t *Transport) onResponse(_ MQTT.Client, msg MQTT.Message) {
  var r Response

  if err := json.Unmarshal(msg.Payload(), &r); err != nil {
    log.Warn().
      Err(err).
      Str("Topic", msg.Topic()).
      Msg("mqtt: dropping undecodable response")
    return
  }

  t.mu.Lock()
  ch, ok := t.pending[r.ID]
  delete(t.pending, r.ID)
  t.mu.Unlock()

  if !ok {
    log.Debug().
      Str("Topic", msg.Topic()).
      Str("ID", r.ID).
      Msg("mqtt: dropping response to an unknown command")
    return
  }

  ch <- &r
}

// timeoutSeconds rounds up, a zero timeout meaning no limit to the agent.
func timeoutSeconds(d time.Duration) int {
  secs := int((d + time.Second - 1) / time.Second)
  if secs < 1 {
    return 1
  }

  return secs
}

func (t *Transport) Command(ctx context.Context, deviceID string, text string) (*transport.Response, error) {
  if deviceID == "" || strings.ContainsAny(deviceID, "/+#") {
    return nil, fmt.Errorf("%w: %q cannot be used in a topic", transport.ErrTransport, deviceID)
  }

  cmd := Command{
    ID: ulid.Make().String(),
    Device: deviceID,
    Command: text,
    Timestamp: time.Now().Unix(),
  }

  if deadline, ok := ctx.Deadline(); ok {
    cmd.Timeout = timeoutSeconds(time.Until(deadline))
  }

  payload, err := json.Marshal(&cmd)
  if err != nil {
    return nil, fmt.Errorf("%w: %w", transport.ErrTransport, err)
  }

  ch := make(chan *Response, 1)

  t.mu.Lock()
  if t.closed {
    t.mu.Unlock()
    return nil, transport.ErrClosed
  }
  t.pending[cmd.ID] = ch
  t.mu.Unlock()

  defer func() {
    t.mu.Lock()
    delete(t.pending, cmd.ID)
    t.mu.Unlock()
  }()

  token := t.client.Publish(t.commandTopic(deviceID), t.options.QoS, false, payload)

  select {
  case <-token.Done():
  case <-ctx.Done():
    return nil, fmt.Errorf("%w: publishing %s: %w", transport.ErrTransport, cmd.ID, ctx.Err())
  }

  if err := token.Error(); err != nil {
    return nil, fmt.Errorf("%w: %w", transport.ErrTransport, errors.Wrap(err, "failed to publish command"))
  }

  log.Trace().
    Str("ID", cmd.ID).
    Str("Device", deviceID).
    Msg("mqtt: command published, waiting for response")

  var r *Response

  select {
  case r = <-ch:
  case <-ctx.Done():
    return nil, fmt.Errorf("%w: waiting for response to %s: %w", transport.ErrTransport, cmd.ID, ctx.Err())
  }

  switch r.Status {
  case StatusSuccess, "":
  default:
    return nil, fmt.Errorf("%w: agent reported %s for %s: %s", transport.ErrTransport, r.Status, cmd.ID, r.Error)
  }

  return &transport.Response{Lines: r.lines()}, nil
}

func (t *Transport) Close() error {
  t.mu.Lock()
  defer t.mu.Unlock()

  if t.closed {
    return nil
  }

  t.closed = true

  token := t.client.Unsubscribe(t.responseTopic("+"))
  token.WaitTimeout(t.options.ConnectTimeout)
  t.client.Disconnect(disconnectQuiesceMs)

  log.Debug().Str("Broker", t.options.Broker).Msg("mqtt: disconnected from broker")

  return token.Error()
}
