package transport

import (
  "context"
  "time"

  "github.com/rs/zerolog/log"
)

type logged struct {
  Transport
}

// Logged wraps t so every command and reply is traced, and every failure logged.
func Logged(t Transport) Transport {
  return &logged{t}
}

func (l *logged) Command(ctx context.Context, deviceID string, text string) (*Response, error) {
  log.Trace().
    Str("Device", deviceID).
    Str("Command", text).
    Msg("transport: sending command")

  start := time.Now()
  resp, err := l.Transport.Command(ctx, deviceID, text)
  elapsed := time.Since(start)

  if err != nil {
    log.Warn().
      Err(err).
      Str("Device", deviceID).
      Str("Command", text).
      Dur("ElapsedSec", elapsed).
      Msg("transport: command failed")

    return resp, err
  }

  if resp == nil {
    resp = &Response{}
  }

  log.Debug().
    Str("Device", deviceID).
    Str("Command", text).
    Int("Lines", len(resp.Lines)).
    Dur("ElapsedSec", elapsed).
    Msg("transport: received reply")

  log.Trace().
    Str("Device", deviceID).
    Strs("Lines", resp.Lines).
    Msg("transport: raw reply")

  return resp, nil
}

func (l *logged) Unwrap() Transport {
  return l.Transport
}

func (l *logged) Close() error {
  return Close(l.Transport)
}
