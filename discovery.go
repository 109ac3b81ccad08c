package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/robertof/go-blecli-bench/bench"
	"github.com/robertof/go-blecli-bench/ble"
	"github.com/robertof/go-blecli-bench/collector"
	"github.com/robertof/go-blecli-bench/transport/serial"
)

// doDeviceDiscovery lists the serial ports devices could be attached to, then checks the
// devices of the bench and reports which advertisers matching the scan filter the first of them
// hears on the air.
func doDeviceDiscovery(ctx context.Context, cfg config, b *bench.Bench) {
  ports, err := serial.Ports()
  if err != nil {
    log.Error().Err(err).Msg("Failed to list serial ports")
  }

  log.Info().Int("Found", len(ports)).Msg("Serial ports")

  for _, port := range ports {
    log.Info().Str("Port", port).Msg("Found serial port")
  }

  if b.Len() == 0 {
    log.Info().Msg("No device in the bench, pass some with -serial to probe them and scan the air")
    return
  }

  devices := benchDevices(b)

  results, err := collector.ProbeWithOptions(ctx, devices, collectionOptions(cfg))
  if err != nil {
    log.Warn().Err(err).Msg("Probe did not complete")
  }

  for _, dev := range devices {
    log.Info().
      Stringer("Device", dev).
      Str("Name", b.Name(dev.ID())).
      Str("Version", results[dev].Version).
      AnErr("Error", results[dev].Error).
      Msg("Probed device")
  }

  if cfg.ScanFilter == "" {
    log.Info().Msg("No -scan-filter given, not scanning the air")
    return
  }

  scanner := devices[0]

  if results[scanner].Error != nil {
    log.Warn().Stringer("Device", scanner).Msg("Scanner did not answer, skipping the scan")
    return
  }

  log.Info().
    Stringer("Scanner", scanner).
    Dur("DurationSec", cfg.ScanDuration).
    Str("Filter", cfg.ScanFilter).
    Msg("Scanning the air...")

  handle, err := ble.Init(ctx, scanner)
  if err != nil {
    log.Error().Err(err).Msg("Failed to initialize Bluetooth stack of the scanner")
    return
  }

  defer func() {
    if err := handle.Shutdown(context.WithoutCancel(ctx)); err != nil {
      log.Warn().Err(err).Msg("Failed to shut down Bluetooth stack of the scanner")
    }
  }()

  if err := handle.Gap().ConfigureScan(ctx, ble.FlagScanTypeActive, nil); err != nil {
    log.Error().Err(err).Msg("Failed to configure scan")
    return
  }

  advertisers, err := collector.ScanAir(ctx, handle.Gap(), uint16(cfg.ScanDuration.Milliseconds()), cfg.ScanFilter)
  if err != nil {
    log.Error().Err(err).Msg("Failed to scan")
    return
  }

  log.Info().Int("Found", len(advertisers)).Msg("Finished device discovery")

  for _, adv := range advertisers {
    log.Info().
      Str("Addr", adv.Addr).
      Str("Name", adv.Name).
      Bool("Connectable", adv.Connectable).
      Strs("Services", adv.Services).
      Int("RSSI", adv.Rssi).
      Int("Advertisements", adv.Records).
      Msg("Found device")
  }
}
