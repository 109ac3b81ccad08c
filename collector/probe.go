package collector

import (
	"context"
	"fmt"

	"github.com/robertof/go-blecli-bench/ble"
	"github.com/robertof/go-blecli-bench/collector/model"
	"github.com/robertof/go-blecli-bench/device"
	"github.com/robertof/go-blecli-bench/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func probeDevice(ctx context.Context, dev *device.Device) (version string, err error) {
	version, err = ble.Version(ctx, dev)

	if err != nil {
		return version, fmt.Errorf("failed to query firmware version: %w", err)
	}

	return version, nil
}

func probeDevices(
	ctx context.Context,
	devices []*device.Device,
	ch chan model.DeviceResult,
) error {
	var eg errgroup.Group

	log.Trace().
		Array("Devices", utils.ToZeroLogArray(devices)).
		Msg("probeDevices: started")

	for _, dev := range devices {
		dev := dev

		eg.Go(func() error {
			log.Trace().
				Stringer("Device", dev).
				Msg("probeDevices: device worker started")

			version, err := probeDevice(ctx, dev)

			result := model.DeviceResult{
				Device: dev,
				Result: model.Result{
					Version: version,
					Error: err,
				},
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- result:
			}

			log.Trace().
				Stringer("Device", dev).
				Msg("probeDevices: device worker finished and submitted result")

			return nil
		})
	}

	return eg.Wait()
}
