package collector

import (
	"context"
	"sort"
	"strings"

	"github.com/robertof/go-blecli-bench/ble"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"
)

// Advertiser summarizes every advertisement received from one address during a scan.
type Advertiser struct {
	Addr string
	Name string
	Connectable bool
	Services []string
	Records int
	// Strongest signal seen.
	Rssi int
}

// ScanAir scans with the given device and merges what has been heard by address. The firmware
// only reports advertisements matching filter, an address or a hex advertising payload shared by
// every advertiser of interest. Advertisers are sorted by address.
func ScanAir(ctx context.Context, scanner *ble.Gap, durationMs uint16, filter string) ([]Advertiser, error) {
	records, err := scanner.StartScan(ctx, durationMs, filter)
	if err != nil {
		return nil, err
	}

	type advertiserContext struct {
		Advertiser
		services map[string]bool
	}

	seen := make(map[string]*advertiserContext)

	for i := range records {
		a := &records[i]
		addr := strings.ToUpper(a.PeerAddr)

		adv, ok := seen[addr]
		if !ok {
			adv = &advertiserContext{
				Advertiser: Advertiser{Addr: addr, Rssi: a.RSSI()},
				services: make(map[string]bool),
			}
			seen[addr] = adv
		}

		// merge
		if adv.Name == "" {
			adv.Name = a.LocalName()
		}

		adv.Connectable = adv.Connectable || a.Connectable()
		adv.Records += 1

		if a.RSSI() > adv.Rssi {
			adv.Rssi = a.RSSI()
		}

		for _, uuid := range a.Services() {
			adv.services[uuid.String()] = true
		}

		log.Trace().
			Str("Addr", addr).
			Str("Name", a.LocalName()).
			Bool("Connectable", a.Connectable()).
			Hex("ManufacturerData", a.ManufacturerData()).
			Msg("ScanAir: received advertisement")
	}

	out := make([]Advertiser, 0, len(seen))

	for _, adv := range seen {
		adv.Services = maps.Keys(adv.services)
		sort.Strings(adv.Services)
		out = append(out, adv.Advertiser)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Addr < out[j].Addr
	})

	return out, nil
}
