package device

import "github.com/robertof/go-blecli-bench/transport"

// Factory opens the transport described by a device spec.
type Factory interface {
	FromSpec(spec DeviceSpec) (transport.Transport, error)
}

type FactoryDocs interface {
	Help() string
}
