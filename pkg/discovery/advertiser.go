package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface.
	// Empty string means all interfaces.
	Interface string

	// TTL is the mDNS record time-to-live. Zero uses the zeroconf default.
	TTL time.Duration
}

// Advertiser publishes instrument endpoints over mDNS using zeroconf.
type Advertiser struct {
	config AdvertiserConfig

	mu sync.Mutex

	// Active advertisements, keyed by instrument name.
	servers map[string]*zeroconf.Server
}

// NewAdvertiser creates an mDNS advertiser.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	return &Advertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// getInterfaces returns the network interfaces to advertise on.
// Returns nil to use all interfaces.
func (a *Advertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise starts advertising one instrument endpoint. Re-advertising an
// instrument name replaces its previous advertisement.
func (a *Advertiser) Advertise(ctx context.Context, info *InstrumentInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if server, exists := a.servers[info.Instrument]; exists {
		server.Shutdown()
		delete(a.servers, info.Instrument)
	}

	// Instance name: "<bench>-<instrument>"
	instanceName := fmt.Sprintf("%s-%s", info.Bench, info.Instrument)
	if len(instanceName) > MaxInstanceNameLen {
		instanceName = instanceName[:MaxInstanceNameLen]
	}

	txtStrings := TXTRecordsToStrings(EncodeInstrumentTXT(info))

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		instanceName,
		ServiceType,
		Domain,
		int(info.Port),
		txtStrings,
		a.getInterfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register instrument service: %w", err)
	}

	a.servers[info.Instrument] = server
	return nil
}

// Update replaces the TXT records of an active advertisement.
func (a *Advertiser) Update(info *InstrumentInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[info.Instrument]
	if !exists {
		return ErrNotFound
	}

	server.SetText(TXTRecordsToStrings(EncodeInstrumentTXT(info)))
	return nil
}

// StopInstrument stops advertising one instrument.
func (a *Advertiser) StopInstrument(instrument string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[instrument]
	if !exists {
		return ErrNotFound
	}

	server.Shutdown()
	delete(a.servers, instrument)
	return nil
}

// StopAll stops all advertisements.
func (a *Advertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, server := range a.servers {
		server.Shutdown()
		delete(a.servers, name)
	}
}
