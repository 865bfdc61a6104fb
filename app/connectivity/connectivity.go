package connectivity

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

type Type string

const (
	TypeWifi     Type = "wifi"
	TypeEthernet Type = "ethernet"
	TypeMobile   Type = "mobile"
	TypeOther    Type = "other"
	TypeNone     Type = "none"
)

// Status is a transient snapshot of network reachability. It is recomputed
// on every connectivity event and never persisted.
type Status struct {
	Connected bool
	Type      Type
	Quality   string
	CheckedAt time.Time
}

// Unmetered reports whether the connection is safe for bulk transfers under
// a wifi-only policy.
func (s Status) Unmetered() bool {
	return s.Type == TypeWifi || s.Type == TypeEthernet
}

// Provider supplies the current connection status and a stream of changes.
type Provider interface {
	Current() Status
	Updates() <-chan Status
}

// Gate applies the sync eligibility policy on top of a Provider.
type Gate struct {
	provider Provider
}

func NewGate(provider Provider) *Gate {
	return &Gate{provider: provider}
}

// CanSync reports whether sync may proceed: connected, and unmetered when
// the wifi-only policy is active.
func (g *Gate) CanSync(wifiOnly bool) bool {
	status := g.provider.Current()
	if !status.Connected {
		return false
	}
	if wifiOnly && !status.Unmetered() {
		return false
	}
	return true
}

func (g *Gate) Current() Status {
	return g.provider.Current()
}

func (g *Gate) Updates() <-chan Status {
	return g.provider.Updates()
}

// InterfaceProvider derives connectivity from the host's network interfaces,
// polling at a fixed interval and emitting a status on every change. It is
// the default Provider; deployments with richer platform signals can supply
// their own.
type InterfaceProvider struct {
	interval time.Duration
	mu       sync.RWMutex
	current  Status
	updates  chan Status
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewInterfaceProvider(interval time.Duration) *InterfaceProvider {
	p := &InterfaceProvider{
		interval: interval,
		updates:  make(chan Status, 8),
	}
	p.current = probeInterfaces()
	return p
}

func (p *InterfaceProvider) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := probeInterfaces()
				p.mu.Lock()
				changed := status.Connected != p.current.Connected || status.Type != p.current.Type
				p.current = status
				p.mu.Unlock()

				if changed {
					slog.Debug("Connectivity changed", "connected", status.Connected, "type", string(status.Type))
					select {
					case p.updates <- status:
					default:
					}
				}
			}
		}
	}()
}

func (p *InterfaceProvider) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

func (p *InterfaceProvider) Current() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *InterfaceProvider) Updates() <-chan Status {
	return p.updates
}

func probeInterfaces() Status {
	status := Status{Type: TypeNone, Quality: "unknown", CheckedAt: time.Now()}

	ifaces, err := net.Interfaces()
	if err != nil {
		return status
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}

		status.Connected = true
		ifaceType := classifyInterface(iface.Name)

		// Prefer the least metered interface when several are up.
		if status.Type == TypeNone || rank(ifaceType) > rank(status.Type) {
			status.Type = ifaceType
		}
	}

	if status.Connected {
		status.Quality = "good"
	}
	return status
}

func classifyInterface(name string) Type {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "wl"):
		return TypeWifi
	case strings.HasPrefix(lower, "en"), strings.HasPrefix(lower, "eth"):
		return TypeEthernet
	case strings.HasPrefix(lower, "ww"), strings.HasPrefix(lower, "rmnet"):
		return TypeMobile
	default:
		return TypeOther
	}
}

func rank(t Type) int {
	switch t {
	case TypeEthernet:
		return 4
	case TypeWifi:
		return 3
	case TypeOther:
		return 2
	case TypeMobile:
		return 1
	default:
		return 0
	}
}

// StaticProvider holds a fixed status that can be swapped at runtime. Used
// in tests and in deployments where connectivity is managed externally.
type StaticProvider struct {
	mu      sync.RWMutex
	current Status
	updates chan Status
}

func NewStaticProvider(status Status) *StaticProvider {
	return &StaticProvider{
		current: status,
		updates: make(chan Status, 8),
	}
}

func (p *StaticProvider) Current() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *StaticProvider) Updates() <-chan Status {
	return p.updates
}

// Set replaces the current status and emits it to subscribers.
func (p *StaticProvider) Set(status Status) {
	p.mu.Lock()
	p.current = status
	p.mu.Unlock()

	select {
	case p.updates <- status:
	default:
	}
}
