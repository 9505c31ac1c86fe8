package provider

import (
	"sync"

	"github.com/mrz1836/courier/internal/chain"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// Network is the connection configuration for one chain.
type Network struct {
	ChainID    chain.ID
	RPCURL     string
	PrivateRPC string // optional private relay for broadcasts
	Enabled    bool
}

// Route selects which RPC endpoint of a network a provider talks to.
type Route int

// Routes.
const (
	RoutePublic Route = iota
	RoutePrivate
)

func (r Route) String() string {
	if r == RoutePrivate {
		return "private"
	}
	return "public"
}

type options struct {
	route Route
}

// Option configures provider resolution.
type Option func(*options)

// WithPrivateRelay routes to the network's private RPC when one is
// configured, and to the public RPC otherwise.
func WithPrivateRelay() Option {
	return func(o *options) { o.route = RoutePrivate }
}

// Creator builds a provider for a network and RPC URL.
// It is registered by the caller so this package never imports a concrete
// chain client.
type Creator func(network Network, rpcURL string) (Provider, error)

type cacheKey struct {
	id    chain.ID
	route Route
}

// Manager resolves chain ids to lazily created, cached providers.
type Manager struct {
	mu        sync.Mutex
	create    Creator
	networks  map[chain.ID]Network
	cache     map[cacheKey]Provider
	listeners map[int]func()
	nextID    int
}

// NewManager creates a manager for the given networks.
func NewManager(create Creator, networks []Network) *Manager {
	m := &Manager{
		create:    create,
		cache:     make(map[cacheKey]Provider),
		listeners: make(map[int]func()),
	}
	m.networks = indexNetworks(networks)
	return m
}

func indexNetworks(networks []Network) map[chain.ID]Network {
	idx := make(map[chain.ID]Network, len(networks))
	for _, n := range networks {
		if n.Enabled && n.RPCURL != "" {
			idx[n.ChainID] = n
		}
	}
	return idx
}

// GetProvider returns the provider for id, creating it on first use.
// Unknown or disabled chains fail with ErrUnsupportedChain.
func (m *Manager) GetProvider(id chain.ID, opts ...Option) (Provider, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	network, ok := m.networks[id]
	if !ok {
		return nil, courierr.WithDetails(courierr.ErrUnsupportedChain, map[string]string{"chain_id": id.String()})
	}

	route, url := RoutePublic, network.RPCURL
	if o.route == RoutePrivate && network.PrivateRPC != "" {
		route, url = RoutePrivate, network.PrivateRPC
	}

	key := cacheKey{id: id, route: route}
	if p, ok := m.cache[key]; ok {
		return p, nil
	}

	p, err := m.create(network, url)
	if err != nil {
		return nil, courierr.Wrap(err, "creating provider for chain %s", id)
	}
	m.cache[key] = p
	return p, nil
}

// TryGetProvider is GetProvider returning nil instead of an error.
func (m *Manager) TryGetProvider(id chain.ID, opts ...Option) Provider {
	p, err := m.GetProvider(id, opts...)
	if err != nil {
		return nil
	}
	return p
}

// Networks returns the configured, enabled networks.
func (m *Manager) Networks() []Network {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Network, 0, len(m.networks))
	for _, id := range chain.SupportedChains() {
		if n, ok := m.networks[id]; ok {
			out = append(out, n)
		}
	}
	for id, n := range m.networks {
		if !id.IsSupported() {
			out = append(out, n)
		}
	}
	return out
}

// SetNetworks replaces the network configuration, closes every cached
// provider and notifies OnUpdate listeners.
func (m *Manager) SetNetworks(networks []Network) {
	m.mu.Lock()
	old := m.cache
	m.cache = make(map[cacheKey]Provider)
	m.networks = indexNetworks(networks)
	listeners := make([]func(), 0, len(m.listeners))
	for _, cb := range m.listeners {
		listeners = append(listeners, cb)
	}
	m.mu.Unlock()

	for _, p := range old {
		p.Close()
	}
	for _, cb := range listeners {
		cb()
	}
}

// OnUpdate registers cb to run after every SetNetworks call.
// The returned function unregisters it.
func (m *Manager) OnUpdate(cb func()) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = cb
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Close closes every cached provider.
func (m *Manager) Close() {
	m.mu.Lock()
	old := m.cache
	m.cache = make(map[cacheKey]Provider)
	m.mu.Unlock()

	for _, p := range old {
		p.Close()
	}
}
