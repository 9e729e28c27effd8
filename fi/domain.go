package fi

import (
	"sync"

	"github.com/rocketbitz/efadirect-go/internal/ring"
)

// RingFactory constructs the completion ring backing a queue of the given
// depth. Domains default to the in-memory software ring; alternate transports
// supply their own implementation of the ring contract.
type RingFactory func(depth int) (ring.PollRing, error)

// DomainConfig controls domain construction.
type DomainConfig struct {
	RingFactory RingFactory
	APIVersion  Version
}

// Domain owns the queue-pair registry the completion path consults when
// resolving peer source addresses, and supplies completion rings to the
// queues opened on it.
type Domain struct {
	mu         sync.RWMutex
	qpTable    map[uint32]*Endpoint
	newRing    RingFactory
	apiVersion Version
}

// Endpoint associates a queue pair with the address vector used to resolve
// its peers. Registration is owned by connection management; the completion
// path only reads the table.
type Endpoint struct {
	qpn uint32
	av  *AddressVector
}

// QPN reports the endpoint's queue pair number.
func (e *Endpoint) QPN() uint32 {
	if e == nil {
		return 0
	}
	return e.qpn
}

// NewDomain constructs a resource domain.
func NewDomain(cfg DomainConfig) *Domain {
	factory := cfg.RingFactory
	if factory == nil {
		factory = func(depth int) (ring.PollRing, error) {
			return ring.NewSoftRing(depth)
		}
	}
	version := cfg.APIVersion
	if (version == Version{}) {
		version = DefaultAPIVersion
	}
	return &Domain{
		qpTable:    make(map[uint32]*Endpoint),
		newRing:    factory,
		apiVersion: version,
	}
}

// APIVersion reports the negotiated fabric API version.
func (d *Domain) APIVersion() Version {
	if d == nil {
		return Version{}
	}
	return d.apiVersion
}

// RegisterQueuePair binds a queue pair number to the address vector resolving
// its peers. The returned endpoint stays registered until deregistered.
func (d *Domain) RegisterQueuePair(qpn uint32, av *AddressVector) (*Endpoint, error) {
	if d == nil {
		return nil, ErrInvalidHandle{"domain"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.qpTable[qpn]; ok {
		return nil, ErrAddrInUse.WithOp("qp_register")
	}
	ep := &Endpoint{qpn: qpn, av: av}
	d.qpTable[qpn] = ep
	return ep, nil
}

// DeregisterQueuePair removes a queue pair from the registry.
func (d *Domain) DeregisterQueuePair(qpn uint32) {
	if d == nil {
		return
	}
	d.mu.Lock()
	delete(d.qpTable, qpn)
	d.mu.Unlock()
}

// sourceAddress maps a completion's local queue pair and raw peer identifiers
// to the peer's fabric address. Unknown queue pairs or peers yield
// AddressUnspecified.
func (d *Domain) sourceAddress(qpn, slid, srcQP uint32) Address {
	if d == nil {
		return AddressUnspecified
	}
	d.mu.RLock()
	ep := d.qpTable[qpn]
	d.mu.RUnlock()
	if ep == nil || ep.av == nil {
		return AddressUnspecified
	}
	return ep.av.ReverseLookup(slid, srcQP)
}
