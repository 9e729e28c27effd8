package fi

import (
	"errors"
	"sync"
)

// Address represents a fabric address assigned by the provider.
type Address uint64

const (
	// AddressUnspecified represents an invalid or unspecified remote address.
	AddressUnspecified = Address(^uint64(0))
)

// AddressVectorAttr configures address vector creation.
type AddressVectorAttr struct {
	// Count hints the expected number of peers.
	Count uint64
}

// AddressVector maps raw peer identifiers to fabric addresses. The completion
// path only consults it through ReverseLookup; insertion and removal are owned
// by connection management.
type AddressVector struct {
	mu    sync.RWMutex
	next  Address
	peers map[peerKey]Address
}

type peerKey struct {
	slid  uint32
	srcQP uint32
}

// OpenAddressVector opens an address vector on the domain.
func (d *Domain) OpenAddressVector(attr *AddressVectorAttr) (*AddressVector, error) {
	if d == nil {
		return nil, ErrInvalidHandle{"domain"}
	}
	var count uint64
	if attr != nil {
		count = attr.Count
	}
	return &AddressVector{peers: make(map[peerKey]Address, count)}, nil
}

// Insert registers a peer identified by its link-layer id and source queue
// pair, returning the assigned fabric address. Re-inserting a known peer
// returns its existing address.
func (a *AddressVector) Insert(slid, srcQP uint32) (Address, error) {
	if a == nil || a.peers == nil {
		return AddressUnspecified, ErrInvalidHandle{"address vector"}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := peerKey{slid: slid, srcQP: srcQP}
	if addr, ok := a.peers[key]; ok {
		return addr, nil
	}
	addr := a.next
	a.next++
	a.peers[key] = addr
	return addr, nil
}

// Remove removes the provided addresses from the vector.
func (a *AddressVector) Remove(addrs []Address) error {
	if a == nil || a.peers == nil {
		return ErrInvalidHandle{"address vector"}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, addr := range addrs {
		for key, mapped := range a.peers {
			if mapped == addr {
				delete(a.peers, key)
			}
		}
	}
	return nil
}

// ReverseLookup resolves a peer's link-layer id and source queue pair back to
// its fabric address. Unknown peers yield AddressUnspecified, never an error.
func (a *AddressVector) ReverseLookup(slid, srcQP uint32) Address {
	if a == nil || a.peers == nil {
		return AddressUnspecified
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if addr, ok := a.peers[peerKey{slid: slid, srcQP: srcQP}]; ok {
		return addr
	}
	return AddressUnspecified
}

// Close releases the address vector.
func (a *AddressVector) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.peers == nil {
		return errors.New("efadirect: address vector already closed")
	}
	a.peers = nil
	return nil
}
