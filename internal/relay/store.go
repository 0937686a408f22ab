package relay

import (
	"errors"
	"sync"
)

var (
	ErrNameTaken       = errors.New("name already registered")
	ErrUnknownPeer     = errors.New("peer not found")
	ErrAlreadyAnswered = errors.New("offer already answered")
)

// clientSuffix derives the answerer's name from the host's.
const clientSuffix = "_client"

// ClientName returns the identity assigned to whoever answers host's offer.
func ClientName(host string) string { return host + clientSuffix }

// connection is one host/client pairing on the relay.
type connection struct {
	hostName   string
	clientName string
	offer      string
	answer     *string

	hostCandidates   []string
	clientCandidates []string
}

// Store is the relay's in-memory state. Payloads are kept verbatim.
type Store struct {
	mu      sync.Mutex
	byHost  map[string]*connection
	byOwner map[string]*connection // host and client names
}

func NewStore() *Store {
	return &Store{
		byHost:  make(map[string]*connection),
		byOwner: make(map[string]*connection),
	}
}

// RegisterOffer records host's offer and returns the assigned client name.
func (s *Store) RegisterOffer(host, offer string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client := ClientName(host)
	if _, ok := s.byOwner[host]; ok {
		return "", ErrNameTaken
	}
	if _, ok := s.byOwner[client]; ok {
		return "", ErrNameTaken
	}

	c := &connection{hostName: host, clientName: client, offer: offer}
	s.byHost[host] = c
	s.byOwner[host] = c
	s.byOwner[client] = c
	return client, nil
}

// Offer returns host's offer and the client name assigned with it.
func (s *Store) Offer(host string) (offer, client string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byHost[host]
	if !ok {
		return "", "", ErrUnknownPeer
	}
	return c.offer, c.clientName, nil
}

// SetAnswer records the answer to host's offer. An offer is answered once.
func (s *Store) SetAnswer(host, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byHost[host]
	if !ok {
		return ErrUnknownPeer
	}
	if c.answer != nil {
		return ErrAlreadyAnswered
	}
	c.answer = &answer
	return nil
}

// Answer returns the answer to host's offer, or nil when none was posted yet.
func (s *Store) Answer(host string) (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byHost[host]
	if !ok {
		return nil, ErrUnknownPeer
	}
	return c.answer, nil
}

// AddCandidate appends a candidate payload to owner's queue.
func (s *Store) AddCandidate(owner, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byOwner[owner]
	if !ok {
		return ErrUnknownPeer
	}
	if owner == c.hostName {
		c.hostCandidates = append(c.hostCandidates, payload)
	} else {
		c.clientCandidates = append(c.clientCandidates, payload)
	}
	return nil
}

// TakeCandidates drains owner's queue, returning payloads in posting order.
func (s *Store) TakeCandidates(owner string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byOwner[owner]
	if !ok {
		return nil, ErrUnknownPeer
	}

	var out []string
	if owner == c.hostName {
		out, c.hostCandidates = c.hostCandidates, nil
	} else {
		out, c.clientCandidates = c.clientCandidates, nil
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// Remove forgets host's connection. It reports whether one existed.
func (s *Store) Remove(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byHost[host]
	if !ok {
		return false
	}
	delete(s.byHost, host)
	delete(s.byOwner, c.hostName)
	delete(s.byOwner, c.clientName)
	return true
}

// Len returns the number of registered hosts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHost)
}
