package lock

import (
	"context"
	"sort"
	"sync"
)

// memStore is a Store over a map, used to test the controller without a database.
type memStore struct {
	mu      sync.Mutex
	records map[uint]Record
	updates int
}

func newMemStore(ids ...uint) *memStore {
	s := &memStore{records: make(map[uint]Record)}
	for _, id := range ids {
		s.records[id] = Record{Unlock: UnlockNone}
	}
	return s
}

func (s *memStore) Get(_ context.Context, userID uint) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[userID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (s *memStore) Update(_ context.Context, userID uint, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[userID]; !ok {
		return ErrNotFound
	}
	s.records[userID] = r
	s.updates++
	return nil
}

func (s *memStore) ListPending(_ context.Context) ([]PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PendingRequest
	for id, r := range s.records {
		if r.Unlock != UnlockPending {
			continue
		}
		p := PendingRequest{UserID: id}
		if r.RequestReason != nil {
			p.Reason = *r.RequestReason
		}
		if r.RequestedAt != nil {
			p.RequestedAt = *r.RequestedAt
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
