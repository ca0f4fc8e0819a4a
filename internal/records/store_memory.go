package records

import (
	"context"
	"sort"
	"sync"

	"medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

// InMemoryStore is a map-backed MetadataStore for tests and local runs.
type InMemoryStore struct {
	mu        sync.RWMutex
	records   map[domain.RecordID]*Metadata
	byPatient map[domain.PatientID][]domain.RecordID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:   make(map[domain.RecordID]*Metadata),
		byPatient: make(map[domain.PatientID][]domain.RecordID),
	}
}

func (s *InMemoryStore) Save(_ context.Context, meta *Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[meta.RecordID]; exists {
		return sentinel.ErrConflict
	}
	clone := *meta
	s.records[meta.RecordID] = &clone
	s.byPatient[meta.PatientID] = append(s.byPatient[meta.PatientID], meta.RecordID)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, recordID domain.RecordID) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *meta
	return &clone, nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patientID domain.PatientID) ([]*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byPatient[patientID]
	metas := make([]*Metadata, 0, len(ids))
	for _, id := range ids {
		if meta, ok := s.records[id]; ok {
			clone := *meta
			metas = append(metas, &clone)
		}
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt.Before(metas[j].CreatedAt) })
	return metas, nil
}

func (s *InMemoryStore) Delete(_ context.Context, recordID domain.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, recordID)
	ids := s.byPatient[meta.PatientID]
	for i, id := range ids {
		if id == recordID {
			s.byPatient[meta.PatientID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}
