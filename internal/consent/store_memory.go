package consent

import (
	"context"
	"sort"
	"sync"
	"time"

	"medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

// InMemoryStore holds tokens in maps with secondary indices by patient,
// provider, and pair. Development and test use.
type InMemoryStore struct {
	mu       sync.RWMutex
	tokens   map[domain.TokenID]*Token
	byPair   map[pairKey][]domain.TokenID
	byOwner  map[domain.PatientID][]domain.TokenID
	byTarget map[domain.ProviderID][]domain.TokenID
}

type pairKey struct {
	patient  domain.PatientID
	provider domain.ProviderID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tokens:   make(map[domain.TokenID]*Token),
		byPair:   make(map[pairKey][]domain.TokenID),
		byOwner:  make(map[domain.PatientID][]domain.TokenID),
		byTarget: make(map[domain.ProviderID][]domain.TokenID),
	}
}

func (s *InMemoryStore) Save(_ context.Context, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[token.TokenID]; exists {
		return sentinel.ErrConflict
	}
	cp := cloneToken(token)
	s.tokens[token.TokenID] = cp
	key := pairKey{token.PatientID, token.ProviderID}
	s.byPair[key] = append(s.byPair[key], token.TokenID)
	s.byOwner[token.PatientID] = append(s.byOwner[token.PatientID], token.TokenID)
	s.byTarget[token.ProviderID] = append(s.byTarget[token.ProviderID], token.TokenID)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tokenID domain.TokenID) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneToken(token), nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patientID domain.PatientID) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byOwner[patientID]), nil
}

func (s *InMemoryStore) ListByProvider(_ context.Context, providerID domain.ProviderID) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byTarget[providerID]), nil
}

func (s *InMemoryStore) ListByPair(_ context.Context, patientID domain.PatientID, providerID domain.ProviderID) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byPair[pairKey{patientID, providerID}]), nil
}

func (s *InMemoryStore) MarkRevoked(_ context.Context, tokenID domain.TokenID, revokedAt time.Time, requesterSignature []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !token.IsActive {
		return sentinel.ErrInvalidState
	}
	token.IsActive = false
	ra := revokedAt
	token.RevokedAt = &ra
	token.RevocationSignature = append([]byte(nil), requesterSignature...)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, tokenID domain.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.tokens, tokenID)
	key := pairKey{token.PatientID, token.ProviderID}
	s.byPair[key] = removeID(s.byPair[key], tokenID)
	s.byOwner[token.PatientID] = removeID(s.byOwner[token.PatientID], tokenID)
	s.byTarget[token.ProviderID] = removeID(s.byTarget[token.ProviderID], tokenID)
	return nil
}

func (s *InMemoryStore) Reinstate(_ context.Context, tokenID domain.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	token.IsActive = true
	token.RevokedAt = nil
	token.RevocationSignature = nil
	return nil
}

// collect resolves IDs to copies sorted by createdAt ascending. Callers hold
// at least a read lock.
func (s *InMemoryStore) collect(ids []domain.TokenID) []*Token {
	out := make([]*Token, 0, len(ids))
	for _, id := range ids {
		if token, ok := s.tokens[id]; ok {
			out = append(out, cloneToken(token))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func removeID(ids []domain.TokenID, target domain.TokenID) []domain.TokenID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func cloneToken(t *Token) *Token {
	cp := *t
	cp.Permissions = append([]Permission(nil), t.Permissions...)
	cp.PatientSignature = append([]byte(nil), t.PatientSignature...)
	if t.RevocationSignature != nil {
		cp.RevocationSignature = append([]byte(nil), t.RevocationSignature...)
	}
	if t.ExpirationTime != nil {
		exp := *t.ExpirationTime
		cp.ExpirationTime = &exp
	}
	if t.RevokedAt != nil {
		ra := *t.RevokedAt
		cp.RevokedAt = &ra
	}
	return &cp
}
