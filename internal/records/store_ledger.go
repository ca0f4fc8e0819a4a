package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"medledger/internal/ledger"
	"medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

const (
	recordKeyPrefix  = "record/"
	patientKeyPrefix = "patientrec/"
)

// LedgerStore keeps record metadata on the permissioned ledger. Each record
// is written twice: once under its own key and once under a per-patient key,
// so patient listings are a single prefix scan.
type LedgerStore struct {
	client ledger.Client
}

func NewLedgerStore(client ledger.Client) *LedgerStore {
	return &LedgerStore{client: client}
}

func (s *LedgerStore) Save(ctx context.Context, meta *Metadata) error {
	if _, err := s.Get(ctx, meta.RecordID); err == nil {
		return sentinel.ErrConflict
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	value, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal record metadata: %w", err)
	}
	if _, err := s.client.Submit(ctx, ledger.FnPutState, []byte(recordKey(meta.RecordID)), value); err != nil {
		return fmt.Errorf("put record metadata: %w", err)
	}
	if _, err := s.client.Submit(ctx, ledger.FnPutState, []byte(patientKey(meta.PatientID, meta.RecordID)), value); err != nil {
		return fmt.Errorf("put record patient index: %w", err)
	}
	return nil
}

func (s *LedgerStore) Get(ctx context.Context, recordID domain.RecordID) (*Metadata, error) {
	values, err := s.client.Query(ctx, recordKey(recordID))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query record metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(values[0], &meta); err != nil {
		return nil, fmt.Errorf("decode record metadata: %w", err)
	}
	return &meta, nil
}

func (s *LedgerStore) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]*Metadata, error) {
	values, err := s.client.Query(ctx, patientKeyPrefix+patientID.String()+"/")
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query patient records: %w", err)
	}
	metas := make([]*Metadata, 0, len(values))
	for _, v := range values {
		var meta Metadata
		if err := json.Unmarshal(v, &meta); err != nil {
			return nil, fmt.Errorf("decode record metadata: %w", err)
		}
		metas = append(metas, &meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt.Before(metas[j].CreatedAt) })
	return metas, nil
}

func (s *LedgerStore) Delete(ctx context.Context, recordID domain.RecordID) error {
	meta, err := s.Get(ctx, recordID)
	if err != nil {
		return err
	}
	if _, err := s.client.Submit(ctx, ledger.FnDelState, []byte(recordKey(recordID))); err != nil {
		return fmt.Errorf("delete record metadata: %w", err)
	}
	if _, err := s.client.Submit(ctx, ledger.FnDelState, []byte(patientKey(meta.PatientID, recordID))); err != nil {
		return fmt.Errorf("delete record patient index: %w", err)
	}
	return nil
}

func recordKey(recordID domain.RecordID) string {
	return recordKeyPrefix + recordID.String()
}

func patientKey(patientID domain.PatientID, recordID domain.RecordID) string {
	return patientKeyPrefix + patientID.String() + "/" + recordID.String()
}
