package audit

import (
	"context"
	"errors"
	"strconv"
	"time"

	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/sentinel"
)

// Filter narrows an audit query. Zero values mean "no constraint".
type Filter struct {
	UserID     string
	EventTypes []EventType
	From       time.Time
	To         time.Time
	PageSize   int
	PageToken  string
}

// Page is one page of audit entries in reverse-chronological (descending
// block) order. Iterating NextPageToken until empty yields every matching
// entry exactly once.
type Page struct {
	Entries       []*Entry
	TotalCount    int
	NextPageToken string
}

const defaultPageSize = 50

// Reader answers audit queries for compliance browsing. It reads the same
// store the Writer appends to but never mutates it.
type Reader struct {
	store Store
}

func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// Query returns matching entries newest-first. The page token encodes the
// block number to continue below, so pages stay consistent even while new
// entries are appended at the head.
func (r *Reader) Query(ctx context.Context, filter Filter) (*Page, error) {
	entries, err := r.store.Range(ctx, 1, 0)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &Page{}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read audit chain")
	}

	var before uint64
	if filter.PageToken != "" {
		before, err = strconv.ParseUint(filter.PageToken, 10, 64)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "malformed page token")
		}
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	page := &Page{}
	// Walk descending so results are newest-first.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !matches(e, filter) {
			continue
		}
		page.TotalCount++
		if before != 0 && e.BlockNumber >= before {
			continue
		}
		if len(page.Entries) < pageSize {
			page.Entries = append(page.Entries, e)
		} else if page.NextPageToken == "" {
			page.NextPageToken = strconv.FormatUint(page.Entries[len(page.Entries)-1].BlockNumber, 10)
		}
	}
	return page, nil
}

func matches(e *Entry, f Filter) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if e.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}
