package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/linebroker/internal/domain/banned"
	"github.com/linebroker/internal/domain/transaction"
)

// Banned is an in-memory banned.Repository. It is not part of Store
// transactions, matching the separate document store in production.
type Banned struct {
	mu      sync.Mutex
	records map[string]banned.Record
	// Err, when set, is returned by RecordFailure
	Err error
}

// NewBanned creates an empty banned-number repository
func NewBanned() *Banned {
	return &Banned{records: make(map[string]banned.Record)}
}

func bannedKey(serviceID, phone string) string { return serviceID + "|" + phone }

func (b *Banned) RecordFailure(_ context.Context, f banned.Failure) (*banned.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	rec := b.records[bannedKey(f.ServiceID, f.PhoneNumber)]
	rec.ServiceID, rec.PhoneNumber = f.ServiceID, f.PhoneNumber
	if f.AreaCode != "" {
		rec.AreaCode = f.AreaCode
	}
	if f.Carrier != "" {
		rec.Carrier = f.Carrier
	}
	rec.FailCount++
	rec.LastFailedAt = f.At
	b.records[bannedKey(f.ServiceID, f.PhoneNumber)] = rec
	out := rec
	return &out, nil
}

func (b *Banned) Get(_ context.Context, serviceID, phone string) (*banned.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[bannedKey(serviceID, phone)]
	if !ok {
		return nil, banned.ErrRecordNotFound{ServiceID: serviceID, PhoneNumber: phone}
	}
	return &rec, nil
}

func (b *Banned) TopOffenders(_ context.Context, serviceID string, minFailures, limit int) ([]*banned.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*banned.Record
	for _, rec := range b.records {
		if (serviceID == "" || rec.ServiceID == serviceID) && rec.FailCount >= minFailures {
			r := rec
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FailCount > out[j].FailCount })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Seed stores rec as is
func (b *Banned) Seed(rec banned.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[bannedKey(rec.ServiceID, rec.PhoneNumber)] = rec
}

// Archive is an in-memory transaction.EventArchive
type Archive struct {
	mu     sync.Mutex
	events map[uuid.UUID]transaction.Event
	order  []uuid.UUID
	// Err, when set, is returned by Archive
	Err error
}

// NewArchive creates an empty archive
func NewArchive() *Archive {
	return &Archive{events: make(map[uuid.UUID]transaction.Event)}
}

func (a *Archive) Archive(_ context.Context, e *transaction.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	if _, ok := a.events[e.ID]; ok {
		return nil
	}
	a.events[e.ID] = *e
	a.order = append(a.order, e.ID)
	return nil
}

func (a *Archive) ListByTransaction(_ context.Context, id uuid.UUID) ([]*transaction.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*transaction.Event
	for _, eid := range a.order {
		if e := a.events[eid]; e.TransactionID == id {
			c := e
			out = append(out, &c)
		}
	}
	return out, nil
}

// Len is the number of distinct archived events
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}
