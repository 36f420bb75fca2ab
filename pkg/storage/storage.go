// Package storage persists the records behind the billing, CRM and support
// command modules.
//
// Records are stored as JSON documents keyed by (kind, id). A Backend holds
// the raw documents; Collection adds typed access on top of it. Two backends
// exist: an in-memory map used by default and by the self-test sandbox, and
// a Postgres table accessed through pgxpool.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/quantumnode/gateway/pkg/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = domain.ErrNotFound

// Record kinds.
const (
	KindCustomer    = "customer"
	KindPlan        = "plan"
	KindService     = "service"
	KindInvoice     = "invoice"
	KindPayment     = "payment"
	KindProfile     = "profile"
	KindInteraction = "interaction"
	KindTicket      = "ticket"
)

// Backend stores raw JSON documents grouped by kind.
type Backend interface {
	// Put creates or replaces the document stored under (kind, id).
	Put(ctx context.Context, kind, id string, data []byte) error
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, kind, id string) ([]byte, error)
	// Find returns documents whose top-level string field equals value, in
	// insertion order. An empty field matches every document of the kind.
	Find(ctx context.Context, kind, field, value string) ([][]byte, error)
	Close() error
}

// Collection gives typed access to one kind of record.
type Collection[T any] struct {
	backend Backend
	kind    string
}

// NewCollection binds a Collection to backend.
func NewCollection[T any](backend Backend, kind string) *Collection[T] {
	return &Collection[T]{backend: backend, kind: kind}
}

// Kind returns the record kind stored by the collection.
func (c *Collection[T]) Kind() string { return c.kind }

// Put stores rec under id, replacing any previous version.
func (c *Collection[T]) Put(ctx context.Context, id string, rec T) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", c.kind, id, err)
	}
	if err := c.backend.Put(ctx, c.kind, id, data); err != nil {
		return fmt.Errorf("put %s %s: %w", c.kind, id, err)
	}
	return nil
}

// Get loads the record stored under id.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var rec T
	data, err := c.backend.Get(ctx, c.kind, id)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode %s %s: %w", c.kind, id, err)
	}
	return rec, nil
}

// Update applies fn to the stored record and writes the result back.
func (c *Collection[T]) Update(ctx context.Context, id string, fn func(*T) error) (T, error) {
	rec, err := c.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if err := fn(&rec); err != nil {
		return rec, err
	}
	return rec, c.Put(ctx, id, rec)
}

// Find returns records whose JSON field equals value.
func (c *Collection[T]) Find(ctx context.Context, field, value string) ([]T, error) {
	docs, err := c.backend.Find(ctx, c.kind, field, value)
	if err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", c.kind, field, err)
	}
	out := make([]T, 0, len(docs))
	for _, data := range docs {
		var rec T
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.kind, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// FindOne returns the first record whose field equals value.
func (c *Collection[T]) FindOne(ctx context.Context, field, value string) (T, error) {
	var zero T
	recs, err := c.Find(ctx, field, value)
	if err != nil {
		return zero, err
	}
	if len(recs) == 0 {
		return zero, ErrNotFound
	}
	return recs[0], nil
}

// Store groups the collections used by the command modules.
type Store struct {
	backend Backend

	Customers    *Collection[domain.Customer]
	Plans        *Collection[domain.Plan]
	Services     *Collection[domain.Service]
	Invoices     *Collection[domain.Invoice]
	Payments     *Collection[domain.Payment]
	Profiles     *Collection[domain.Profile]
	Interactions *Collection[domain.Interaction]
	Tickets      *Collection[domain.Ticket]
}

// New builds a Store over backend.
func New(backend Backend) *Store {
	return &Store{
		backend:      backend,
		Customers:    NewCollection[domain.Customer](backend, KindCustomer),
		Plans:        NewCollection[domain.Plan](backend, KindPlan),
		Services:     NewCollection[domain.Service](backend, KindService),
		Invoices:     NewCollection[domain.Invoice](backend, KindInvoice),
		Payments:     NewCollection[domain.Payment](backend, KindPayment),
		Profiles:     NewCollection[domain.Profile](backend, KindProfile),
		Interactions: NewCollection[domain.Interaction](backend, KindInteraction),
		Tickets:      NewCollection[domain.Ticket](backend, KindTicket),
	}
}

// NewMemory returns a Store backed by process memory.
func NewMemory() *Store {
	return New(NewMemoryBackend())
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// NewID returns a fresh record identifier such as "CUST_3F2A9C1E0B7D4E55".
func NewID(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "_" + id[:16]
}
