package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/rxledger/internal/model"
)

// Sink receives committed events in commit order.
// Publish must not issue ledger commands.
type Sink interface {
	Publish(ctx context.Context, ev model.Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, ev model.Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, ev model.Event) error {
	return f(ctx, ev)
}

// Log durably records committed events. Append either stores all events or
// none of them; a command whose events cannot be appended is rejected.
type Log interface {
	Append(ctx context.Context, events []model.Event) error
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for timestamps and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLog makes log the commit point: events are applied only after log
// has stored them.
func WithLog(log Log) Option {
	return func(s *Store) { s.log = log }
}

// WithSink registers a sink at construction time.
func WithSink(sink Sink) Option {
	return func(s *Store) { s.sinks = append(s.sinks, sink) }
}

// Store holds all ledger state. Commands are serialized by a single write
// lock; entities live in slices indexed by id-1 and are never removed.
type Store struct {
	mu    sync.RWMutex
	pubMu sync.Mutex

	now   func() time.Time
	log   Log
	sinks []Sink
	seq   uint64

	roles         []model.Role
	roleByName    map[string]int64
	users         []model.User
	userByCred    map[string]int64
	prescriptions []model.Prescription
	byPatient     map[int64][]int64
	byDoctor      map[int64][]int64
	batches       []model.Batch
	dispenses     []model.DispenseRecord
	byRx          map[int64][]int64
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:        time.Now,
		roleByName: make(map[string]int64),
		userByCred: make(map[string]int64),
		byPatient:  make(map[int64][]int64),
		byDoctor:   make(map[int64][]int64),
		byRx:       make(map[int64][]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe adds a sink. Sinks added after commands ran do not see past events.
func (s *Store) Subscribe(sink Sink) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Seq returns the sequence number of the last committed event.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// exec runs a command under the write lock. decide validates against the
// current state and returns the events to commit; when it fails nothing is
// applied. With a log configured the events are appended before they are
// applied, and a failed append rejects the command. Committed events are
// published after the write lock is released, in commit order.
func (s *Store) exec(ctx context.Context, decide func(now time.Time) ([]model.Event, error)) ([]model.Event, error) {
	s.mu.Lock()
	now := s.now()
	events, err := decide(now)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	for i := range events {
		events[i].Seq = s.seq + uint64(i) + 1
		events[i].ID = uuid.NewString()
		if events[i].At.IsZero() {
			events[i].At = now
		}
	}
	if s.log != nil && len(events) > 0 {
		if err := s.log.Append(ctx, events); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("committing events: %w", err)
		}
	}
	for i := range events {
		s.apply(&events[i])
		s.seq = events[i].Seq
	}

	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	for _, ev := range events {
		for _, sink := range s.sinks {
			if err := sink.Publish(ctx, ev); err != nil {
				slog.Error("event sink failed", "seq", ev.Seq, "type", ev.Type, "error", err)
			}
		}
	}
	return events, nil
}

// Replay applies previously committed events to the store without
// publishing them. Events must continue the store's sequence.
func (s *Store) Replay(events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range events {
		if events[i].Seq != s.seq+1 {
			return fmt.Errorf("replaying event: expected seq %d, got %d", s.seq+1, events[i].Seq)
		}
		if err := s.check(&events[i]); err != nil {
			return fmt.Errorf("replaying event %d: %w", events[i].Seq, err)
		}
		s.apply(&events[i])
		s.seq = events[i].Seq
	}
	return nil
}

// check verifies that a replayed event fits the current state, so apply can
// assume consistent ids.
func (s *Store) check(ev *model.Event) error {
	switch ev.Type {
	case model.EventRoleCreated:
		if ev.RoleID != int64(len(s.roles))+1 {
			return fmt.Errorf("unexpected role id %d", ev.RoleID)
		}
	case model.EventUserRegistered:
		if ev.UserID != int64(len(s.users))+1 {
			return fmt.Errorf("unexpected user id %d", ev.UserID)
		}
		if s.role(ev.RoleID) == nil {
			return fmt.Errorf("unknown role %d", ev.RoleID)
		}
	case model.EventUserRoleAssigned:
		if s.user(ev.UserID) == nil || s.role(ev.RoleID) == nil {
			return fmt.Errorf("unknown user %d or role %d", ev.UserID, ev.RoleID)
		}
	case model.EventPrescriptionCreated:
		if ev.PrescriptionID != int64(len(s.prescriptions))+1 {
			return fmt.Errorf("unexpected prescription id %d", ev.PrescriptionID)
		}
	case model.EventPrescriptionVerified, model.EventPrescriptionRevoked:
		if s.prescription(ev.PrescriptionID) == nil {
			return fmt.Errorf("unknown prescription %d", ev.PrescriptionID)
		}
	case model.EventPrescriptionDispensed:
		if ev.Ledger == model.LedgerSupplyChain {
			if ev.DispenseID != int64(len(s.dispenses))+1 {
				return fmt.Errorf("unexpected dispense id %d", ev.DispenseID)
			}
		} else if s.prescription(ev.PrescriptionID) == nil {
			return fmt.Errorf("unknown prescription %d", ev.PrescriptionID)
		}
	case model.EventBatchRegistered:
		if ev.BatchID != int64(len(s.batches))+1 {
			return fmt.Errorf("unexpected batch id %d", ev.BatchID)
		}
	case model.EventBatchTransferred:
		if s.batch(ev.BatchID) == nil {
			return fmt.Errorf("unknown batch %d", ev.BatchID)
		}
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

// apply is the only place ledger state changes.
func (s *Store) apply(ev *model.Event) {
	switch ev.Type {
	case model.EventRoleCreated:
		s.roles = append(s.roles, model.Role{ID: ev.RoleID, Name: ev.RoleName, CreatedAt: ev.At})
		s.roleByName[ev.RoleName] = ev.RoleID

	case model.EventUserRegistered:
		s.users = append(s.users, model.User{
			ID:           ev.UserID,
			Credential:   ev.Credential,
			Metadata:     ev.Metadata,
			RoleID:       ev.RoleID,
			RegisteredAt: ev.At,
		})
		s.userByCred[ev.Credential] = ev.UserID

	case model.EventUserRoleAssigned:
		s.user(ev.UserID).RoleID = ev.RoleID

	case model.EventPrescriptionCreated:
		s.prescriptions = append(s.prescriptions, model.Prescription{
			ID:          ev.PrescriptionID,
			DoctorID:    ev.DoctorID,
			PatientID:   ev.PatientID,
			DrugID:      ev.DrugID,
			Dosage:      ev.Dosage,
			ContentHash: ev.ContentHash,
			QRCode:      ev.QRCode,
			Status:      model.PrescriptionIssued,
			IssuedAt:    ev.At,
			ExpiresAt:   ev.ExpiresAt,
		})
		s.byPatient[ev.PatientID] = append(s.byPatient[ev.PatientID], ev.PrescriptionID)
		s.byDoctor[ev.DoctorID] = append(s.byDoctor[ev.DoctorID], ev.PrescriptionID)

	case model.EventPrescriptionVerified:
		s.prescription(ev.PrescriptionID).Status = model.PrescriptionVerified

	case model.EventPrescriptionDispensed:
		if ev.Ledger == model.LedgerSupplyChain {
			s.dispenses = append(s.dispenses, model.DispenseRecord{
				ID:             ev.DispenseID,
				PrescriptionID: ev.PrescriptionID,
				PharmacistID:   ev.PharmacistID,
				BatchID:        ev.BatchID,
				Quantity:       ev.Quantity,
				DispensedAt:    ev.At,
				ExternalTxRef:  ev.ExternalTxRef,
			})
			s.byRx[ev.PrescriptionID] = append(s.byRx[ev.PrescriptionID], ev.DispenseID)
			return
		}
		s.prescription(ev.PrescriptionID).Status = model.PrescriptionDispensed

	case model.EventPrescriptionRevoked:
		p := s.prescription(ev.PrescriptionID)
		at := ev.At
		p.Status = model.PrescriptionRevoked
		p.IsRevoked = true
		p.RevokedBy = ev.RevokerID
		p.RevocationReason = ev.Reason
		p.RevokedAt = &at

	case model.EventBatchRegistered:
		s.batches = append(s.batches, model.Batch{
			ID:               ev.BatchID,
			ManufacturerID:   ev.ManufacturerID,
			DrugID:           ev.DrugID,
			CurrentOwnerID:   ev.ManufacturerID,
			Status:           model.BatchManufactured,
			ContentHash:      ev.ContentHash,
			ManufactureDate:  ev.ManufactureDate,
			CreatedAt:        ev.At,
			OwnershipHistory: []int64{ev.ManufacturerID},
		})

	case model.EventBatchTransferred:
		b := s.batch(ev.BatchID)
		b.CurrentOwnerID = ev.ToUserID
		b.Status = ev.BatchStatus
		b.OwnershipHistory = append(b.OwnershipHistory, ev.ToUserID)
	}
}

// Lookups below require the caller to hold s.mu.

func (s *Store) role(id int64) *model.Role {
	if id <= 0 || id > int64(len(s.roles)) {
		return nil
	}
	return &s.roles[id-1]
}

func (s *Store) user(id int64) *model.User {
	if id <= 0 || id > int64(len(s.users)) {
		return nil
	}
	return &s.users[id-1]
}

func (s *Store) prescription(id int64) *model.Prescription {
	if id <= 0 || id > int64(len(s.prescriptions)) {
		return nil
	}
	return &s.prescriptions[id-1]
}

func (s *Store) batch(id int64) *model.Batch {
	if id <= 0 || id > int64(len(s.batches)) {
		return nil
	}
	return &s.batches[id-1]
}

// userView returns a copy of the user with its role name filled in.
func (s *Store) userView(u *model.User) model.User {
	out := *u
	if r := s.role(u.RoleID); r != nil {
		out.Role = r.Name
	}
	return out
}

func copyBatch(b *model.Batch) model.Batch {
	out := *b
	out.OwnershipHistory = slices.Clone(b.OwnershipHistory)
	return out
}

func copyPrescription(p *model.Prescription) model.Prescription {
	out := *p
	if p.RevokedAt != nil {
		at := *p.RevokedAt
		out.RevokedAt = &at
	}
	return out
}
