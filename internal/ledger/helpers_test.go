package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erazemk/rxledger/internal/model"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder is a sink that keeps every event it receives.
type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Publish(_ context.Context, ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Credentials used by the test fixture.
const (
	credAdmin        = "0xad00000000000000000000000000000000000001"
	credManufacturer = "0xaa00000000000000000000000000000000000002"
	credDistributor  = "0xdd00000000000000000000000000000000000003"
	credPharmacist   = "0xff00000000000000000000000000000000000004"
	credPharmacist2  = "0xff00000000000000000000000000000000000005"
	credDoctor       = "0xdc00000000000000000000000000000000000006"
	credDoctor2      = "0xdc00000000000000000000000000000000000007"
	credRegulator    = "0xee00000000000000000000000000000000000008"
	credPatient      = "0xbb00000000000000000000000000000000000009"
	credStranger     = "0x1234000000000000000000000000000000000000"
)

type fixture struct {
	ledger *Ledger
	clock  *fakeClock
	events *recorder
	ids    map[string]int64
}

// newFixture builds a ledger with the standard roles and one user per
// fixture credential.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newFakeClock()
	rec := &recorder{}
	l := New(NewStore(WithClock(clock.Now), WithSink(rec)))
	ctx := context.Background()

	if err := l.Registry.EnsureRoles(ctx, model.StandardRoles...); err != nil {
		t.Fatalf("EnsureRoles: %v", err)
	}

	users := []struct {
		cred string
		role string
	}{
		{credAdmin, model.RoleAdmin},
		{credManufacturer, model.RoleManufacturer},
		{credDistributor, model.RoleDistributor},
		{credPharmacist, model.RolePharmacist},
		{credPharmacist2, model.RolePharmacist},
		{credDoctor, model.RoleDoctor},
		{credDoctor2, model.RoleDoctor},
		{credRegulator, model.RoleRegulator},
		{credPatient, model.RolePatient},
	}

	ids := make(map[string]int64)
	for _, u := range users {
		role, err := l.Registry.Role(u.role)
		if err != nil {
			t.Fatalf("Role(%s): %v", u.role, err)
		}
		id, err := l.Registry.RegisterUser(ctx, u.cred, "", role.ID)
		if err != nil {
			t.Fatalf("RegisterUser(%s): %v", u.cred, err)
		}
		ids[u.cred] = id
	}

	return &fixture{ledger: l, clock: clock, events: rec, ids: ids}
}

func (f *fixture) issue(t *testing.T, ttl time.Duration) model.Prescription {
	t.Helper()
	p, err := f.ledger.Prescriptions.Create(context.Background(), credDoctor, CreatePrescription{
		PatientID:   f.ids[credPatient],
		DrugID:      42,
		Dosage:      "500mg twice daily",
		ContentHash: "QmPrescriptionDetails",
		QRCode:      "RX-QR-0001",
		ExpiresAt:   f.clock.Now().Add(ttl),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p
}

func (f *fixture) register(t *testing.T) model.Batch {
	t.Helper()
	b, err := f.ledger.SupplyChain.RegisterBatch(context.Background(), credManufacturer, 123, "H1", f.clock.Now())
	if err != nil {
		t.Fatalf("RegisterBatch: %v", err)
	}
	return b
}

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if got := CodeOf(err); got != code {
		t.Fatalf("expected %s error, got %s (%v)", code, got, err)
	}
}
