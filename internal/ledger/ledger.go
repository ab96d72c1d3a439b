// Package ledger implements the prescription and batch provenance state
// machines on top of a single serialized store.
package ledger

// Ledger wires the components over one store.
type Ledger struct {
	Store         *Store
	Registry      *Registry
	Guard         *Guard
	Prescriptions *Prescriptions
	SupplyChain   *SupplyChain
}

// New builds a ledger over store.
func New(store *Store) *Ledger {
	registry := NewRegistry(store)
	guard := NewGuard(registry)
	return &Ledger{
		Store:         store,
		Registry:      registry,
		Guard:         guard,
		Prescriptions: NewPrescriptions(store, guard),
		SupplyChain:   NewSupplyChain(store, guard),
	}
}
