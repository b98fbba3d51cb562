package registry

import (
	"sync"

	"github.com/anicoll/ostrom-integration/internal/pkg/coordinator"
	"github.com/anicoll/ostrom-integration/internal/pkg/model"
	"github.com/anicoll/ostrom-integration/internal/pkg/sensor"
)

// Account is one configured Ostrom account with its running parts.
type Account struct {
	Device      *model.Device
	Coordinator *coordinator.Coordinator
	Readers     []sensor.Reader
	// Close releases the account's subscriptions on teardown.
	Close func()
}

// Registry maps account identifiers to their running accounts. It is
// owned by the lifecycle manager and passed by reference to whatever
// needs a coordinator; it is deliberately not a package-level
// singleton.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

func New() *Registry {
	return &Registry{accounts: make(map[string]*Account)}
}

func (r *Registry) Put(id string, account *Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[id] = account
}

func (r *Registry) Get(id string) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[id]
	return account, ok
}

func (r *Registry) Delete(id string) (*Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	delete(r.accounts, id)
	return account, ok
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	return ids
}
