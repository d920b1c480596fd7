// Package storetest provides in-memory repositories with the same contract
// as the PostgreSQL and MongoDB ones, for use in tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shipnest/apiserver/internal/store"
	"github.com/shipnest/apiserver/types"
)

// Users is an in-memory user repository with a unique email index.
type Users struct {
	mu    sync.Mutex
	byID  map[string]types.User
	Err   error
	Calls int
}

func NewUsers() *Users {
	return &Users{byID: map[string]types.User{}}
}

func (u *Users) call() error {
	u.Calls++
	return u.Err
}

func (u *Users) GetByID(_ context.Context, id string) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.call(); err != nil {
		return types.User{}, err
	}
	user, ok := u.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (u *Users) GetByEmail(_ context.Context, email string) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.call(); err != nil {
		return types.User{}, err
	}
	for _, user := range u.byID {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (u *Users) Create(_ context.Context, user types.User) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.call(); err != nil {
		return types.User{}, err
	}
	for _, existing := range u.byID {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	u.byID[user.ID] = user
	return user, nil
}

func (u *Users) Update(_ context.Context, user types.User) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.call(); err != nil {
		return types.User{}, err
	}
	if _, ok := u.byID[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	user.UpdatedAt = time.Now().UTC()
	u.byID[user.ID] = user
	return user, nil
}

// Remove deletes a user directly, bypassing the repository contract.
func (u *Users) Remove(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.byID, id)
}

// Addresses is an in-memory address repository.
type Addresses struct {
	mu    sync.Mutex
	byID  map[string]types.Address
	seq   int
	order map[string]int
	Err   error
	Calls int
}

func NewAddresses() *Addresses {
	return &Addresses{byID: map[string]types.Address{}, order: map[string]int{}}
}

func (a *Addresses) call() error {
	a.Calls++
	return a.Err
}

func (a *Addresses) Create(_ context.Context, address types.Address) (types.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.call(); err != nil {
		return types.Address{}, err
	}
	now := time.Now().UTC()
	address.ID = uuid.NewString()
	address.CreatedAt = now
	address.UpdatedAt = now
	a.byID[address.ID] = address
	a.seq++
	a.order[address.ID] = a.seq
	return address, nil
}

func (a *Addresses) GetForUser(_ context.Context, id, userID string) (types.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.call(); err != nil {
		return types.Address{}, err
	}
	address, ok := a.byID[id]
	if !ok || address.UserID != userID {
		return types.Address{}, store.ErrNotFound
	}
	return address, nil
}

func (a *Addresses) ListByUser(_ context.Context, userID string) ([]types.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.call(); err != nil {
		return nil, err
	}
	addresses := []types.Address{}
	for _, address := range a.byID {
		if address.UserID == userID {
			addresses = append(addresses, address)
		}
	}
	sort.Slice(addresses, func(i, j int) bool {
		return a.order[addresses[i].ID] < a.order[addresses[j].ID]
	})
	return addresses, nil
}

func (a *Addresses) Update(_ context.Context, address types.Address) (types.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.call(); err != nil {
		return types.Address{}, err
	}
	existing, ok := a.byID[address.ID]
	if !ok || existing.UserID != address.UserID {
		return types.Address{}, store.ErrNotFound
	}
	address.UpdatedAt = time.Now().UTC()
	a.byID[address.ID] = address
	return address, nil
}

func (a *Addresses) DeleteForUser(_ context.Context, id, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.call(); err != nil {
		return err
	}
	address, ok := a.byID[id]
	if !ok || address.UserID != userID {
		return store.ErrNotFound
	}
	delete(a.byID, id)
	delete(a.order, id)
	return nil
}

// Len returns the number of stored addresses across all users.
func (a *Addresses) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byID)
}
