package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shipnest/apiserver/internal/events"
	"github.com/shipnest/apiserver/internal/store"
	"github.com/shipnest/apiserver/types"
)

// ErrAddressNotFound is returned when an address does not exist or belongs
// to another user. The two cases are not distinguished.
var ErrAddressNotFound = errors.New("address not found")

// AddressRepository defines persistence operations for addresses. Methods
// taking a userID must only match addresses owned by that user.
type AddressRepository interface {
	Create(ctx context.Context, address types.Address) (types.Address, error)
	GetForUser(ctx context.Context, id, userID string) (types.Address, error)
	ListByUser(ctx context.Context, userID string) ([]types.Address, error)
	Update(ctx context.Context, address types.Address) (types.Address, error)
	DeleteForUser(ctx context.Context, id, userID string) error
}

// AddressService encapsulates address use-cases. Every operation is scoped
// to the calling user.
type AddressService struct {
	repo   AddressRepository
	events events.Publisher
}

func NewAddressService(repo AddressRepository, publisher events.Publisher) *AddressService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &AddressService{repo: repo, events: publisher}
}

func (s *AddressService) Create(ctx context.Context, userID string, in types.AddressInput) (types.Address, error) {
	address := types.Address{UserID: userID}
	address.Apply(in)

	created, err := s.repo.Create(ctx, address)
	if err != nil {
		return types.Address{}, fmt.Errorf("create address: %w", err)
	}
	s.events.Publish(ctx, types.Event{Type: types.EventAddressCreated, UserID: userID, AddressID: created.ID})
	return created, nil
}

func (s *AddressService) ListByUser(ctx context.Context, userID string) ([]types.Address, error) {
	addresses, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return addresses, nil
}

func (s *AddressService) Update(ctx context.Context, userID, id string, in types.AddressInput) (types.Address, error) {
	address, err := s.repo.GetForUser(ctx, id, userID)
	if err != nil {
		return types.Address{}, notFoundOr(err, "load address")
	}
	address.Apply(in)

	updated, err := s.repo.Update(ctx, address)
	if err != nil {
		return types.Address{}, notFoundOr(err, "update address")
	}
	s.events.Publish(ctx, types.Event{Type: types.EventAddressUpdated, UserID: userID, AddressID: updated.ID})
	return updated, nil
}

func (s *AddressService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteForUser(ctx, id, userID); err != nil {
		return notFoundOr(err, "delete address")
	}
	s.events.Publish(ctx, types.Event{Type: types.EventAddressDeleted, UserID: userID, AddressID: id})
	return nil
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrAddressNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
