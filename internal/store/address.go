package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shipnest/apiserver/types"
)

// AddressRepository handles persistence for addresses in PostgreSQL.
// Lookups that take a userID only match addresses owned by that user.
type AddressRepository struct {
	db *sql.DB
}

func NewAddressRepository(db *sql.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

const addressColumns = `id, user_id, mobile, flat, landmark, street, city, state, country, pin_code, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAddress(row rowScanner) (types.Address, error) {
	var address types.Address
	err := row.Scan(
		&address.ID,
		&address.UserID,
		&address.Mobile,
		&address.Flat,
		&address.Landmark,
		&address.Street,
		&address.City,
		&address.State,
		&address.Country,
		&address.PinCode,
		&address.CreatedAt,
		&address.UpdatedAt,
	)
	return address, err
}

func (r *AddressRepository) Create(ctx context.Context, address types.Address) (types.Address, error) {
	now := time.Now().UTC()
	address.ID = uuid.NewString()
	address.CreatedAt = now
	address.UpdatedAt = now

	const query = `
		INSERT INTO addresses (` + addressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		address.ID,
		address.UserID,
		address.Mobile,
		address.Flat,
		address.Landmark,
		address.Street,
		address.City,
		address.State,
		address.Country,
		address.PinCode,
		address.CreatedAt,
		address.UpdatedAt,
	); err != nil {
		return types.Address{}, err
	}
	return address, nil
}

func (r *AddressRepository) GetForUser(ctx context.Context, id, userID string) (types.Address, error) {
	if !validID(id) {
		return types.Address{}, ErrNotFound
	}
	const query = `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE id = $1 AND user_id = $2`
	address, err := scanAddress(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Address{}, ErrNotFound
		}
		return types.Address{}, err
	}
	return address, nil
}

func (r *AddressRepository) ListByUser(ctx context.Context, userID string) ([]types.Address, error) {
	const query = `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE user_id = $1
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addresses := []types.Address{}
	for rows.Next() {
		address, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, address)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (r *AddressRepository) Update(ctx context.Context, address types.Address) (types.Address, error) {
	if !validID(address.ID) {
		return types.Address{}, ErrNotFound
	}
	address.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE addresses
		SET mobile = $1,
			flat = $2,
			landmark = $3,
			street = $4,
			city = $5,
			state = $6,
			country = $7,
			pin_code = $8,
			updated_at = $9
		WHERE id = $10 AND user_id = $11`
	result, err := r.db.ExecContext(
		ctx,
		query,
		address.Mobile,
		address.Flat,
		address.Landmark,
		address.Street,
		address.City,
		address.State,
		address.Country,
		address.PinCode,
		address.UpdatedAt,
		address.ID,
		address.UserID,
	)
	if err != nil {
		return types.Address{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Address{}, err
	}
	if affected == 0 {
		return types.Address{}, ErrNotFound
	}
	return address, nil
}

func (r *AddressRepository) DeleteForUser(ctx context.Context, id, userID string) error {
	if !validID(id) {
		return ErrNotFound
	}
	const query = `DELETE FROM addresses WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
