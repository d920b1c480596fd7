package types

import "time"

// User represents an account in the system.
// It contains identity, credentials, and audit metadata.
type User struct {
	// ID is the unique identifier of the user, assigned by the store.
	ID string `json:"id" db:"id" bson:"_id"`

	// Username is the display name chosen at registration.
	Username string `json:"username" db:"username" bson:"username"`

	// Email is the user's email address. It is unique across users
	// and is the login identifier.
	Email string `json:"email" db:"email" bson:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash" bson:"password"`

	// ImageURL is the profile picture. It is derived from the email at
	// registration and may be replaced by the user later.
	ImageURL string `json:"imageUrl" db:"image_url" bson:"imageUrl"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at" bson:"createdAt"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at" bson:"updatedAt"`
}

// PublicUser is the outward-facing projection of a User.
// It has no credential fields, so it can be serialized anywhere.
type PublicUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	ImageURL  string    `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Public returns the projection of u that is safe to return to clients.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		ImageURL:  u.ImageURL,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
