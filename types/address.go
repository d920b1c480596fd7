package types

import "time"

// Address is a shipping address owned by exactly one user.
type Address struct {
	// ID is the unique identifier of the address.
	ID string `json:"id" db:"id" bson:"_id"`

	// UserID references the owning user. Deleting the user does not
	// cascade to its addresses.
	UserID string `json:"userId" db:"user_id" bson:"userId"`

	Mobile   string `json:"mobile" db:"mobile" bson:"mobile"`
	Flat     string `json:"flat" db:"flat" bson:"flat"`
	Landmark string `json:"landmark" db:"landmark" bson:"landmark"`
	Street   string `json:"street" db:"street" bson:"street"`
	City     string `json:"city" db:"city" bson:"city"`
	State    string `json:"state" db:"state" bson:"state"`
	Country  string `json:"country" db:"country" bson:"country"`
	PinCode  string `json:"pinCode" db:"pin_code" bson:"pinCode"`

	CreatedAt time.Time `json:"createdAt" db:"created_at" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at" bson:"updatedAt"`
}

// AddressInput carries the client-editable fields of an Address.
type AddressInput struct {
	Mobile   string `json:"mobile"`
	Flat     string `json:"flat"`
	Landmark string `json:"landmark"`
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	Country  string `json:"country"`
	PinCode  string `json:"pinCode"`
}

// Apply copies every editable field of in onto a.
func (a *Address) Apply(in AddressInput) {
	a.Mobile = in.Mobile
	a.Flat = in.Flat
	a.Landmark = in.Landmark
	a.Street = in.Street
	a.City = in.City
	a.State = in.State
	a.Country = in.Country
	a.PinCode = in.PinCode
}
