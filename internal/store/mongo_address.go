package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shipnest/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const addressesCollection = "addresses"

// MongoAddressRepository handles persistence for addresses in MongoDB.
// Lookups that take a userID only match addresses owned by that user.
type MongoAddressRepository struct {
	coll *mongo.Collection
}

func NewMongoAddressRepository(db *mongo.Database) *MongoAddressRepository {
	return &MongoAddressRepository{coll: db.Collection(addressesCollection)}
}

// EnsureIndexes creates the owner lookup index.
func (r *MongoAddressRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: 1}},
		Options: options.Index().SetName("user_created_idx"),
	})
	return err
}

func (r *MongoAddressRepository) Create(ctx context.Context, address types.Address) (types.Address, error) {
	now := time.Now().UTC()
	address.ID = uuid.NewString()
	address.CreatedAt = now
	address.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, address); err != nil {
		return types.Address{}, err
	}
	return address, nil
}

func (r *MongoAddressRepository) GetForUser(ctx context.Context, id, userID string) (types.Address, error) {
	if !validID(id) {
		return types.Address{}, ErrNotFound
	}
	var address types.Address
	if err := r.coll.FindOne(ctx, bson.M{"_id": id, "userId": userID}).Decode(&address); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Address{}, ErrNotFound
		}
		return types.Address{}, err
	}
	return address, nil
}

func (r *MongoAddressRepository) ListByUser(ctx context.Context, userID string) ([]types.Address, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	addresses := []types.Address{}
	for cur.Next(ctx) {
		var address types.Address
		if err := cur.Decode(&address); err != nil {
			return nil, err
		}
		addresses = append(addresses, address)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (r *MongoAddressRepository) Update(ctx context.Context, address types.Address) (types.Address, error) {
	if !validID(address.ID) {
		return types.Address{}, ErrNotFound
	}
	address.UpdatedAt = time.Now().UTC()

	update := bson.M{"$set": bson.M{
		"mobile":    address.Mobile,
		"flat":      address.Flat,
		"landmark":  address.Landmark,
		"street":    address.Street,
		"city":      address.City,
		"state":     address.State,
		"country":   address.Country,
		"pinCode":   address.PinCode,
		"updatedAt": address.UpdatedAt,
	}}
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": address.ID, "userId": address.UserID}, update)
	if err != nil {
		return types.Address{}, err
	}
	if result.MatchedCount == 0 {
		return types.Address{}, ErrNotFound
	}
	return address, nil
}

func (r *MongoAddressRepository) DeleteForUser(ctx context.Context, id, userID string) error {
	if !validID(id) {
		return ErrNotFound
	}
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
