package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventfinder_auth/internal/config"
	"eventfinder_auth/internal/models"
	"eventfinder_auth/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepo struct {
	client *mongo.Client
	users  *mongo.Collection
	otps   *mongo.Collection
}

func New(ctx context.Context, cfg *config.Config) (*MongoRepo, error) {
	const op = "storage.mongodb.New"

	opts := options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	db := client.Database(cfg.Mongo.Database)

	r := &MongoRepo{
		client: client,
		users:  db.Collection("users"),
		otps:   db.Collection("otpverifications"),
	}

	if err := r.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: failed to create indexes: %w", op, err)
	}

	return r, nil
}

// ensureIndexes creates the unique email index and the TTL index that
// physically removes OTP documents once expiresAt elapses. Liveness checks
// never rely on the sweep having run; queries filter on expiresAt themselves.
func (r *MongoRepo) ensureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = r.otps.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})

	return err
}

func (r *MongoRepo) SaveUser(ctx context.Context, user models.User) (primitive.ObjectID, error) {
	const op = "storage.mongodb.SaveUser"

	// Pre-check mirrors the unique index; the index closes the race window.
	err := r.users.FindOne(ctx, bson.M{"email": user.Email}).Err()
	if err == nil {
		return primitive.NilObjectID, storage.ErrUserExists
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return primitive.NilObjectID, fmt.Errorf("%s: failed to check email: %w", op, err)
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := r.users.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, storage.ErrUserExists
		}

		return primitive.NilObjectID, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("%s: unexpected inserted id type %T", op, res.InsertedID)
	}

	return id, nil
}

func (r *MongoRepo) User(ctx context.Context, email string) (models.User, error) {
	const op = "storage.mongodb.User"

	var u models.User

	err := r.users.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *MongoRepo) UserByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	const op = "storage.mongodb.UserByID"

	var u models.User

	err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *MongoRepo) SetVerified(ctx context.Context, id primitive.ObjectID) error {
	const op = "storage.mongodb.SetVerified"

	res, err := r.users.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"isVerified": true, "updatedAt": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *MongoRepo) UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	const op = "storage.mongodb.UpdatePassword"

	res, err := r.users.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"passwordHash": passwordHash, "updatedAt": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *MongoRepo) SaveOtp(ctx context.Context, otp models.Otp) error {
	const op = "storage.mongodb.SaveOtp"

	otp.CreatedAt = time.Now()

	if _, err := r.otps.InsertOne(ctx, otp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Otp returns the live code record for (user, purpose). Expired documents
// are filtered out here even if the TTL sweep has not removed them yet.
func (r *MongoRepo) Otp(ctx context.Context, userID primitive.ObjectID, purpose models.OtpPurpose) (models.Otp, error) {
	const op = "storage.mongodb.Otp"

	filter := bson.M{
		"userId":    userID,
		"type":      purpose,
		"expiresAt": bson.M{"$gt": time.Now()},
	}

	var otp models.Otp

	err := r.otps.FindOne(ctx, filter).Decode(&otp)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Otp{}, storage.ErrOtpNotFound
		}

		return models.Otp{}, fmt.Errorf("%s: %w", op, err)
	}

	return otp, nil
}

func (r *MongoRepo) DeleteOtp(ctx context.Context, id primitive.ObjectID) error {
	const op = "storage.mongodb.DeleteOtp"

	if _, err := r.otps.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *MongoRepo) DeleteOtps(ctx context.Context, userID primitive.ObjectID, purpose models.OtpPurpose) error {
	const op = "storage.mongodb.DeleteOtps"

	if _, err := r.otps.DeleteMany(ctx, bson.M{"userId": userID, "type": purpose}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *MongoRepo) Close(ctx context.Context) {
	_ = r.client.Disconnect(ctx)
}
