package users

import (
	"context"
	"sync"
	"time"

	"github.com/docvault/docvault/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository defines persistence operations for users
type UserRepository interface {
	UpsertBySub(ctx context.Context, u *models.User) (*models.User, error)
	GetBySub(ctx context.Context, sub string) (*models.User, error)
	GetByFeedKey(ctx context.Context, key string) (*models.User, error)
	SetFeedKey(ctx context.Context, sub, key string) error
}

// MongoUserRepository implements UserRepository using MongoDB
type MongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository creates a new repository for the given collection
func NewMongoUserRepository(col *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{col: col}
}

func (r *MongoUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	set := bson.M{
		"email":     u.Email,
		"name":      u.Name,
		"updatedAt": u.UpdatedAt,
		"createdAt": u.CreatedAt,
	}
	if len(u.Roles) > 0 {
		set["roles"] = u.Roles
	}
	if u.DisplayName != "" {
		set["displayName"] = u.DisplayName
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated models.User
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"sub": u.Sub}, bson.M{"$set": set}, opts).Decode(&updated); err != nil {
		if err == mongo.ErrNoDocuments {
			return u, nil
		}
		return nil, err
	}
	return &updated, nil
}

func (r *MongoUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"sub": sub}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoUserRepository) GetByFeedKey(ctx context.Context, key string) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"feedKey": key}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoUserRepository) SetFeedKey(ctx context.Context, sub, key string) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"sub": sub}, bson.M{"$set": bson.M{
		"feedKey":   key,
		"updatedAt": time.Now().UTC(),
	}})
	return err
}

// MemoryUserRepository is an in-memory UserRepository for tests and local runs.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User // keyed by sub
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*models.User)}
}

func (r *MemoryUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	existing, ok := r.users[u.Sub]
	if ok {
		existing.Email = u.Email
		existing.Name = u.Name
		if len(u.Roles) > 0 {
			existing.Roles = u.Roles
		}
		if u.DisplayName != "" {
			existing.DisplayName = u.DisplayName
		}
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}
	u.ID = u.Sub
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	r.users[u.Sub] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[sub]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryUserRepository) GetByFeedKey(ctx context.Context, key string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.FeedKey != "" && u.FeedKey == key {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryUserRepository) SetFeedKey(ctx context.Context, sub, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[sub]; ok {
		u.FeedKey = key
		u.UpdatedAt = time.Now().UTC()
	}
	return nil
}
