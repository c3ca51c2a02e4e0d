package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"autoposter/internal/autopost/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoUserRepository 用户数据访问层（只读凭据）
type MongoUserRepository struct {
	collection *mongo.Collection
}

// NewMongoUserRepository 创建用户 Repository
func NewMongoUserRepository(db *mongo.Database, collection string) *MongoUserRepository {
	if collection == "" {
		collection = "users"
	}
	return &MongoUserRepository{
		collection: db.Collection(collection),
	}
}

// FindByID 根据用户 ID 获取凭据
func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserNotFound
	}

	// 历史数据中 userId 既可能是 ObjectID 也可能是其十六进制字符串
	filter := bson.M{"_id": id}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		filter = bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return r.findOne(ctx, filter, id)
}

// FindByEmail 根据邮箱获取凭据
func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrUserNotFound
	}

	filter := bson.M{"email": primitive.Regex{
		Pattern: "^" + regexp.QuoteMeta(email) + "$",
		Options: "i",
	}}
	return r.findOne(ctx, filter, email)
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M, key string) (*models.Account, error) {
	var raw bson.M
	err := r.collection.FindOne(ctx, filter).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, key)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return models.AccountFromRaw(raw), nil
}

// EnsureIndexes 确保索引存在
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
