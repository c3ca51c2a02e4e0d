package repository

import (
	"context"
	"fmt"

	"autoposter/internal/autopost/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPostRepository 帖子数据访问层，同一个实体分散在多个集合中
type MongoPostRepository struct {
	db *mongo.Database
}

// NewMongoPostRepository 创建帖子 Repository
func NewMongoPostRepository(db *mongo.Database) *MongoPostRepository {
	return &MongoPostRepository{db: db}
}

// scheduledFilter 任一状态字段为 scheduled，且所有已发布标记字段缺失或为空
func scheduledFilter() bson.M {
	statusClauses := make(bson.A, 0, len(models.StatusFields))
	for _, field := range models.StatusFields {
		statusClauses = append(statusClauses, bson.M{field: string(models.StatusScheduled)})
	}

	filter := bson.M{"$or": statusClauses}
	for _, field := range models.PostedMarkerFields {
		filter[field] = bson.M{"$in": bson.A{nil, ""}}
	}
	return filter
}

// FindScheduled 查询待发布候选文档（到期判断在内存中完成，因为排期字段类型不统一）
func (r *MongoPostRepository) FindScheduled(ctx context.Context, collection string) ([]bson.M, error) {
	cursor, err := r.db.Collection(collection).Find(ctx, scheduledFilter())
	if err != nil {
		return nil, fmt.Errorf("failed to find scheduled posts in %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode scheduled posts in %s: %w", collection, err)
	}
	return docs, nil
}

// UpdateFields 按 _id 更新帖子字段
func (r *MongoPostRepository) UpdateFields(ctx context.Context, collection string, id interface{}, set bson.M, unset []string) error {
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		unsetFields := bson.M{}
		for _, field := range unset {
			unsetFields[field] = ""
		}
		update["$unset"] = unsetFields
	}
	if len(update) == 0 {
		return nil
	}

	result, err := r.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update post %s in %s: %w", models.FormatID(id), collection, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s in %s", ErrPostNotFound, models.FormatID(id), collection)
	}
	return nil
}

// EnsureIndexes 为每个集合创建状态+排期时间索引
func (r *MongoPostRepository) EnsureIndexes(ctx context.Context, collections []string) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: models.FieldStatus, Value: 1}, {Key: models.FieldScheduledFor, Value: 1}},
		},
		{
			Keys:    bson.D{{Key: models.FieldPostStatus, Value: 1}, {Key: models.FieldScheduledTime, Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	for _, name := range collections {
		if _, err := r.db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}
