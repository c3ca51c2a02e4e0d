package repository

import (
	"context"
	"errors"

	"autoposter/internal/autopost/models"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

// ErrPostNotFound 帖子不存在（更新时未匹配到文档）
var ErrPostNotFound = errors.New("post not found")

// PostRepository 多集合帖子数据访问接口
type PostRepository interface {
	// FindScheduled 返回集合中状态为 scheduled 且没有外部帖子 ID 的原始文档
	FindScheduled(ctx context.Context, collection string) ([]bson.M, error)

	// UpdateFields 按 _id 更新：$set set 中的字段，$unset unset 中的字段
	UpdateFields(ctx context.Context, collection string, id interface{}, set bson.M, unset []string) error

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context, collections []string) error
}

// UserRepository 用户凭据只读接口
type UserRepository interface {
	// FindByID 根据用户 ID 获取凭据（ObjectID 十六进制或字符串 ID）
	FindByID(ctx context.Context, id string) (*models.Account, error)

	// FindByEmail 根据邮箱获取凭据（大小写不敏感）
	FindByEmail(ctx context.Context, email string) (*models.Account, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}
