// Package autoposttest 提供 autopost 各组件测试共用的内存实现
package autoposttest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"autoposter/internal/autopost/models"
	"autoposter/internal/autopost/repository"

	"go.mongodb.org/mongo-driver/bson"
)

// PostStore 内存版 repository.PostRepository，行为与 Mongo 查询条件保持一致
type PostStore struct {
	mu      sync.Mutex
	docs    map[string][]bson.M
	findErr map[string]error
	updates int

	// UpdateErr 非空时在每次 UpdateFields 前调用，返回错误则本次更新失败
	UpdateErr func(collection string, id interface{}, set bson.M) error
}

// NewPostStore 创建空的帖子存储
func NewPostStore() *PostStore {
	return &PostStore{
		docs:    make(map[string][]bson.M),
		findErr: make(map[string]error),
	}
}

// Insert 写入一条原始文档（会复制一份）
func (s *PostStore) Insert(collection string, doc bson.M) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[collection] = append(s.docs[collection], copyDoc(doc))
}

// FailFind 让某个集合的 FindScheduled 返回错误
func (s *PostStore) FailFind(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findErr[collection] = err
}

// Get 按 _id 返回文档副本
func (s *PostStore) Get(collection string, id interface{}) bson.M {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc := s.find(collection, id); doc != nil {
		return copyDoc(doc)
	}
	return nil
}

// Updates 返回成功执行的更新次数
func (s *PostStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *PostStore) FindScheduled(ctx context.Context, collection string) ([]bson.M, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.findErr[collection]; err != nil {
		return nil, fmt.Errorf("failed to find scheduled posts in %s: %w", collection, err)
	}

	var out []bson.M
	for _, doc := range s.docs[collection] {
		if isScheduledCandidate(doc) {
			out = append(out, copyDoc(doc))
		}
	}
	return out, nil
}

func (s *PostStore) UpdateFields(ctx context.Context, collection string, id interface{}, set bson.M, unset []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.UpdateErr != nil {
		if err := s.UpdateErr(collection, id, set); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.find(collection, id)
	if doc == nil {
		return fmt.Errorf("%w: %s in %s", repository.ErrPostNotFound, models.FormatID(id), collection)
	}
	for k, v := range set {
		doc[k] = v
	}
	for _, k := range unset {
		delete(doc, k)
	}
	s.updates++
	return nil
}

func (s *PostStore) EnsureIndexes(ctx context.Context, collections []string) error {
	return nil
}

func (s *PostStore) find(collection string, id interface{}) bson.M {
	for _, doc := range s.docs[collection] {
		if doc["_id"] == id {
			return doc
		}
	}
	return nil
}

// isScheduledCandidate 与 Mongo 查询条件等价：任一状态字段为 scheduled 且无已发布标记
func isScheduledCandidate(doc bson.M) bool {
	scheduled := false
	for _, field := range models.StatusFields {
		if v, ok := doc[field].(string); ok && v == string(models.StatusScheduled) {
			scheduled = true
		}
	}
	if !scheduled {
		return false
	}
	for _, field := range models.PostedMarkerFields {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		return false
	}
	return true
}

func copyDoc(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// UserStore 内存版 repository.UserRepository
type UserStore struct {
	mu       sync.Mutex
	accounts []*models.Account
	err      error
}

// NewUserStore 创建用户存储
func NewUserStore(accounts ...*models.Account) *UserStore {
	return &UserStore{accounts: accounts}
}

// Add 添加用户
func (s *UserStore) Add(acct *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, acct)
}

// Fail 让后续查询返回存储错误
func (s *UserStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return s.match(func(a *models.Account) bool { return a.ID == id })
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.match(func(a *models.Account) bool { return strings.EqualFold(a.Email, email) })
}

func (s *UserStore) EnsureIndexes(ctx context.Context) error { return nil }

func (s *UserStore) match(fn func(*models.Account) bool) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, acct := range s.accounts {
		if fn(acct) {
			copied := *acct
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}
