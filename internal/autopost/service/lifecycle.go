package service

import (
	"context"
	"fmt"
	"time"

	"autoposter/internal/autopost/models"
	"autoposter/internal/autopost/repository"
	"autoposter/internal/linkedin"
	"autoposter/internal/logger"

	"go.mongodb.org/mongo-driver/bson"
)

// Lifecycle 推进帖子状态：scheduled → posted | failed，或保留 scheduled 并累加重试次数
type Lifecycle struct {
	posts      repository.PostRepository
	maxRetries int
	nowFunc    func() time.Time
}

// NewLifecycle 创建状态机
func NewLifecycle(posts repository.PostRepository, maxRetries int, now func() time.Time) *Lifecycle {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{
		posts:      posts,
		maxRetries: maxRetries,
		nowFunc:    now,
	}
}

// MaxRetries 返回重试上限
func (l *Lifecycle) MaxRetries() int { return l.maxRetries }

// MarkPosted 记录发布成功，清除错误与排期字段
// 完整更新失败时至少补写外部帖子 ID，避免下次运行重复发布
func (l *Lifecycle) MarkPosted(ctx context.Context, post *models.Post, result *linkedin.PublishResult) error {
	now := l.nowFunc().UTC()
	set := bson.M{
		statusField(post):          string(models.StatusPosted),
		models.FieldLinkedInPostID: result.PostID,
		models.FieldLinkedInURL:    result.URL,
		models.FieldPostedAt:       now,
		models.FieldLastAttemptAt:  now,
		models.FieldUpdatedAt:      now,
	}
	unset := append([]string{
		models.FieldError,
		models.FieldFailureReason,
		models.FieldNeedsReauth,
	}, models.ScheduleFields...)

	err := l.posts.UpdateFields(ctx, post.Collection, post.ID, set, unset)
	if err == nil {
		return nil
	}

	logger.L().Errorf("Failed to persist posted state for %s/%s, writing external id only: %v",
		post.Collection, post.IDString(), err)
	if markerErr := l.RecordPublished(ctx, post, result); markerErr != nil {
		return fmt.Errorf("mark posted: %w (external id write also failed: %v)", err, markerErr)
	}
	return fmt.Errorf("mark posted: %w", err)
}

// RecordPublished 只写外部帖子 ID，扫描时据此排除，保证不会再次发布
func (l *Lifecycle) RecordPublished(ctx context.Context, post *models.Post, result *linkedin.PublishResult) error {
	marker := bson.M{
		models.FieldLinkedInPostID: result.PostID,
		models.FieldLinkedInURL:    result.URL,
	}
	return l.posts.UpdateFields(ctx, post.Collection, post.ID, marker, nil)
}

// MarkFailed 标记失败并移出排期，需要用户重新审批或重新连接
func (l *Lifecycle) MarkFailed(ctx context.Context, post *models.Post, reason models.FailureReason, message string) error {
	now := l.nowFunc().UTC()
	set := bson.M{
		statusField(post):         string(models.StatusFailed),
		models.FieldError:         message,
		models.FieldFailureReason: string(reason),
		models.FieldLastAttemptAt: now,
		models.FieldUpdatedAt:     now,
	}
	if reason == models.ReasonReauthRequired {
		set[models.FieldNeedsReauth] = true
	}

	if err := l.posts.UpdateFields(ctx, post.Collection, post.ID, set, models.ScheduleFields); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// RecordAttemptError 记录一次临时失败
// 未达上限时保留排期等待下次运行；达到上限后转为终态 failed
func (l *Lifecycle) RecordAttemptError(ctx context.Context, post *models.Post, message string) (models.Outcome, int, error) {
	attempts := post.RetryCount + 1
	if attempts >= l.maxRetries {
		final := fmt.Sprintf(messageMaxRetries, attempts, message)
		now := l.nowFunc().UTC()
		set := bson.M{
			statusField(post):         string(models.StatusFailed),
			models.FieldError:         final,
			models.FieldFailureReason: string(models.ReasonMaxRetries),
			models.FieldRetryCount:    attempts,
			models.FieldLastAttemptAt: now,
			models.FieldUpdatedAt:     now,
		}
		if err := l.posts.UpdateFields(ctx, post.Collection, post.ID, set, models.ScheduleFields); err != nil {
			return models.OutcomeFailed, attempts, fmt.Errorf("mark failed after retries: %w", err)
		}
		return models.OutcomeFailed, attempts, nil
	}

	now := l.nowFunc().UTC()
	set := bson.M{
		models.FieldError:         message,
		models.FieldFailureReason: string(models.ReasonProviderError),
		models.FieldRetryCount:    attempts,
		models.FieldLastAttemptAt: now,
		models.FieldUpdatedAt:     now,
	}
	if err := l.posts.UpdateFields(ctx, post.Collection, post.ID, set, nil); err != nil {
		return models.OutcomeRetry, attempts, fmt.Errorf("record attempt error: %w", err)
	}
	return models.OutcomeRetry, attempts, nil
}

func statusField(post *models.Post) string {
	if post.StatusField == "" {
		return models.FieldStatus
	}
	return post.StatusField
}
