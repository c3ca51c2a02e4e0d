package service

import (
	"context"
	"errors"
	"fmt"

	"autoposter/internal/autopost/models"
	"autoposter/internal/autopost/repository"
	"autoposter/internal/linkedin"
	"autoposter/internal/logger"
)

// Publisher 发布到 LinkedIn（由 linkedin.Client 实现）
type Publisher interface {
	Publish(ctx context.Context, req linkedin.PublishRequest) (*linkedin.PublishResult, error)
}

// Processor 处理单个到期帖子：解析所有者 → 校验凭据 → 发布 → 推进状态
type Processor struct {
	users     repository.UserRepository
	validator *CredentialValidator
	publisher Publisher
	lifecycle *Lifecycle
}

// NewProcessor 创建帖子处理器
func NewProcessor(users repository.UserRepository, validator *CredentialValidator, publisher Publisher, lifecycle *Lifecycle) *Processor {
	return &Processor{
		users:     users,
		validator: validator,
		publisher: publisher,
		lifecycle: lifecycle,
	}
}

// Process 处理一个帖子并返回结果，不会向外抛出错误或 panic
func (p *Processor) Process(ctx context.Context, runID string, post *models.Post) (result models.PostResult) {
	log := logger.Post(runID, post.Collection, post.IDString())
	result = models.PostResult{
		ID:         post.IDString(),
		Collection: post.Collection,
		Title:      post.Title,
		RetryCount: post.RetryCount,
	}

	var published *linkedin.PublishResult
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Post processing panic recovered: %v", r)
			message := fmt.Sprintf("unexpected error: %v", r)
			if published != nil {
				// 已经发出的帖子不能回到可重试状态
				result = p.publishedButUnsaved(ctx, post, result, published, message)
				return
			}
			result = p.attemptFailed(ctx, post, result, message)
		}
	}()

	// 扫描时已排除，这里再确认一次，保证同一帖子不会发布两次
	if post.AlreadyPosted() {
		log.Warnf("Post already has external id %s, skipping publish", post.ExternalPostID)
		result.Outcome = models.OutcomeSkipped
		return result
	}

	if post.RetryCount >= p.lifecycle.MaxRetries() {
		msg := fmt.Sprintf(messageMaxRetries, post.RetryCount, post.LastError)
		return p.failed(ctx, post, result, models.ReasonMaxRetries, msg)
	}

	acct, err := p.resolveOwner(ctx, post)
	if err != nil {
		if errors.Is(err, ErrOwnerNotFound) {
			log.Warnf("Post owner not found: owner_id=%q email=%q", post.OwnerID, post.OwnerEmail)
			return p.failed(ctx, post, result, models.ReasonUserNotFound, messageOwnerNotFound)
		}
		log.Errorf("Owner lookup failed: %v", err)
		return p.attemptFailed(ctx, post, result, err.Error())
	}

	if err := p.validator.Validate(ctx, acct); err != nil {
		if errors.Is(err, ErrCredentialInvalid) {
			log.Warnf("Credential invalid: %v", err)
			return p.failed(ctx, post, result, models.ReasonReauthRequired, messageReauthRequired)
		}
		log.Errorf("Credential check failed: %v", err)
		return p.attemptFailed(ctx, post, result, err.Error())
	}

	if post.Content == "" {
		return p.failed(ctx, post, result, models.ReasonEmptyContent, messageEmptyContent)
	}

	published, err = p.publisher.Publish(ctx, linkedin.PublishRequest{
		Text:        post.Content,
		ImageURL:    post.ImageURL,
		AccessToken: acct.AccessToken,
		ProfileID:   acct.ProfileID,
	})
	if err != nil {
		published = nil
		switch {
		case errors.Is(err, linkedin.ErrEmptyContent):
			return p.failed(ctx, post, result, models.ReasonEmptyContent, messageEmptyContent)
		case linkedin.IsReauthError(err):
			log.Warnf("LinkedIn rejected credentials: %v", err)
			return p.failed(ctx, post, result, models.ReasonReauthRequired, messageReauthRequired)
		default:
			log.Errorf("LinkedIn publish failed: %v", err)
			return p.attemptFailed(ctx, post, result, err.Error())
		}
	}
	if published == nil || published.PostID == "" {
		published = nil
		log.Error("LinkedIn publish returned no post id")
		return p.attemptFailed(ctx, post, result, messageNoPostID)
	}

	result.Outcome = models.OutcomePosted
	result.LinkedInURL = published.URL
	if err := p.lifecycle.MarkPosted(ctx, post, published); err != nil {
		// 帖子已经发出，只记录持久化错误，不把结果改成失败
		log.Errorf("Published %s but failed to persist state: %v", published.PostID, err)
		result.Error = err.Error()
		return result
	}

	log.Infof("Published to LinkedIn: %s (media=%v)", published.URL, published.MediaAttached)
	return result
}

// resolveOwner 优先按用户 ID 查找，找不到再按邮箱
func (p *Processor) resolveOwner(ctx context.Context, post *models.Post) (*models.Account, error) {
	if post.OwnerID != "" {
		acct, err := p.users.FindByID(ctx, post.OwnerID)
		if err == nil {
			return acct, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}
	if post.OwnerEmail != "" {
		acct, err := p.users.FindByEmail(ctx, post.OwnerEmail)
		if err == nil {
			return acct, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}
	return nil, ErrOwnerNotFound
}

// publishedButUnsaved 帖子已发出但后续步骤中断：补写外部 ID 并按已发布返回
func (p *Processor) publishedButUnsaved(ctx context.Context, post *models.Post, result models.PostResult, published *linkedin.PublishResult, message string) models.PostResult {
	result.Outcome = models.OutcomePosted
	result.LinkedInURL = published.URL
	result.Error = message
	if err := p.lifecycle.RecordPublished(ctx, post, published); err != nil {
		logger.L().Errorf("Failed to record external id %s for %s/%s: %v", published.PostID, post.Collection, post.IDString(), err)
		result.Error = fmt.Sprintf("%s (external id not saved: %v)", message, err)
	}
	return result
}

func (p *Processor) failed(ctx context.Context, post *models.Post, result models.PostResult, reason models.FailureReason, message string) models.PostResult {
	result.Outcome = models.OutcomeFailed
	result.Error = message
	if err := p.lifecycle.MarkFailed(ctx, post, reason, message); err != nil {
		logger.L().Errorf("Failed to record failure for %s/%s: %v", post.Collection, post.IDString(), err)
		result.Error = fmt.Sprintf("%s (state not saved: %v)", message, err)
	}
	return result
}

func (p *Processor) attemptFailed(ctx context.Context, post *models.Post, result models.PostResult, message string) models.PostResult {
	outcome, attempts, err := p.lifecycle.RecordAttemptError(ctx, post, message)
	result.Outcome = outcome
	result.Error = message
	result.RetryCount = attempts
	if err != nil {
		logger.L().Errorf("Failed to record attempt error for %s/%s: %v", post.Collection, post.IDString(), err)
		result.Error = fmt.Sprintf("%s (state not saved: %v)", message, err)
	}
	return result
}
