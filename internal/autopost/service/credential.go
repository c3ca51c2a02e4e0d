package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autoposter/internal/autopost/models"
	"autoposter/internal/linkedin"
)

// TokenVerifier 在线校验令牌（由 linkedin.Client 实现）
type TokenVerifier interface {
	VerifyToken(ctx context.Context, accessToken string) error
}

// CredentialValidator 判断用户当前是否可以发帖；不会尝试刷新令牌
type CredentialValidator struct {
	margin   time.Duration
	verifier TokenVerifier // nil 表示不做在线校验
	nowFunc  func() time.Time
}

// NewCredentialValidator 创建凭据校验器
func NewCredentialValidator(margin time.Duration, verifier TokenVerifier, now func() time.Time) *CredentialValidator {
	if now == nil {
		now = time.Now
	}
	return &CredentialValidator{
		margin:   margin,
		verifier: verifier,
		nowFunc:  now,
	}
}

// Validate 缺少令牌、缺少过期时间或即将过期时返回 ErrCredentialInvalid
// 在线校验时，LinkedIn 返回的任何非成功响应都视为无效；网络错误原样返回，由调用方按临时错误处理
func (v *CredentialValidator) Validate(ctx context.Context, acct *models.Account) error {
	if acct == nil {
		return fmt.Errorf("%w: account missing", ErrCredentialInvalid)
	}
	if strings.TrimSpace(acct.AccessToken) == "" {
		return fmt.Errorf("%w: linkedin account not connected", ErrCredentialInvalid)
	}
	if acct.TokenExpiry.IsZero() {
		return fmt.Errorf("%w: token expiry unknown", ErrCredentialInvalid)
	}
	if !acct.TokenExpiry.After(v.nowFunc().Add(v.margin)) {
		return fmt.Errorf("%w: token expired at %s", ErrCredentialInvalid, acct.TokenExpiry.UTC().Format(time.RFC3339))
	}
	if strings.TrimSpace(acct.ProfileID) == "" {
		return fmt.Errorf("%w: linkedin profile id missing", ErrCredentialInvalid)
	}

	if v.verifier == nil {
		return nil
	}
	if err := v.verifier.VerifyToken(ctx, acct.AccessToken); err != nil {
		var apiErr *linkedin.APIError
		if errors.As(err, &apiErr) || errors.Is(err, linkedin.ErrMissingCredentials) {
			return fmt.Errorf("%w: token rejected by linkedin: %v", ErrCredentialInvalid, err)
		}
		return fmt.Errorf("verify linkedin token: %w", err)
	}
	return nil
}
