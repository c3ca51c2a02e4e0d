package models

// Outcome 单个帖子在一次运行中的处理结果
type Outcome string

const (
	OutcomePosted  Outcome = "posted"  // 发布成功
	OutcomeFailed  Outcome = "failed"  // 失败且已移出排期
	OutcomeRetry   Outcome = "retry"   // 临时错误，保留排期等待下次运行
	OutcomeSkipped Outcome = "skipped" // 已有外部帖子 ID，未重复发布
)

// FailureReason 写入帖子 failureReason 字段
type FailureReason string

const (
	ReasonUserNotFound   FailureReason = "user_not_found"
	ReasonReauthRequired FailureReason = "reauth_required"
	ReasonEmptyContent   FailureReason = "empty_content"
	ReasonProviderError  FailureReason = "provider_error"
	ReasonMaxRetries     FailureReason = "max_retries"
)

// PostResult 运行摘要中的单条结果
type PostResult struct {
	ID          string  `json:"id"`
	Collection  string  `json:"collection"`
	Title       string  `json:"title,omitempty"`
	Outcome     Outcome `json:"status"`
	Error       string  `json:"error,omitempty"`
	LinkedInURL string  `json:"linkedinUrl,omitempty"`
	RetryCount  int     `json:"retryCount,omitempty"`
}
