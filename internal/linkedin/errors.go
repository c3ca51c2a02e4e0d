package linkedin

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrEmptyContent 帖子正文为空
var ErrEmptyContent = errors.New("linkedin: post content is empty")

// ErrMissingCredentials 缺少 access token 或 profile id
var ErrMissingCredentials = errors.New("linkedin: access token or profile id is missing")

// APIError 表示 LinkedIn 返回的非成功响应
type APIError struct {
	StatusCode       int
	ServiceErrorCode int
	Code             string
	Message          string
	Body             string // 原始响应（截断）
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("linkedin api error: status=%d, message=%s", e.StatusCode, msg)
}

// reauthServiceErrorCodes LinkedIn 对无效/吊销/过期令牌返回的 serviceErrorCode
var reauthServiceErrorCodes = map[int]struct{}{
	65600: {},
	65601: {},
	65602: {},
}

// reauthCodes 响应体 code 字段中表示令牌失效的取值
var reauthCodes = map[string]struct{}{
	"EXPIRED_ACCESS_TOKEN": {},
	"REVOKED_ACCESS_TOKEN": {},
	"INVALID_ACCESS_TOKEN": {},
}

// ReauthPhrases 在没有结构化字段可判断时使用的短语白名单（小写匹配）
// LinkedIn 修改错误文案后这里会静默失效，新增短语需要同步测试
var ReauthPhrases = []string{
	"token expired",
	"expired access token",
	"access token expired",
	"invalid access token",
	"revoked access token",
	"the token used in the request has expired",
	"the token used in the request has been revoked",
}

// IsReauthError 判断错误是否意味着需要用户重新连接 LinkedIn
// 先看 HTTP 状态和结构化错误码，最后才退回到文案匹配
func IsReauthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingCredentials) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized {
			return true
		}
		if _, ok := reauthServiceErrorCodes[apiErr.ServiceErrorCode]; ok {
			return true
		}
		if _, ok := reauthCodes[strings.ToUpper(strings.TrimSpace(apiErr.Code))]; ok {
			return true
		}
		return containsReauthPhrase(apiErr.Message) || containsReauthPhrase(apiErr.Body)
	}

	return containsReauthPhrase(err.Error())
}

func containsReauthPhrase(message string) bool {
	message = strings.ToLower(strings.TrimSpace(message))
	if message == "" {
		return false
	}
	for _, phrase := range ReauthPhrases {
		if strings.Contains(message, phrase) {
			return true
		}
	}
	return false
}
