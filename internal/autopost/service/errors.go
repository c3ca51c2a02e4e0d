package service

import "errors"

// 单个帖子级别的错误，记录到帖子上后继续处理下一个
var (
	ErrOwnerNotFound     = errors.New("post owner not found")
	ErrCredentialInvalid = errors.New("linkedin credential invalid")
)

// 写入帖子 error 字段的用户可读文案
const (
	messageOwnerNotFound  = "Post owner could not be found"
	messageReauthRequired = "LinkedIn connection expired or was revoked. Please reconnect your LinkedIn account and re-approve this post."
	messageEmptyContent   = "Post has no content to publish"
	messageMaxRetries     = "Publishing failed after %d attempts: %s"
	messageNoPostID       = "LinkedIn returned no post id"
)
