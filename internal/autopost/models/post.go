package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostStatus 帖子生命周期状态
type PostStatus string

const (
	StatusScheduled PostStatus = "scheduled" // 等待自动发布
	StatusPosted    PostStatus = "posted"    // 已发布（终态）
	StatusFailed    PostStatus = "failed"    // 失败，需要人工重新审批或重新授权
	StatusApproved  PostStatus = "approved"  // 已审批，尚未排期
)

// 帖子文档字段名（多个历史版本并存）
const (
	FieldStatus         = "status"
	FieldPostStatus     = "postStatus"
	FieldScheduledFor   = "scheduledFor"
	FieldScheduledTime  = "scheduledTime"
	FieldLinkedInPostID = "linkedinPostId"
	FieldExternalPostID = "externalPostId"
	FieldLinkedInURL    = "linkedinUrl"
	FieldPostedAt       = "postedAt"
	FieldError          = "error"
	FieldLastAttemptAt  = "lastAttemptAt"
	FieldRetryCount     = "retryCount"
	FieldNeedsReauth    = "needsReauth"
	FieldFailureReason  = "failureReason"
	FieldUpdatedAt      = "updatedAt"
)

// StatusFields 状态字段的所有拼写
var StatusFields = []string{FieldStatus, FieldPostStatus}

// ScheduleFields 排期时间字段的所有拼写
var ScheduleFields = []string{FieldScheduledFor, FieldScheduledTime}

// PostedMarkerFields 存在任一字段即视为已发布
var PostedMarkerFields = []string{FieldLinkedInPostID, FieldExternalPostID}

// Post 归一化后的帖子，所有下游组件只使用该结构
type Post struct {
	ID         interface{} // 原始 _id（ObjectID 或字符串）
	Collection string
	Variant    string // 匹配到的文档版本

	StatusField string // 写回状态时使用的字段名
	Status      PostStatus
	ScheduledAt time.Time // 参考时区下的挂钟时间

	OwnerID    string
	OwnerEmail string

	Title    string
	Content  string
	ImageURL string

	ExternalPostID string
	RetryCount     int
	LastError      string
}

// IDString 返回可读的帖子 ID
func (p *Post) IDString() string {
	return FormatID(p.ID)
}

// AlreadyPosted 是否已记录外部帖子 ID
func (p *Post) AlreadyPosted() bool {
	return p.ExternalPostID != ""
}

// IsDueAt 权威的“到期且未发布”判定：状态为 scheduled、排期时间不晚于 cutoff、且无外部帖子 ID
func (p *Post) IsDueAt(cutoff time.Time) bool {
	if p == nil {
		return false
	}
	if p.Status != StatusScheduled {
		return false
	}
	if p.AlreadyPosted() {
		return false
	}
	if p.ScheduledAt.IsZero() {
		return false
	}
	return !p.ScheduledAt.After(cutoff)
}

// FormatID 将 _id 转为字符串
func FormatID(id interface{}) string {
	switch v := id.(type) {
	case nil:
		return ""
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
