package models

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 用户文档中 LinkedIn 凭据字段的拼写
var (
	accessTokenFields = []string{"linkedinAccessToken", "linkedin_access_token"}
	tokenExpiryFields = []string{"linkedinTokenExpiry", "linkedinExpiresAt", "linkedin_token_expiry"}
	profileIDFields   = []string{"linkedinProfileId", "linkedinId", "linkedin_profile_id"}
)

// Account 帖子所有者的 LinkedIn 凭据（只读）
type Account struct {
	ID          string
	Email       string
	AccessToken string
	TokenExpiry time.Time // 绝对时间，零值表示缺失
	ProfileID   string
}

// AccountFromRaw 从用户文档读取凭据，兼容多种字段拼写
func AccountFromRaw(raw bson.M) *Account {
	if raw == nil {
		return nil
	}
	acct := &Account{
		ID:          FormatID(raw["_id"]),
		Email:       strings.ToLower(lookupString(raw, []string{"email"}, nil)),
		AccessToken: lookupString(raw, accessTokenFields, nil),
		ProfileID:   lookupString(raw, profileIDFields, nil),
	}
	if v, ok := lookup(raw, tokenExpiryFields, nil); ok {
		acct.TokenExpiry = parseInstant(v)
	}
	return acct
}

// parseInstant 解析绝对时间：BSON 日期、毫秒时间戳或 RFC3339 字符串
func parseInstant(v interface{}) time.Time {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time().UTC()
	case time.Time:
		return val.UTC()
	case int64:
		return time.UnixMilli(val).UTC()
	case int32:
		return time.UnixMilli(int64(val)).UTC()
	case float64:
		return time.UnixMilli(int64(val)).UTC()
	case string:
		s := strings.TrimSpace(val)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	}
	return time.Time{}
}
