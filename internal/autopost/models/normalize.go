package models

import (
	"strings"

	"autoposter/internal/autopost/schedule"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Variant 描述一种历史文档结构到 Post 的字段映射
type Variant struct {
	Name             string
	StatusField      string
	ScheduleField    string
	OwnerIDFields    []string
	OwnerEmailFields []string
	ContentFields    []string
	ImageFields      []string
	TitleFields      []string
}

// VariantDashboard 当前仪表盘写入的结构
var VariantDashboard = Variant{
	Name:             "dashboard",
	StatusField:      FieldStatus,
	ScheduleField:    FieldScheduledFor,
	OwnerIDFields:    []string{"userId"},
	OwnerEmailFields: []string{"email", "userEmail"},
	ContentFields:    []string{"content"},
	ImageFields:      []string{"imageUrl"},
	TitleFields:      []string{"title"},
}

// VariantLegacy 早期排期功能写入的结构
var VariantLegacy = Variant{
	Name:             "legacy",
	StatusField:      FieldPostStatus,
	ScheduleField:    FieldScheduledTime,
	OwnerIDFields:    []string{"user_id", "ownerId"},
	OwnerEmailFields: []string{"ownerEmail", "userEmail"},
	ContentFields:    []string{"text", "postContent"},
	ImageFields:      []string{"image", "imageURL"},
	TitleFields:      []string{"topic"},
}

// Variants 按优先级排列
var Variants = []Variant{VariantDashboard, VariantLegacy}

// Normalize 将任意版本的原始文档转换为 Post
// 结构不匹配的文档返回 false，由调用方跳过而不是报错
func Normalize(collection string, raw bson.M, zone schedule.Zone) (*Post, bool) {
	if raw == nil {
		return nil, false
	}
	id, ok := raw["_id"]
	if !ok || id == nil {
		return nil, false
	}

	variant, status, ok := detectVariant(raw)
	if !ok {
		return nil, false
	}

	post := &Post{
		ID:          id,
		Collection:  collection,
		Variant:     variant.Name,
		StatusField: variant.StatusField,
		Status:      status,
	}

	if v, ok := lookup(raw, []string{variant.ScheduleField}, ScheduleFields); ok {
		if at, ok := zone.Parse(v); ok {
			post.ScheduledAt = at
		}
	}

	post.OwnerID = lookupString(raw, variant.OwnerIDFields, allOwnerIDFields())
	post.OwnerEmail = strings.ToLower(lookupString(raw, variant.OwnerEmailFields, allOwnerEmailFields()))
	post.Content = strings.TrimSpace(lookupString(raw, variant.ContentFields, allContentFields()))
	post.ImageURL = strings.TrimSpace(lookupString(raw, variant.ImageFields, allImageFields()))
	post.Title = strings.TrimSpace(lookupString(raw, variant.TitleFields, allTitleFields()))
	post.ExternalPostID = lookupString(raw, PostedMarkerFields, nil)
	post.LastError = lookupString(raw, []string{FieldError}, nil)

	if v, ok := raw[FieldRetryCount]; ok {
		post.RetryCount = toInt(v)
	}

	return post, true
}

// detectVariant 找到第一个状态字段为字符串的版本
func detectVariant(raw bson.M) (Variant, PostStatus, bool) {
	for _, variant := range Variants {
		if s, ok := raw[variant.StatusField].(string); ok && strings.TrimSpace(s) != "" {
			return variant, PostStatus(strings.ToLower(strings.TrimSpace(s))), true
		}
	}
	return Variant{}, "", false
}

// lookup 先查版本自身字段，再查所有已知拼写
func lookup(raw bson.M, preferred, fallback []string) (interface{}, bool) {
	for _, group := range [][]string{preferred, fallback} {
		for _, field := range group {
			if v, ok := raw[field]; ok && v != nil {
				return v, true
			}
		}
	}
	return nil, false
}

func lookupString(raw bson.M, preferred, fallback []string) string {
	for _, group := range [][]string{preferred, fallback} {
		for _, field := range group {
			v, ok := raw[field]
			if !ok || v == nil {
				continue
			}
			var s string
			switch val := v.(type) {
			case string:
				s = val
			case primitive.ObjectID:
				s = val.Hex()
			default:
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func collect(pick func(Variant) []string) []string {
	var out []string
	for _, v := range Variants {
		out = append(out, pick(v)...)
	}
	return out
}

func allOwnerIDFields() []string {
	return collect(func(v Variant) []string { return v.OwnerIDFields })
}

func allOwnerEmailFields() []string {
	return collect(func(v Variant) []string { return v.OwnerEmailFields })
}

func allContentFields() []string {
	return collect(func(v Variant) []string { return v.ContentFields })
}

func allImageFields() []string {
	return collect(func(v Variant) []string { return v.ImageFields })
}

func allTitleFields() []string {
	return collect(func(v Variant) []string { return v.TitleFields })
}
