package service

import (
	"context"
	"sort"
	"time"

	"autoposter/internal/autopost/models"
	"autoposter/internal/autopost/repository"
	"autoposter/internal/autopost/schedule"
	"autoposter/internal/logger"
)

// Scanner 查找集合中已到期且尚未发布的帖子
type Scanner struct {
	posts   repository.PostRepository
	window  schedule.Window
	nowFunc func() time.Time
}

// NewScanner 创建扫描器
func NewScanner(posts repository.PostRepository, window schedule.Window, now func() time.Time) *Scanner {
	if now == nil {
		now = time.Now
	}
	return &Scanner{
		posts:   posts,
		window:  window,
		nowFunc: now,
	}
}

// Scan 返回到期帖子，按排期时间从早到晚排序
// 结构不匹配或未到期的文档直接跳过
func (s *Scanner) Scan(ctx context.Context, collection string) ([]*models.Post, error) {
	docs, err := s.posts.FindScheduled(ctx, collection)
	if err != nil {
		return nil, err
	}

	cutoff := s.window.Cutoff(s.nowFunc())
	due := make([]*models.Post, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		post, ok := models.Normalize(collection, doc, s.window.Zone)
		if !ok || !post.IsDueAt(cutoff) {
			skipped++
			continue
		}
		due = append(due, post)
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})

	logger.L().Debugf("Scanned %s: candidates=%d due=%d skipped=%d cutoff=%s",
		collection, len(docs), len(due), skipped, cutoff.Format("2006-01-02T15:04:05"))
	return due, nil
}
