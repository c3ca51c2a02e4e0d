package autoposttest

import (
	"context"
	"fmt"
	"sync"

	"autoposter/internal/linkedin"
)

// Publisher 记录调用并按需返回错误或 panic 的发布器
type Publisher struct {
	mu    sync.Mutex
	calls []linkedin.PublishRequest
	seq   int

	// Handle 非空时决定每次发布的结果；为空则全部成功
	Handle func(req linkedin.PublishRequest) (*linkedin.PublishResult, error)
}

func (p *Publisher) Publish(ctx context.Context, req linkedin.PublishRequest) (*linkedin.PublishResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.seq++
	seq := p.seq
	handle := p.Handle
	p.mu.Unlock()

	if handle != nil {
		return handle(req)
	}
	id := fmt.Sprintf("urn:li:share:%d", 7000+seq)
	return &linkedin.PublishResult{
		PostID:        id,
		URL:           linkedin.PostURL(id),
		MediaAttached: req.ImageURL != "",
	}, nil
}

// Calls 返回已收到的发布请求
func (p *Publisher) Calls() []linkedin.PublishRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]linkedin.PublishRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

// Verifier 在线令牌校验替身
type Verifier struct {
	mu    sync.Mutex
	Err   error
	calls int
}

func (v *Verifier) VerifyToken(ctx context.Context, accessToken string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.Err
}

// Calls 返回校验次数
func (v *Verifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}
