package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autoposter/internal/config"
	"autoposter/internal/logger"

	"github.com/h2non/filetype"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL       = "https://api.linkedin.com"
	defaultMaxImageBytes = 8 << 20

	protocolVersionHeader = "X-Restli-Protocol-Version"
	protocolVersion       = "2.0.0"

	uploadMechanismKey = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"
	feedImageRecipe    = "urn:li:digitalmediaRecipe:feedshare-image"

	postURLTemplate = "https://www.linkedin.com/feed/update/%s/"
)

// Client 封装 LinkedIn 发帖协议：注册上传、下载图片、上传二进制、创建帖子
type Client struct {
	baseURL       string
	httpClient    *http.Client
	maxImageBytes int64
}

// Option 自定义客户端行为
type Option func(*Client)

// WithHTTPClient 自定义 HTTP 客户端（测试时使用）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxImageBytes 限制下载图片的大小
func WithMaxImageBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxImageBytes = n
		}
	}
}

// NewClient 根据配置创建 LinkedIn 客户端
func NewClient(cfg config.LinkedInConfig, opts ...Option) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: timeout},
		maxImageBytes: defaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// PublishRequest 发布参数
type PublishRequest struct {
	Text        string
	ImageURL    string
	AccessToken string
	ProfileID   string
}

// PublishResult 发布结果
type PublishResult struct {
	PostID        string
	URL           string
	MediaAttached bool
}

// MediaUploadError 图片处理失败（不致命，发布会退化为纯文本）
type MediaUploadError struct {
	Step string
	Err  error
}

func (e *MediaUploadError) Error() string {
	return fmt.Sprintf("linkedin media %s failed: %v", e.Step, e.Err)
}

func (e *MediaUploadError) Unwrap() error { return e.Err }

// PostURL 由帖子 ID 构造可分享链接
func PostURL(postID string) string {
	return fmt.Sprintf(postURLTemplate, postID)
}

// PersonURN 返回作者 URN，已经是 URN 时原样返回
func PersonURN(profileID string) string {
	profileID = strings.TrimSpace(profileID)
	if strings.HasPrefix(profileID, "urn:li:") {
		return profileID
	}
	return "urn:li:person:" + profileID
}

// Publish 发布文本帖子；提供图片时先尝试上传，任何图片环节失败都退化为纯文本发布
func (c *Client) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyContent
	}
	if strings.TrimSpace(req.AccessToken) == "" || strings.TrimSpace(req.ProfileID) == "" {
		return nil, ErrMissingCredentials
	}

	hc := c.authorized(req.AccessToken)
	author := PersonURN(req.ProfileID)

	var asset string
	if imageURL := strings.TrimSpace(req.ImageURL); imageURL != "" {
		a, err := c.attachImage(ctx, hc, author, imageURL)
		if err != nil {
			logger.L().Warnf("LinkedIn image attach failed, publishing text only: %v", err)
		} else {
			asset = a
		}
	}

	postID, err := c.createPost(ctx, hc, author, text, asset)
	if err != nil {
		return nil, err
	}

	return &PublishResult{
		PostID:        postID,
		URL:           PostURL(postID),
		MediaAttached: asset != "",
	}, nil
}

// VerifyToken 在线校验令牌是否仍然有效
func (c *Client) VerifyToken(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return ErrMissingCredentials
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/userinfo", nil)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set(protocolVersionHeader, protocolVersion)

	resp, err := c.authorized(accessToken).Do(req)
	if err != nil {
		return fmt.Errorf("request linkedin userinfo failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return parseAPIError(resp.StatusCode, body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// authorized 返回携带 Bearer 令牌的客户端，沿用 c.httpClient 的传输层与超时
// oauth2.NewClient 会丢掉 Timeout，所以这里直接组装 oauth2.Transport
func (c *Client) authorized(accessToken string) *http.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Base: base,
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: accessToken,
				TokenType:   "Bearer",
			}),
		},
		CheckRedirect: c.httpClient.CheckRedirect,
		Jar:           c.httpClient.Jar,
		Timeout:       c.httpClient.Timeout,
	}
}

func (c *Client) attachImage(ctx context.Context, hc *http.Client, author, imageURL string) (string, error) {
	uploadURL, asset, err := c.registerUpload(ctx, hc, author)
	if err != nil {
		return "", &MediaUploadError{Step: "register", Err: err}
	}

	data, contentType, err := c.downloadImage(ctx, imageURL)
	if err != nil {
		return "", &MediaUploadError{Step: "download", Err: err}
	}

	if err := c.uploadImage(ctx, hc, uploadURL, data, contentType); err != nil {
		return "", &MediaUploadError{Step: "upload", Err: err}
	}
	return asset, nil
}

type registerUploadRequest struct {
	RegisterUploadRequest struct {
		Recipes              []string              `json:"recipes"`
		Owner                string                `json:"owner"`
		ServiceRelationships []serviceRelationship `json:"serviceRelationships"`
	} `json:"registerUploadRequest"`
}

type serviceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

func (c *Client) registerUpload(ctx context.Context, hc *http.Client, author string) (string, string, error) {
	var payload registerUploadRequest
	payload.RegisterUploadRequest.Recipes = []string{feedImageRecipe}
	payload.RegisterUploadRequest.Owner = author
	payload.RegisterUploadRequest.ServiceRelationships = []serviceRelationship{
		{RelationshipType: "OWNER", Identifier: "urn:li:userGeneratedContent"},
	}

	var out struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := c.postJSON(ctx, hc, "/v2/assets?action=registerUpload", payload, &out, nil); err != nil {
		return "", "", err
	}

	mechanism, ok := out.Value.UploadMechanism[uploadMechanismKey]
	if !ok || mechanism.UploadURL == "" || out.Value.Asset == "" {
		return "", "", fmt.Errorf("register upload response missing upload url or asset")
	}
	return mechanism.UploadURL, out.Value.Asset, nil
}

// downloadImage 下载图片（不携带令牌），并根据文件头识别 MIME 类型
func (c *Client) downloadImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request failed: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch image failed: status=%d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image failed: %w", err)
	}
	if int64(len(data)) > c.maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", c.maxImageBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("image is empty")
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || !filetype.IsImage(data) {
		return nil, "", fmt.Errorf("downloaded content is not a supported image")
	}
	return data, kind.MIME.Value, nil
}

func (c *Client) uploadImage(ctx context.Context, hc *http.Client, uploadURL string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("upload image failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return parseAPIError(resp.StatusCode, body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type shareMedia struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

type shareContent struct {
	ShareCommentary struct {
		Text string `json:"text"`
	} `json:"shareCommentary"`
	ShareMediaCategory string       `json:"shareMediaCategory"`
	Media              []shareMedia `json:"media,omitempty"`
}

type ugcPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent map[string]shareContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

// createPost 创建帖子；asset 为空时发布纯文本
func (c *Client) createPost(ctx context.Context, hc *http.Client, author, text, asset string) (string, error) {
	content := shareContent{ShareMediaCategory: "NONE"}
	content.ShareCommentary.Text = text
	if asset != "" {
		content.ShareMediaCategory = "IMAGE"
		content.Media = []shareMedia{{Status: "READY", Media: asset}}
	}

	payload := ugcPost{
		Author:          author,
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]shareContent{"com.linkedin.ugc.ShareContent": content},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}

	var out struct {
		ID string `json:"id"`
	}
	var header http.Header
	if err := c.postJSON(ctx, hc, "/v2/ugcPosts", payload, &out, &header); err != nil {
		return "", err
	}

	postID := strings.TrimSpace(out.ID)
	if postID == "" && header != nil {
		postID = strings.TrimSpace(header.Get("X-RestLi-Id"))
	}
	if postID == "" {
		return "", fmt.Errorf("linkedin publish response missing post id")
	}
	return postID, nil
}

func (c *Client) postJSON(ctx context.Context, hc *http.Client, path string, payload, out interface{}, header *http.Header) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(protocolVersionHeader, protocolVersion)

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request linkedin api failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read linkedin response failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, respBody)
	}
	if header != nil {
		*header = resp.Header.Clone()
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode linkedin response failed: %w", err)
		}
	}
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Body:       truncate(string(body), 512),
	}

	var envelope struct {
		ServiceErrorCode int    `json:"serviceErrorCode"`
		Code             string `json:"code"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.ServiceErrorCode = envelope.ServiceErrorCode
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Message
	}
	return apiErr
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
