// internal/transport/client.go
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/notify"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

const defaultTimeout = 15 * time.Second

// Client 后端 HTTP 客户端，统一日志、指标与错误提示
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *utils.Logger
	notifier   notify.Notifier
	metrics    *utils.RequestMetrics
}

// Option 客户端选项
type Option func(*Client)

// WithTimeout 固定请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger 指定日志
func WithLogger(l *utils.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithNotifier 指定用户提示出口
func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithMetrics 指定请求指标
func WithMetrics(m *utils.RequestMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New 创建客户端
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrDefault(c.logger)
	if c.metrics == nil {
		c.metrics = utils.NewRequestMetrics(nil, c.logger)
	}
	return c
}

// BaseURL 后端根地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL 拼接完整地址
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Metrics 请求指标
func (c *Client) Metrics() *utils.RequestMetrics {
	return c.metrics
}

type quietKey struct{}

// Quiet 返回不触发统一错误提示的 context，调用方自行提示
func Quiet(ctx context.Context) context.Context {
	return context.WithValue(ctx, quietKey{}, true)
}

func isQuiet(ctx context.Context) bool {
	v, _ := ctx.Value(quietKey{}).(bool)
	return v
}

// request 一次请求的描述
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	logBody     interface{}
}

// send 发送请求并在非 2xx 时返回 TransportError，调用方负责关闭 Body
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	target := c.URL(r.path)
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return nil, c.fail(ctx, r, apperrors.NewTransportError(0, "构造请求失败", err))
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json, */*")

	c.logger.Debug("请求详情", map[string]interface{}{
		"method": r.method,
		"url":    target,
		"params": r.query.Encode(),
		"data":   r.logBody,
	})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordRequest(r.method, r.path, 0, elapsed)
		msg := "网络请求失败"
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			msg = "请求超时"
		}
		return nil, c.fail(ctx, r, apperrors.NewTransportError(0, msg, err))
	}
	c.metrics.RecordRequest(r.method, r.path, resp.StatusCode, elapsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, c.fail(ctx, r, apperrors.NewTransportError(resp.StatusCode, backendMessage(raw, resp.StatusCode), nil))
	}
	return resp, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// backendMessage 优先使用返回体中的 message 字段
func backendMessage(raw []byte, status int) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return fmt.Sprintf("API错误: %d %s", status, http.StatusText(status))
}

// fail 记录日志并统一提示一次
func (c *Client) fail(ctx context.Context, r request, err *apperrors.AppError) error {
	c.logger.Error("响应错误", map[string]interface{}{
		"method": r.method,
		"path":   r.path,
		"status": err.Status,
		"type":   string(err.Type),
		"error":  err.Error(),
	})
	if !isQuiet(ctx) {
		notify.Error(c.notifier, err.Code, err.Message)
	}
	return err
}

// doJSON 发送并把 JSON 返回体解码到 out，out 为 nil 时丢弃返回体
func (c *Client) doJSON(ctx context.Context, r request, out interface{}) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(ctx, r, apperrors.NewTransportError(resp.StatusCode, "读取响应失败", err))
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.fail(ctx, r, apperrors.NewParseError("响应不是有效JSON", err))
	}
	return nil
}

func jsonRequest(method, path string, query url.Values, body interface{}) (request, error) {
	r := request{method: method, path: path, query: query, logBody: body}
	if body == nil {
		return r, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return r, apperrors.NewValidationError("INVALID_BODY", "请求体序列化失败: "+err.Error())
	}
	r.body = bytes.NewReader(data)
	r.contentType = "application/json"
	return r, nil
}

// Get 发送 GET 请求
func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	r, _ := jsonRequest(http.MethodGet, path, query, nil)
	return c.doJSON(ctx, r, out)
}

// Post 发送 JSON POST 请求
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	r, err := jsonRequest(http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, r, out)
}

// Put 发送 JSON PUT 请求
func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	r, err := jsonRequest(http.MethodPut, path, nil, body)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, r, out)
}

// Delete 发送 DELETE 请求
func (c *Client) Delete(ctx context.Context, path string, out interface{}) error {
	r, _ := jsonRequest(http.MethodDelete, path, nil, nil)
	return c.doJSON(ctx, r, out)
}

// PostMultipart 以 multipart/form-data 上传
func (c *Client) PostMultipart(ctx context.Context, path string, form *Form, out interface{}) error {
	body, contentType, err := form.encode()
	if err != nil {
		return apperrors.NewValidationError("INVALID_FORM", "表单编码失败: "+err.Error())
	}
	r := request{
		method:      http.MethodPost,
		path:        path,
		body:        body,
		contentType: contentType,
		logBody:     form.describe(),
	}
	return c.doJSON(ctx, r, out)
}

// GetData GET 并按 DecodeData 解包
func (c *Client) GetData(ctx context.Context, path string, query url.Values, out interface{}) error {
	var raw json.RawMessage
	if err := c.Get(ctx, path, query, &raw); err != nil {
		return err
	}
	return c.unwrap(ctx, http.MethodGet, path, raw, out)
}

// PostData POST 并按 DecodeData 解包
func (c *Client) PostData(ctx context.Context, path string, body, out interface{}) error {
	var raw json.RawMessage
	if err := c.Post(ctx, path, body, &raw); err != nil {
		return err
	}
	return c.unwrap(ctx, http.MethodPost, path, raw, out)
}

// PutData PUT 并按 DecodeData 解包
func (c *Client) PutData(ctx context.Context, path string, body, out interface{}) error {
	var raw json.RawMessage
	if err := c.Put(ctx, path, body, &raw); err != nil {
		return err
	}
	return c.unwrap(ctx, http.MethodPut, path, raw, out)
}

// MultipartData multipart 上传并按 DecodeData 解包
func (c *Client) MultipartData(ctx context.Context, path string, form *Form, out interface{}) error {
	var raw json.RawMessage
	if err := c.PostMultipart(ctx, path, form, &raw); err != nil {
		return err
	}
	return c.unwrap(ctx, http.MethodPost, path, raw, out)
}

func (c *Client) unwrap(ctx context.Context, method, path string, raw json.RawMessage, out interface{}) error {
	if err := DecodeData(raw, out); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return c.fail(ctx, request{method: method, path: path}, appErr)
		}
		return err
	}
	return nil
}

// DecodeData 兼容两种返回：{success,data,message} 信封，或直接返回的对象/数组。
// success=false 时返回 LogicalFailure。
func DecodeData(raw json.RawMessage, out interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}

	var fields map[string]json.RawMessage
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &fields) != nil {
		return decodeInto(trimmed, out)
	}

	if flag, ok := fields["success"]; ok {
		env := models.Envelope{Data: fields["data"]}
		_ = json.Unmarshal(flag, &env.Success)
		if msg, ok := fields["message"]; ok {
			_ = json.Unmarshal(msg, &env.Message)
		}
		return DecodeEnvelope(&env, out)
	}
	if data, ok := fields["data"]; ok {
		return decodeInto(data, out)
	}
	return decodeInto(trimmed, out)
}

func decodeInto(raw json.RawMessage, out interface{}) error {
	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.NewParseError("返回数据格式不正确", err)
	}
	return nil
}

// DecodeEnvelope success=false 时返回 LogicalFailure，否则把 data 解码到 out
func DecodeEnvelope(env *models.Envelope, out interface{}) error {
	if env == nil {
		return apperrors.NewParseError("响应为空", nil)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "请求失败"
		}
		return apperrors.NewLogicalFailure("LOGICAL_FAILURE", msg)
	}
	return decodeInto(env.Data, out)
}
