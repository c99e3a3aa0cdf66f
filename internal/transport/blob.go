// internal/transport/blob.go
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
)

// Blob 二进制响应
type Blob struct {
	Data        []byte
	ContentType string
	FileName    string // 来自 Content-Disposition，可能为空
}

// GetBlob 以二进制方式读取响应
func (c *Client) GetBlob(ctx context.Context, path string, query url.Values) (*Blob, error) {
	r, _ := jsonRequest(http.MethodGet, path, query, nil)
	return c.doBlob(ctx, r)
}

// PostBlob 发送 JSON 请求体，以二进制方式读取响应
func (c *Client) PostBlob(ctx context.Context, path string, body interface{}) (*Blob, error) {
	r, err := jsonRequest(http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}
	return c.doBlob(ctx, r)
}

func (c *Client) doBlob(ctx context.Context, r request) (*Blob, error) {
	resp, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(ctx, r, apperrors.NewTransportError(resp.StatusCode, "读取文件失败", err))
	}
	return &Blob{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		FileName:    dispositionFileName(resp.Header.Get("Content-Disposition")),
	}, nil
}

func dispositionFileName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	// mime 已处理 filename* 的 RFC 5987 编码
	return params["filename"]
}

// Form multipart 表单
type Form struct {
	fields map[string]string
	files  []formFile
}

type formFile struct {
	field    string
	fileName string
	data     []byte
}

// NewForm 创建表单
func NewForm() *Form {
	return &Form{fields: make(map[string]string)}
}

// Set 设置文本字段
func (f *Form) Set(key, value string) *Form {
	f.fields[key] = value
	return f
}

// SetIf 值非空时设置
func (f *Form) SetIf(key, value string) *Form {
	if value != "" {
		f.fields[key] = value
	}
	return f
}

// SetJSON 以 JSON 字符串设置字段
func (f *Form) SetJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.fields[key] = string(data)
	return nil
}

// Field 读取文本字段
func (f *Form) Field(key string) (string, bool) {
	v, ok := f.fields[key]
	return v, ok
}

// File 附加文件
func (f *Form) File(field, fileName string, data []byte) *Form {
	f.files = append(f.files, formFile{field: field, fileName: fileName, data: data})
	return f
}

// FileFrom 从 Reader 读取文件内容
func (f *Form) FileFrom(field, fileName string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.File(field, fileName, data)
	return nil
}

func (f *Form) sortedKeys() []string {
	keys := make([]string, 0, len(f.fields))
	for k := range f.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *Form) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, k := range f.sortedKeys() {
		if err := w.WriteField(k, f.fields[k]); err != nil {
			return nil, "", err
		}
	}
	for _, file := range f.files {
		part, err := w.CreateFormFile(file.field, file.fileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// describe 日志用，文件只记录名称与大小
func (f *Form) describe() map[string]interface{} {
	out := make(map[string]interface{}, len(f.fields)+len(f.files))
	for k, v := range f.fields {
		out[k] = v
	}
	for _, file := range f.files {
		out[file.field] = map[string]interface{}{"file": file.fileName, "size": len(file.data)}
	}
	return out
}
