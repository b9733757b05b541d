// Package idempotency 幂等键存储: 相同 Idempotency-Key 的重复请求直接返回首次的响应
package idempotency

import (
	"context"
	"errors"
	"time"
)

var ErrEmptyKey = errors.New("idempotency key is empty")

// Response 已完成请求的响应快照
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// entry 键的存储内容; Response 为空表示请求仍在处理中
type entry struct {
	Response *Response `json:"response,omitempty"`
}

// Store 幂等键存储
type Store interface {
	// Acquire 占用键, 已被占用（处理中或已完成）时返回 false
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Load 读取已完成的响应; 键不存在或仍在处理中时 ok 为 false
	Load(ctx context.Context, key string) (resp *Response, ok bool, err error)
	// Save 保存响应, 之后的 Load 返回该响应
	Save(ctx context.Context, key string, resp *Response, ttl time.Duration) error
	// Release 释放键, 允许客户端重试
	Release(ctx context.Context, key string) error
}
