// Package localdb 将整个实体集合序列化为一个 JSON 数组，保存在固定键下。
//
// 每次读取都加载全部数据，每次写入都覆盖全部数据，没有索引。
// 这只适用于单用户、小数据量的本地场景。
package localdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"todoapp/internal/pkg/kvstore"
)

// ErrParse 表示键存在但内容不是合法的 JSON 数组。
var ErrParse = errors.New("localdb: corrupted collection")

// Collection 是某个键下的实体集合。
type Collection[T any] struct {
	kv  kvstore.Store
	key string
}

// New 创建集合。
func New[T any](kv kvstore.Store, key string) *Collection[T] {
	return &Collection[T]{kv: kv, key: key}
}

// Key 返回集合使用的存储键。
func (c *Collection[T]) Key() string {
	return c.key
}

// GetAll 读取全部记录；键不存在时返回空切片。
func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	raw, err := c.kv.Get(ctx, c.key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c.key, err)
	}

	items := []T{}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, c.key, err)
	}
	if items == nil {
		// 存储内容为 "null"
		items = []T{}
	}
	return items, nil
}

// Save 序列化并覆盖写入全部记录。
func (c *Collection[T]) Save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", c.key, err)
	}
	if err := c.kv.Set(ctx, c.key, string(data)); err != nil {
		return fmt.Errorf("save %s: %w", c.key, err)
	}
	return nil
}

// Reset 删除整个集合，用于调用方决定丢弃损坏数据的场景。
func (c *Collection[T]) Reset(ctx context.Context) error {
	if err := c.kv.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("reset %s: %w", c.key, err)
	}
	return nil
}
