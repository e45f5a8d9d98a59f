// Package kvstore 提供字符串键值存储，模拟浏览器 localStorage 的持久化语义。
//
// 所有后端都是「最后写入者胜出」，不做合并与加锁。
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound 表示键不存在。
var ErrNotFound = errors.New("kvstore: key not found")

// Store 是键值存储接口。
type Store interface {
	// Get 读取键对应的值，不存在时返回 ErrNotFound。
	Get(ctx context.Context, key string) (string, error)
	// Set 无条件覆盖写入。
	Set(ctx context.Context, key, value string) error
	// Delete 删除键，键不存在时不报错。
	Delete(ctx context.Context, key string) error
	// Ping 检查后端可用性。
	Ping(ctx context.Context) error
	// Close 释放后端连接。
	Close() error
}

// 支持的后端驱动。
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
)

// Options 打开存储所需的参数。
type Options struct {
	Driver        string
	Namespace     string
	SQLitePath    string
	MySQLDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open 根据驱动创建存储。
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		if dir := filepath.Dir(opts.SQLitePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		db, err := OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db, opts.Namespace)
	case DriverMySQL:
		db, err := OpenMySQL(opts.MySQLDSN)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db, opts.Namespace)
	case DriverRedis:
		s := NewRedisStore(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.Namespace)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return s, nil
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
