package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

// Record 是 kv_records 表的一行。
type Record struct {
	Key       string    `gorm:"primaryKey;type:varchar(191)"` // 带命名空间的键
	Value     string    `gorm:"type:text;not null"`           // 序列化后的值
	UpdatedAt time.Time // 最后写入时间
}

// TableName 固定表名。
func (Record) TableName() string {
	return "kv_records"
}

// GormStore 使用关系型数据库的一张表模拟键值存储。
type GormStore struct {
	db        *gorm.DB
	namespace string
}

// OpenSQLite 打开（或创建）SQLite 数据库文件。
func OpenSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		path = "data/todoapp.db"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

// OpenMySQL 连接 MySQL。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

// NewGormStore 创建存储并执行自动迁移。
func NewGormStore(db *gorm.DB, namespace string) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("gorm db is nil")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate kv_records: %w", err)
	}
	return &GormStore{db: db, namespace: namespace}, nil
}

func (s *GormStore) Get(ctx context.Context, key string) (string, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("`key` = ?", s.namespace+key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query kv record: %w", err)
	}
	return rec.Value, nil
}

func (s *GormStore) Set(ctx context.Context, key, value string) error {
	rec := Record{Key: s.namespace + key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert kv record: %w", err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("`key` = ?", s.namespace+key).Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("delete kv record: %w", err)
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	var one int
	return s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

// Close 关闭底层连接池。
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
