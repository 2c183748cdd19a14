package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/moguldesignsjordan/mogul-ai-agent/internal/database"
)

// GormStore 关系型数据库实现，表结构由 internal/migration 维护.
type GormStore struct {
	pool   *database.PoolManager
	logger *zap.Logger
	now    func() time.Time
}

var _ Store = (*GormStore)(nil)

// NewGormStore 基于连接池创建存储.
func NewGormStore(pool *database.PoolManager, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		pool:   pool,
		logger: logger.With(zap.String("component", "store"), zap.String("backend", "gorm")),
		now:    time.Now,
	}
}

// AutoMigrate 直接按模型建表，仅用于测试与本地 sqlite.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return s.pool.DB().WithContext(ctx).AutoMigrate(&Customer{}, &Note{}, &ChatLog{})
}

func (s *GormStore) Name() string { return "gorm:" + s.pool.DB().Dialector.Name() }

func (s *GormStore) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	return s.findCustomer(ctx, "email = ?", email)
}

func (s *GormStore) FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	return s.findCustomer(ctx, "phone = ?", phone)
}

func (s *GormStore) findCustomer(ctx context.Context, where string, arg string) (*Customer, error) {
	var c Customer
	err := s.pool.DB().WithContext(ctx).Where(where, arg).Order("created_at").Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	return &c, nil
}

// UpsertCustomer 按 ID 插入或整体覆盖，ID 为空时生成.
func (s *GormStore) UpsertCustomer(ctx context.Context, c *Customer) error {
	now := s.now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	err := s.pool.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "phone", "company", "updated_at"}),
	}).Create(c).Error
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

// AddNote 写入笔记并刷新客户的 updated_at，同一事务内完成.
func (s *GormStore) AddNote(ctx context.Context, n *Note) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}

	err := s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		if err := tx.Create(n).Error; err != nil {
			return err
		}
		return tx.Model(&Customer{}).Where("id = ?", n.CustomerID).Update("updated_at", n.CreatedAt).Error
	})
	if err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	s.logger.Debug("note stored", zap.String("note_id", n.ID), zap.String("customer_id", n.CustomerID))
	return nil
}

// ListNotes 最新的在前.
func (s *GormStore) ListNotes(ctx context.Context, customerID string, limit int) ([]Note, error) {
	var notes []Note
	err := s.pool.DB().WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(noteLimit(limit)).
		Find(&notes).Error
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

func (s *GormStore) SaveChatLog(ctx context.Context, l *ChatLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
	}
	if err := s.pool.DB().WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("save chat log: %w", err)
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *GormStore) Close() error { return s.pool.Close() }
