package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/internal/pool"
)

// OperationRecorder 由 metrics.Collector 实现
type OperationRecorder interface {
	RecordStoreOperation(store, operation string, err error, duration time.Duration)
}

// Instrumented 为每次存储调用记录耗时与结果。ErrNotFound 不计为失败。
type Instrumented struct {
	Store
	recorder OperationRecorder
}

// Instrument 包装 s；recorder 为 nil 时原样返回
func Instrument(s Store, recorder OperationRecorder) Store {
	if recorder == nil {
		return s
	}
	return &Instrumented{Store: s, recorder: recorder}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	i.recorder.RecordStoreOperation(i.Store.Name(), op, err, time.Since(start))
}

func (i *Instrumented) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	start := time.Now()
	c, err := i.Store.FindCustomerByEmail(ctx, email)
	i.observe("find_customer", start, err)
	return c, err
}

func (i *Instrumented) FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	start := time.Now()
	c, err := i.Store.FindCustomerByPhone(ctx, phone)
	i.observe("find_customer", start, err)
	return c, err
}

func (i *Instrumented) UpsertCustomer(ctx context.Context, c *Customer) error {
	start := time.Now()
	err := i.Store.UpsertCustomer(ctx, c)
	i.observe("upsert_customer", start, err)
	return err
}

func (i *Instrumented) AddNote(ctx context.Context, n *Note) error {
	start := time.Now()
	err := i.Store.AddNote(ctx, n)
	i.observe("add_note", start, err)
	return err
}

func (i *Instrumented) ListNotes(ctx context.Context, customerID string, limit int) ([]Note, error) {
	start := time.Now()
	notes, err := i.Store.ListNotes(ctx, customerID, limit)
	i.observe("list_notes", start, err)
	return notes, err
}

func (i *Instrumented) SaveChatLog(ctx context.Context, l *ChatLog) error {
	start := time.Now()
	err := i.Store.SaveChatLog(ctx, l)
	i.observe("save_chat_log", start, err)
	return err
}

// AsyncChatLogs 把聊天记录写入交给后台任务池，请求路径不等待数据库
type AsyncChatLogs struct {
	store  Store
	pool   *pool.GoroutinePool
	logger *zap.Logger
}

// NewAsyncChatLogs 创建异步聊天记录写入器
func NewAsyncChatLogs(s Store, p *pool.GoroutinePool, logger *zap.Logger) *AsyncChatLogs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncChatLogs{store: s, pool: p, logger: logger}
}

// SaveChatLog 入队后立即返回；只有入队失败才返回错误
func (a *AsyncChatLogs) SaveChatLog(_ context.Context, l *ChatLog) error {
	entry := *l
	return a.pool.Submit("save_chat_log", func(ctx context.Context) error {
		return a.store.SaveChatLog(ctx, &entry)
	})
}
