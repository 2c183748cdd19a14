package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/internal/pool"
)

type opRecord struct {
	store, op string
	failed    bool
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []opRecord
}

func (f *fakeRecorder) RecordStoreOperation(store, operation string, err error, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, opRecord{store: store, op: operation, failed: err != nil})
}

func TestInstrument_RecordsOperations(t *testing.T) {
	rec := &fakeRecorder{}
	s := Instrument(newTestGormStore(t), rec)
	ctx := context.Background()

	require.NoError(t, s.UpsertCustomer(ctx, &Customer{Email: "ada@example.com"}))
	_, err := s.FindCustomerByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	_, err = s.FindCustomerByPhone(ctx, "+10000000000")
	assert.ErrorIs(t, err, ErrNotFound)

	require.Len(t, rec.recs, 3)
	assert.Equal(t, "upsert_customer", rec.recs[0].op)
	assert.Equal(t, "gorm:sqlite", rec.recs[0].store)
	assert.Equal(t, "find_customer", rec.recs[1].op)
	// 未找到不计为失败
	assert.False(t, rec.recs[2].failed)
}

func TestInstrument_NilRecorder(t *testing.T) {
	s := newTestGormStore(t)
	assert.Same(t, Store(s), Instrument(s, nil))
}

func TestAsyncChatLogs(t *testing.T) {
	s := newTestGormStore(t)
	p := pool.NewGoroutinePool(pool.Config{Workers: 1, QueueSize: 4}, zap.NewNop())
	logs := NewAsyncChatLogs(s, p, zap.NewNop())

	entry := &ChatLog{ID: "log-1", RequestID: "req-1", CallerID: "1.2.3.4", Channel: ChannelWeb, CreatedAt: time.Now().UTC()}
	require.NoError(t, logs.SaveChatLog(context.Background(), entry))
	require.NoError(t, p.Close(context.Background()))

	var n int64
	require.NoError(t, s.pool.DB().Model(&ChatLog{}).Where("request_id = ?", "req-1").Count(&n).Error)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, logs.SaveChatLog(context.Background(), entry), pool.ErrPoolClosed)
}
