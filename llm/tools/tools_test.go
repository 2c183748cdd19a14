package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/internal/store"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// memStore 内存实现，仅覆盖工具用到的方法
type memStore struct {
	store.Store
	mu        sync.Mutex
	customers []store.Customer
	notes     []store.Note
	err       error
	lookups   int
}

func (m *memStore) find(pred func(store.Customer) bool) (*store.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.customers {
		if pred(c) {
			c := c
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) FindCustomerByEmail(_ context.Context, email string) (*store.Customer, error) {
	return m.find(func(c store.Customer) bool { return c.Email == email })
}

func (m *memStore) FindCustomerByPhone(_ context.Context, phone string) (*store.Customer, error) {
	return m.find(func(c store.Customer) bool { return c.Phone == phone })
}

func (m *memStore) AddNote(_ context.Context, n *store.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	n.ID = "note-1"
	m.notes = append(m.notes, *n)
	return nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) GetJSON(_ context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(b, dest)
}

func (c *mapCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"(555) 123-4567":  "+15551234567",
		"555.123.4567":    "+15551234567",
		"+1 555 123 4567": "+15551234567",
		"44 20 7946 0958": "+442079460958",
		"call me":         "",
		"":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
	assert.Equal(t, "ada@example.com", NormalizeEmail("  Ada@Example.COM "))
}

func TestCustomerLookup(t *testing.T) {
	ms := &memStore{customers: []store.Customer{
		{ID: "c1", Email: "ada@example.com", Phone: "+15551234567"},
		{ID: "c2", Email: "bob@example.com", Phone: "+442079460958"},
	}}
	l := NewCustomerLookup(ms, nil, 0, zap.NewNop())
	ctx := context.Background()

	res := l.Lookup(ctx, " ADA@example.com", "")
	assert.True(t, res.OK)
	assert.Equal(t, ReasonMatchEmail, res.Reason)
	assert.Equal(t, "c1", res.Match.ID)

	res = l.Lookup(ctx, "unknown@example.com", "44 20 7946 0958")
	assert.Equal(t, ReasonMatchPhone, res.Reason)
	assert.Equal(t, "c2", res.Match.ID)

	res = l.Lookup(ctx, "", "(999) 000-0000")
	assert.True(t, res.OK)
	assert.Equal(t, ReasonNoMatch, res.Reason)
	assert.Nil(t, res.Match)

	ms.err = errors.New("connection refused")
	res = l.Lookup(ctx, "ada@example.com", "")
	assert.False(t, res.OK)
	assert.Equal(t, "store_error:connection refused", res.Reason)

	res = NewCustomerLookup(nil, nil, 0, nil).Lookup(ctx, "ada@example.com", "")
	assert.False(t, res.OK)
	assert.Equal(t, ReasonStoreUnavailable, res.Reason)
}

func TestCustomerLookup_CachesMatches(t *testing.T) {
	ms := &memStore{customers: []store.Customer{{ID: "c1", Email: "ada@example.com"}}}
	cache := &mapCache{data: map[string][]byte{}}
	l := NewCustomerLookup(ms, cache, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := l.Lookup(ctx, "ada@example.com", "")
		require.Equal(t, "c1", res.Match.ID)
	}
	assert.Equal(t, 1, ms.lookups)
	assert.Contains(t, cache.data, "customer:email:ada@example.com")

	l.Lookup(ctx, "nobody@example.com", "")
	l.Lookup(ctx, "nobody@example.com", "")
	assert.Equal(t, 3, ms.lookups, "misses are not cached")
}

func TestNoteWriter(t *testing.T) {
	ms := &memStore{}
	w, err := NewNoteWriter(ms, "America/New_York", zap.NewNop())
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2026, 1, 15, 17, 30, 0, 0, time.UTC) }

	res := w.Add(context.Background(), "conv-9", "c1", "Wants branding, sent booking link.")
	require.True(t, res.OK)
	assert.Equal(t, "note-1", res.NoteID)
	assert.Equal(t, "2026-01-15T12:30:00-05:00", res.Written.Timestamp)
	require.Len(t, ms.notes, 1)
	assert.Equal(t, "conv-9", ms.notes[0].ConversationID)

	ms.err = errors.New("disk full")
	res = w.Add(context.Background(), "conv-9", "c1", "x")
	assert.False(t, res.OK)
	assert.Equal(t, "store_error:disk full", res.Reason)

	_, err = NewNoteWriter(nil, "Mars/Olympus_Mons", nil)
	assert.Error(t, err)

	w, err = NewNoteWriter(nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonStoreUnavailable, w.Add(context.Background(), "a", "b", "c").Reason)
}

func TestBuiltinRegistry(t *testing.T) {
	reg, err := NewBuiltinRegistry(Dependencies{}, zap.NewNop())
	require.NoError(t, err)

	schemas := reg.List()
	require.Len(t, schemas, 3)
	assert.Equal(t, ToolAddNote, schemas[0].Name)
	assert.Equal(t, ToolGetBookingLink, schemas[1].Name)
	assert.Equal(t, ToolLookupCustomer, schemas[2].Name)
	for _, s := range schemas {
		assert.True(t, json.Valid(s.Parameters), s.Name)
		assert.NotEmpty(t, s.Description, s.Name)
	}

	err = reg.Register(ToolAddNote, func(context.Context, map[string]any) (any, error) { return nil, nil }, ToolMetadata{})
	assert.Error(t, err, "duplicate registration")
}

func resultMap(t *testing.T, r types.ToolResult) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(r.Result, &m))
	return m
}

type denyValidator struct{ deny string }

func (v denyValidator) Validate(name string, args map[string]any) (bool, string) {
	if name == v.deny {
		return false, "Unknown tool: " + name
	}
	return true, ""
}

func TestExecutor_ExecuteOne(t *testing.T) {
	reg, err := NewBuiltinRegistry(Dependencies{Booking: BookingConfig{URL: "https://cal.example/x"}}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, reg.Register("explode", func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	}, ToolMetadata{}))
	require.NoError(t, reg.Register("fail", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("backend said no")
	}, ToolMetadata{}))
	require.NoError(t, reg.Register("slow", func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, ToolMetadata{Timeout: 20 * time.Millisecond}))

	var observed []string
	var mu sync.Mutex
	exec := NewDefaultExecutor(reg, zap.NewNop(),
		WithValidator(denyValidator{deny: "forbidden"}),
		WithObserver(func(name, status string, _ time.Duration) {
			mu.Lock()
			observed = append(observed, name+":"+status)
			mu.Unlock()
		}))
	ctx := context.Background()

	t.Run("booking link", func(t *testing.T) {
		r := exec.ExecuteOne(ctx, types.ToolCall{ID: "1", Name: ToolGetBookingLink, Arguments: "{}"})
		assert.False(t, r.IsError())
		m := resultMap(t, r)
		assert.Equal(t, "https://cal.example/x", m["url"])
		assert.Equal(t, DefaultBookingLabel, m["label"])
		assert.Equal(t, "1", r.ToMessage().ToolCallID)
	})

	t.Run("lookup requires email or phone", func(t *testing.T) {
		r := exec.ExecuteOne(ctx, types.ToolCall{ID: "2", Name: ToolLookupCustomer, Arguments: "not json"})
		assert.Equal(t, "provide_email_or_phone", resultMap(t, r)["error"])
	})

	t.Run("validator rejection", func(t *testing.T) {
		r := exec.ExecuteOne(ctx, types.ToolCall{ID: "3", Name: "forbidden"})
		m := resultMap(t, r)
		assert.Equal(t, ResultInvalidToolCall, m["error"])
		assert.Equal(t, "Unknown tool: forbidden", m["detail"])
		assert.Equal(t, ResultInvalidToolCall, r.Error)
	})

	t.Run("unknown tool", func(t *testing.T) {
		r := exec.ExecuteOne(ctx, types.ToolCall{ID: "4", Name: "teleport"})
		m := resultMap(t, r)
		assert.Equal(t, ResultUnknownTool, m["error"])
		assert.Equal(t, "teleport", m["tool"])
	})

	t.Run("failure panic and timeout", func(t *testing.T) {
		for _, name := range []string{"fail", "explode", "slow"} {
			r := exec.ExecuteOne(ctx, types.ToolCall{ID: name, Name: name})
			m := resultMap(t, r)
			assert.Equal(t, ResultExecutionFailed, m["error"], name)
			assert.NotEmpty(t, m["detail"], name)
			assert.True(t, r.IsError(), name)
		}
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, observed, "get_booking_link:ok")
	assert.Contains(t, observed, "forbidden:invalid")
	assert.Contains(t, observed, "teleport:unknown")
	assert.Contains(t, observed, "explode:failed")
}

func TestExecutor_ExecutePreservesOrder(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	require.NoError(t, reg.Register("echo", func(_ context.Context, args map[string]any) (any, error) {
		return args, nil
	}, ToolMetadata{}))
	exec := NewDefaultExecutor(reg, nil)

	calls := []types.ToolCall{
		{ID: "a", Name: "echo", Arguments: `{"n":1}`},
		{ID: "b", Name: "echo", Arguments: `{"n":2}`},
		{ID: "c", Name: "echo", Arguments: `{"n":3}`},
	}
	results := exec.Execute(context.Background(), calls)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.ToolCallID)
		assert.EqualValues(t, i+1, resultMap(t, r)["n"])
	}
}

func TestExecutor_RateLimit(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	require.NoError(t, reg.Register("once", func(context.Context, map[string]any) (any, error) {
		return map[string]any{"ok": true}, nil
	}, ToolMetadata{RateLimit: &RateLimitConfig{MaxCalls: 1, Window: time.Hour}}))
	exec := NewDefaultExecutor(reg, nil)

	first := exec.ExecuteOne(context.Background(), types.ToolCall{ID: "1", Name: "once"})
	assert.False(t, first.IsError())
	second := exec.ExecuteOne(context.Background(), types.ToolCall{ID: "2", Name: "once"})
	assert.Equal(t, "rate limit exceeded", resultMap(t, second)["detail"])
}

func TestDecodeArguments(t *testing.T) {
	assert.Empty(t, DecodeArguments(""))
	assert.Empty(t, DecodeArguments("{bad"))
	assert.Empty(t, DecodeArguments("[1,2]"))
	assert.Empty(t, DecodeArguments("null"))
	assert.Equal(t, map[string]any{"email": "a@b.co"}, DecodeArguments(`{"email":"a@b.co"}`))
}
