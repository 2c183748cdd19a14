package tools

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/internal/store"
)

// LookupCache 查询结果缓存（internal/cache.Manager 满足此接口）
type LookupCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// lookup_customer 的 reason 取值
const (
	ReasonMatchEmail       = "match_email"
	ReasonMatchPhone       = "match_phone"
	ReasonNoMatch          = "no_match"
	ReasonStoreUnavailable = "store_unavailable"
	reasonStoreErrorPrefix = "store_error:"
)

// LookupResult lookup_customer 的返回值
type LookupResult struct {
	OK     bool            `json:"ok"`
	Reason string          `json:"reason"`
	Match  *store.Customer `json:"match"`
}

var customerSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "email": {"type": "string", "description": "Customer email address"},
    "phone": {"type": "string", "description": "Customer phone number in any format"}
  },
  "additionalProperties": false
}`)

var nonDigit = regexp.MustCompile(`\D`)

// NormalizeEmail 去空白并转小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone 仅保留数字；10 位视为美国号码补 +1，其余补 +
func NormalizePhone(phone string) string {
	digits := nonDigit.ReplaceAllString(phone, "")
	switch {
	case digits == "":
		return ""
	case len(digits) == 10:
		return "+1" + digits
	default:
		return "+" + digits
	}
}

// CustomerLookup lookup_customer 工具
type CustomerLookup struct {
	store    store.Store
	cache    LookupCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCustomerLookup store 为 nil 时工具返回 store_unavailable；cache 可选
func NewCustomerLookup(s store.Store, cache LookupCache, cacheTTL time.Duration, logger *zap.Logger) *CustomerLookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CustomerLookup{store: s, cache: cache, cacheTTL: cacheTTL, logger: logger.With(zap.String("tool", ToolLookupCustomer))}
}

// Tool 返回可注册的函数与元数据
func (l *CustomerLookup) Tool() (ToolFunc, ToolMetadata) {
	fn := func(ctx context.Context, args map[string]any) (any, error) {
		email, _ := args["email"].(string)
		phone, _ := args["phone"].(string)
		if strings.TrimSpace(email) == "" && strings.TrimSpace(phone) == "" {
			return map[string]any{"error": "provide_email_or_phone"}, nil
		}
		return l.Lookup(ctx, email, phone), nil
	}
	return fn, ToolMetadata{
		Schema: schema(ToolLookupCustomer,
			"Look up an existing customer by email or phone to recognize returning users.",
			customerSchema),
		Timeout: 10 * time.Second,
	}
}

// Lookup 先按邮箱、再按电话查找
func (l *CustomerLookup) Lookup(ctx context.Context, email, phone string) LookupResult {
	if l.store == nil {
		return LookupResult{OK: false, Reason: ReasonStoreUnavailable}
	}

	if e := NormalizeEmail(email); e != "" {
		c, err := l.find(ctx, "customer:email:"+e, func() (*store.Customer, error) {
			return l.store.FindCustomerByEmail(ctx, e)
		})
		if err != nil {
			return LookupResult{OK: false, Reason: reasonStoreErrorPrefix + err.Error()}
		}
		if c != nil {
			return LookupResult{OK: true, Reason: ReasonMatchEmail, Match: c}
		}
	}

	if p := NormalizePhone(phone); p != "" {
		c, err := l.find(ctx, "customer:phone:"+p, func() (*store.Customer, error) {
			return l.store.FindCustomerByPhone(ctx, p)
		})
		if err != nil {
			return LookupResult{OK: false, Reason: reasonStoreErrorPrefix + err.Error()}
		}
		if c != nil {
			return LookupResult{OK: true, Reason: ReasonMatchPhone, Match: c}
		}
	}

	return LookupResult{OK: true, Reason: ReasonNoMatch}
}

// find 只缓存命中结果，新客户写入后无需失效
func (l *CustomerLookup) find(ctx context.Context, key string, query func() (*store.Customer, error)) (*store.Customer, error) {
	if l.cache != nil {
		var cached store.Customer
		if err := l.cache.GetJSON(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	c, err := query()
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		l.logger.Error("customer lookup failed", zap.Error(err))
		return nil, err
	}

	if l.cache != nil {
		if err := l.cache.SetJSON(ctx, key, c, l.cacheTTL); err != nil {
			l.logger.Debug("cache customer failed", zap.Error(err))
		}
	}
	return c, nil
}
