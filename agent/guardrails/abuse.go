package guardrails

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 滥用拒绝原因
const (
	ReasonDuplicates = "Too many duplicate messages"
	ReasonInjections = "Too many suspicious requests"
)

// AbuseConfig 滥用检测配置
type AbuseConfig struct {
	DuplicateThreshold int           `yaml:"duplicate_threshold" json:"duplicate_threshold"`
	InjectionThreshold int           `yaml:"injection_threshold" json:"injection_threshold"`
	Window             time.Duration `yaml:"window" json:"window"`
}

// DefaultAbuseConfig 3 次重复、3 次注入、60 秒窗口
func DefaultAbuseConfig() AbuseConfig {
	return AbuseConfig{DuplicateThreshold: 3, InjectionThreshold: 3, Window: time.Minute}
}

type sighting struct {
	fingerprint string
	at          time.Time
}

// abuseRecord 单个调用方的窗口数据，由自身的锁保护
type abuseRecord struct {
	mu          sync.Mutex
	sightings   []sighting
	injections  int
	lastCleanup time.Time
	lastSeen    time.Time
}

// AbuseDetector 按调用方跟踪重复消息与注入尝试。状态只在本进程内。
type AbuseDetector struct {
	config AbuseConfig
	now    func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	records map[string]*abuseRecord
}

// AbuseOption 检测器选项
type AbuseOption func(*AbuseDetector)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) AbuseOption {
	return func(d *AbuseDetector) { d.now = now }
}

// NewAbuseDetector 非正数配置项使用默认值
func NewAbuseDetector(config AbuseConfig, logger *zap.Logger, opts ...AbuseOption) *AbuseDetector {
	def := DefaultAbuseConfig()
	if config.DuplicateThreshold <= 0 {
		config.DuplicateThreshold = def.DuplicateThreshold
	}
	if config.InjectionThreshold <= 0 {
		config.InjectionThreshold = def.InjectionThreshold
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &AbuseDetector{
		config:  config,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "abuse_detector")),
		records: make(map[string]*abuseRecord),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fingerprint 取前 500 个字符的 sha256
func Fingerprint(message string) string {
	r := []rune(message)
	if len(r) > 500 {
		r = r[:500]
	}
	sum := sha256.Sum256([]byte(string(r)))
	return hex.EncodeToString(sum[:16])
}

// record 在 d.mu 下取出记录并刷新 lastSeen，Prune 之后不会再把它当作闲置删除。
// 锁顺序固定为 d.mu -> rec.mu，与 Prune 一致。
func (d *AbuseDetector) record(callerID string, now time.Time) *abuseRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[callerID]
	if !ok {
		rec = &abuseRecord{lastCleanup: now}
		d.records[callerID] = rec
	}
	rec.mu.Lock()
	if now.After(rec.lastSeen) {
		rec.lastSeen = now
	}
	rec.mu.Unlock()
	return rec
}

// CheckAndRecord 检查并记录一次请求，返回是否判定为滥用及原因
func (d *AbuseDetector) CheckAndRecord(callerID, message string, hadInjection bool) (bool, string) {
	now := d.now()
	rec := d.record(callerID, now)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if now.Sub(rec.lastCleanup) > d.config.Window {
		kept := rec.sightings[:0]
		for _, s := range rec.sightings {
			if now.Sub(s.at) < d.config.Window {
				kept = append(kept, s)
			}
		}
		rec.sightings = kept
		rec.injections = 0
		rec.lastCleanup = now
	}

	fp := Fingerprint(message)
	dups := 0
	for _, s := range rec.sightings {
		if s.fingerprint == fp && now.Sub(s.at) < d.config.Window {
			dups++
		}
	}
	if dups >= d.config.DuplicateThreshold {
		d.logger.Warn("duplicate message abuse detected",
			zap.String("caller_id", callerID),
			zap.Int("count", dups))
		return true, ReasonDuplicates
	}

	if hadInjection {
		rec.injections++
		if rec.injections >= d.config.InjectionThreshold {
			d.logger.Warn("repeated injection attempts detected",
				zap.String("caller_id", callerID),
				zap.Int("count", rec.injections))
			return true, ReasonInjections
		}
	}

	rec.sightings = append(rec.sightings, sighting{fingerprint: fp, at: now})
	return false, ""
}

// ClearCaller 丢弃某个调用方的记录
func (d *AbuseDetector) ClearCaller(callerID string) {
	d.mu.Lock()
	delete(d.records, callerID)
	d.mu.Unlock()
}

// Callers 当前跟踪的调用方数量
func (d *AbuseDetector) Callers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// Prune 删除超过一个窗口没有请求的调用方，返回删除数量
func (d *AbuseDetector) Prune() int {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for id, rec := range d.records {
		rec.mu.Lock()
		idle := now.Sub(rec.lastSeen) > d.config.Window
		rec.mu.Unlock()
		if idle {
			delete(d.records, id)
			removed++
		}
	}
	return removed
}

// Run 每个窗口周期清理一次闲置调用方，直到 ctx 结束
func (d *AbuseDetector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.config.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.Prune(); n > 0 {
				d.logger.Debug("pruned idle callers", zap.Int("removed", n))
			}
		}
	}
}
