package guardrails

import (
	"fmt"
	"regexp"
)

// InjectionPattern 注入模式
type InjectionPattern struct {
	Pattern  *regexp.Regexp
	Category string
}

// InjectionDetectorConfig 注入检测器配置
type InjectionDetectorConfig struct {
	// CustomPatterns 追加在内置目录之后，类别为 CustomCategory（默认 instruction_override）
	CustomPatterns []string
	CustomCategory string
}

// InjectionDetector 提示注入检测器，按目录顺序匹配，首个命中即返回
type InjectionDetector struct {
	patterns []*InjectionPattern
}

// 内置目录，顺序即优先级
var defaultInjectionCatalog = []struct {
	expr     string
	category string
}{
	// 指令覆盖
	{`ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`, CategoryInstructionOverride},
	{`disregard\s+(all\s+)?(previous|prior|above)`, CategoryInstructionOverride},
	{`forget\s+(all\s+)?(previous|prior|your)\s+(instructions?|rules?|training)`, CategoryInstructionOverride},

	// 角色操纵
	{`you\s+are\s+now\s+(a|an|the)`, CategoryRoleManipulation},
	{`act\s+as\s+(if\s+you\s+are|a|an)`, CategoryRoleManipulation},
	{`pretend\s+(to\s+be|you\s+are)`, CategoryRoleManipulation},
	{`roleplay\s+as`, CategoryRoleManipulation},
	{`your\s+new\s+(role|identity|persona)\s+is`, CategoryRoleManipulation},

	// 套取系统提示
	{`(show|tell|reveal|display|print|output)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions?|rules?)`, CategorySystemExtraction},
	{`what\s+(are|is)\s+your\s+(system\s+)?(prompt|instructions?|rules?)`, CategorySystemExtraction},
	{`repeat\s+(your\s+)?(initial|system|original)\s+(prompt|instructions?)`, CategorySystemExtraction},

	// 越狱
	{`(DAN|jailbreak|bypass|hack)\s+mode`, CategoryJailbreak},
	{`developer\s+mode\s+(enabled|activated|on)`, CategoryJailbreak},
	{`sudo\s+mode`, CategoryJailbreak},
	{`override\s+(safety|content)\s+(filters?|restrictions?)`, CategoryJailbreak},

	// 编码混淆
	{`base64[:\s]`, CategoryEncodingAttempt},
	{`\\x[0-9a-f]{2}`, CategoryEncodingAttempt},
	{`&#\d+;`, CategoryEncodingAttempt},

	// 分隔符注入
	{`\[SYSTEM\]|\[INST\]|\[/INST\]`, CategoryDelimiterInjection},
	{`<\|im_start\|>|<\|im_end\|>`, CategoryDelimiterInjection},
	{`###\s*(system|instruction|human|assistant)`, CategoryDelimiterInjection},
}

// NewInjectionDetector 创建注入检测器。自定义模式编译失败时返回错误。
func NewInjectionDetector(config *InjectionDetectorConfig) (*InjectionDetector, error) {
	d := &InjectionDetector{}
	for _, p := range defaultInjectionCatalog {
		d.patterns = append(d.patterns, &InjectionPattern{
			Pattern:  regexp.MustCompile(`(?i)` + p.expr),
			Category: p.category,
		})
	}
	if config == nil {
		return d, nil
	}

	category := config.CustomCategory
	if category == "" {
		category = CategoryInstructionOverride
	}
	for _, expr := range config.CustomPatterns {
		re, err := regexp.Compile(`(?i)` + expr)
		if err != nil {
			return nil, fmt.Errorf("invalid custom injection pattern %q: %w", expr, err)
		}
		d.patterns = append(d.patterns, &InjectionPattern{Pattern: re, Category: category})
	}
	return d, nil
}

// Detect 返回是否命中、类别与命中的文本
func (d *InjectionDetector) Detect(text string) (bool, string, string) {
	f := d.Find(text)
	if f == nil {
		return false, "", ""
	}
	return true, f.Category, f.Matched
}

// Find 与 Detect 相同，未命中返回 nil
func (d *InjectionDetector) Find(text string) *InjectionFinding {
	if text == "" {
		return nil
	}
	for _, p := range d.patterns {
		if m := p.Pattern.FindString(text); m != "" {
			return &InjectionFinding{Category: p.Category, Matched: m}
		}
	}
	return nil
}
