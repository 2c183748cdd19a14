package guardrails

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// ParamValidator 单个参数值的校验函数
type ParamValidator func(v any) bool

// ToolConstraint 单个工具的参数约束
type ToolConstraint struct {
	Allowed    []string // 为空时不限制参数名
	Required   []string
	Validators map[string]ParamValidator
}

// MaxNoteSummaryChars add_note.summary 的最大字符数
const MaxNoteSummaryChars = 1000

// DefaultToolConstraints 内置工具的约束表
func DefaultToolConstraints() map[string]ToolConstraint {
	return map[string]ToolConstraint{
		"get_booking_link": {},
		"lookup_customer": {
			Allowed: []string{"email", "phone"},
		},
		"add_note": {
			Allowed:  []string{"conversation_id", "customer_id", "summary"},
			Required: []string{"conversation_id", "customer_id", "summary"},
			Validators: map[string]ParamValidator{
				"summary": MaxChars(MaxNoteSummaryChars),
			},
		},
	}
}

// MaxChars 值的字符串形式不超过 n 个字符
func MaxChars(n int) ParamValidator {
	return func(v any) bool {
		return utf8.RuneCountInString(fmt.Sprint(v)) <= n
	}
}

// ToolValidator 校验模型给出的工具参数。先按约束表检查，再按工具的 JSON Schema 检查。
type ToolValidator struct {
	constraints map[string]ToolConstraint
	schemas     map[string]*jsonschema.Schema
}

// NewToolValidator 编译工具 schema。没有约束的工具视为未知工具。
func NewToolValidator(constraints map[string]ToolConstraint, schemas []types.ToolSchema) (*ToolValidator, error) {
	if constraints == nil {
		constraints = DefaultToolConstraints()
	}
	v := &ToolValidator{constraints: constraints, schemas: make(map[string]*jsonschema.Schema)}

	for _, s := range schemas {
		if len(s.Parameters) == 0 {
			continue
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(s.Parameters))
		if err != nil {
			return nil, fmt.Errorf("tool %s: invalid parameters schema: %w", s.Name, err)
		}
		url := s.Name + ".json"
		c := jsonschema.NewCompiler()
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("tool %s: %w", s.Name, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("tool %s: schema compile error: %w", s.Name, err)
		}
		v.schemas[s.Name] = compiled
	}
	return v, nil
}

// Validate 返回 (true, "") 或 (false, 原因)
func (v *ToolValidator) Validate(name string, args map[string]any) (ok bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			ok, reason = false, fmt.Sprintf("Invalid arguments for %s", name)
		}
	}()

	c, known := v.constraints[name]
	if !known {
		return false, fmt.Sprintf("Unknown tool: %s", name)
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(c.Allowed) > 0 {
		for _, k := range keys {
			if !contains(c.Allowed, k) {
				return false, fmt.Sprintf("Disallowed parameter for %s: %s", name, k)
			}
		}
	}
	for _, k := range c.Required {
		if _, ok := args[k]; !ok {
			return false, fmt.Sprintf("Missing required parameter for %s: %s", name, k)
		}
	}
	for _, k := range keys {
		check, ok := c.Validators[k]
		if ok && !check(args[k]) {
			return false, fmt.Sprintf("Invalid value for %s.%s", name, k)
		}
	}

	if sch, ok := v.schemas[name]; ok {
		inst := make(map[string]any, len(args))
		for k, val := range args {
			inst[k] = val
		}
		if err := sch.Validate(inst); err != nil {
			first, _, _ := strings.Cut(err.Error(), "\n")
			return false, fmt.Sprintf("Schema violation for %s: %s", name, first)
		}
	}
	return true, ""
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
