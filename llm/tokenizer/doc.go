// Package tokenizer 提供统一的 Token 计数接口，
// 默认使用 len/4 启发式估算器，可切换为 tiktoken 精确计数，用于上下文窗口的 Token 预算管理。
package tokenizer
