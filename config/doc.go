// Package config 提供服务配置的加载与校验。
//
// 配置来自默认值、YAML 文件和环境变量，启动时读取一次，之后只读。
// 环境变量既支持 MOGUL_ 前缀的分节形式（MOGUL_LLM_MODEL），
// 也支持旧部署使用的不带前缀的变量（OPENAI_API_KEY、ENABLE_GUARDRAILS 等）。
package config
