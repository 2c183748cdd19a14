// Copyright 2026 Mogul Design Agency. All rights reserved.

/*
包 guardrails 是聊天请求进入模型之前的安全层。

# 组成

  - [Sanitize]：去除 NUL 与 ANSI 转义、压缩连续空白、按字符数截断
  - [InjectionDetector]：按顺序匹配提示注入正则，首个命中即返回类别
  - [ContentSafety]：敏感话题分级，critical 拦截，high/medium 提示谨慎
  - [ToolValidator]：按约束表与 JSON Schema 校验模型给出的工具参数
  - [AbuseDetector]：按调用方统计重复消息与注入次数的滑动窗口

# 组合

[Guard.Check] 对最新一条用户消息依次做注入检测、滥用检测与内容分级，
通过后清洗全部消息。每次拒绝以及“放行但有标记”的请求都会输出一条
带 caller_id 的结构化日志。

这些检测都是启发式的，不提供任何密码学意义上的保证。
*/
package guardrails
