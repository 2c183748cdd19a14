/*
包 tools 提供智能体可调用的工具：注册中心、执行器与三个内置工具。

  - get_booking_link：返回公开预约链接。
  - lookup_customer：按邮箱或电话查找已有客户，可选 Redis 缓存命中结果。
  - add_note：以业务时区时间戳写入 CRM 笔记。

执行器从不向调用方返回 error。参数非法、工具不存在、执行失败、超时或 panic
都会变成 JSON 结果（error 字段为 invalid_tool_call / unknown_tool /
tool_execution_failed），作为 tool 消息交回模型。
*/
package tools
