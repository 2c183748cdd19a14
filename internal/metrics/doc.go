/*
包 metrics 基于 Prometheus 采集聊天后端的运行指标。

Collector 按业务域分组注册指标：

  - HTTP：请求数、耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx
  - 上游模型：调用数、耗时、prompt/completion token、重试次数、熔断器状态
  - 对话：按渠道统计请求结果、护栏结论、工具执行
  - 语音：合成与识别的次数和耗时
  - 缓存与存储：查询缓存命中率、连接池、CRM 存储操作耗时

/metrics 由 promhttp 暴露。测试中传入独立的 prometheus.Registry。
*/
package metrics
