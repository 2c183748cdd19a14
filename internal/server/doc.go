/*
Package server 管理单端口 HTTP 服务的生命周期。

Manager 封装 net/http.Server：Start 非阻塞监听，Wait/WaitForShutdown
等待信号或异常退出，Shutdown 在超时内排空请求，并取消请求的 base
context，使 websocket 等被劫持的长连接也能退出。
*/
package server
