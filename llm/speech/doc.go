// 版权所有 2026 Mogul Design Agency. 版权所有。
// 此源代码的使用由项目许可证规范。

/*
包 speech 提供语音合成 (TTS) 与语音识别 (STT) 接入层。

# 概述

语音对话链路：浏览器录音经 STT 转写为文本，交给对话编排器，
回复文本再经 TTS 合成为 MP3 返回。

# 核心类型

  - TTSProvider / STTProvider：服务商接口。
  - ElevenLabsProvider：ElevenLabs 主 TTS（net/http 直连 REST）。
  - GoogleProvider：Google Cloud Text-to-Speech 与 Speech-to-Text
    （google.golang.org/api），作为 TTS 兜底与唯一的 STT。
  - FallbackSynthesizer：主 TTS 由熔断器保护，失败或熔断时切换到兜底。

# 音频约束

  - 上传音频小于 MinAudioBytes 视为过短（返回空文本，不调用上游）。
  - 上传音频大于 MaxAudioBytes 拒绝（413）。
*/
package speech
