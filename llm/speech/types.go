package speech

import (
	"context"
	"errors"
	"time"
)

// ============================================================
// 文字转语音 (TTS)
// ============================================================

// TTSRequest 文本转语音请求.
type TTSRequest struct {
	Text         string `json:"text"`
	Voice        string `json:"voice,omitempty"`
	Model        string `json:"model,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// TTSResponse TTS 结果，音频已完整缓冲.
type TTSResponse struct {
	Provider    string    `json:"provider"`
	Model       string    `json:"model,omitempty"`
	Audio       []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	CharCount   int       `json:"char_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TTSProvider 定义了 TTS 提供者接口.
type TTSProvider interface {
	Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error)
	Name() string
}

// ============================================================
// 语音转文本 (STT)
// ============================================================

// STTRequest 语音转文本请求.
type STTRequest struct {
	Audio        []byte `json:"-"`
	Encoding     string `json:"encoding,omitempty"` // WEBM_OPUS, LINEAR16, MP3 ...
	LanguageCode string `json:"language_code,omitempty"`
}

// STTResponse 转写结果，没有识别出语音时 Text 为空.
type STTResponse struct {
	Provider   string    `json:"provider"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// STTProvider 定义了 STT 提供者接口.
type STTProvider interface {
	Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error)
	Name() string
}

const (
	// MinAudioBytes 低于该大小的录音不送识别
	MinAudioBytes = 1000
	// MaxAudioBytes 上传音频上限 10MB
	MaxAudioBytes = 10 * 1024 * 1024
	// MaxTTSChars 单次合成的最大字符数
	MaxTTSChars = 5000
)

var (
	ErrAudioTooShort = errors.New("audio too short")
	ErrAudioTooLarge = errors.New("audio file too large (max 10MB)")
)

// CheckAudioSize 校验上传音频大小
func CheckAudioSize(n int) error {
	switch {
	case n < MinAudioBytes:
		return ErrAudioTooShort
	case n > MaxAudioBytes:
		return ErrAudioTooLarge
	}
	return nil
}
