package speech

import "time"

// ElevenLabsConfig 配置 ElevenLabs TTS 供应商.
type ElevenLabsConfig struct {
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Model        string        `json:"model,omitempty" yaml:"model,omitempty"` // eleven_multilingual_v2
	VoiceID      string        `json:"voice_id,omitempty" yaml:"voice_id,omitempty"`
	OutputFormat string        `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// GoogleConfig 配置 Google Cloud TTS/STT.
// CredentialsFile 为空时使用应用默认凭证 (ADC).
type GoogleConfig struct {
	CredentialsFile string        `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
	TTSEndpoint     string        `json:"tts_endpoint,omitempty" yaml:"tts_endpoint,omitempty"`
	STTEndpoint     string        `json:"stt_endpoint,omitempty" yaml:"stt_endpoint,omitempty"`
	LanguageCode    string        `json:"language_code,omitempty" yaml:"language_code,omitempty"`
	Timeout         time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultElevenLabsConfig 返回默认的 ElevenLabs 配置.
func DefaultElevenLabsConfig() ElevenLabsConfig {
	return ElevenLabsConfig{
		BaseURL:      "https://api.elevenlabs.io",
		Model:        "eleven_multilingual_v2",
		VoiceID:      "21m00Tcm4TlvDq8ikWAM", // Rachel
		OutputFormat: "mp3_44100_128",
		Timeout:      30 * time.Second,
	}
}

// DefaultGoogleConfig 返回默认的 Google 语音配置.
func DefaultGoogleConfig() GoogleConfig {
	return GoogleConfig{
		LanguageCode: "en-US",
		Timeout:      30 * time.Second,
	}
}
