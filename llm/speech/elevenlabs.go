package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/internal/tlsutil"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/providers"
)

// ElevenLabsProvider 使用 ElevenLabs API 执行 TTS.
type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	client *http.Client
	logger *zap.Logger
}

// NewElevenLabsProvider 创建 ElevenLabs TTS 供应商，空字段使用默认值.
func NewElevenLabsProvider(cfg ElevenLabsConfig, logger *zap.Logger) *ElevenLabsProvider {
	def := DefaultElevenLabsConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = def.VoiceID
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = def.OutputFormat
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ElevenLabsProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("provider", "elevenlabs")),
	}
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

// Configured 是否配置了 API Key
func (p *ElevenLabsProvider) Configured() bool { return p.cfg.APIKey != "" }

type elevenLabsTTSRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize 调用 ElevenLabs 合成 MP3.
func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	voiceID := req.Voice
	if voiceID == "" {
		voiceID = p.cfg.VoiceID
	}

	payload, err := json.Marshal(elevenLabsTTSRequest{Text: req.Text, ModelID: model})
	if err != nil {
		return nil, fmt.Errorf("marshal elevenlabs request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(voiceID), url.QueryEscape(p.cfg.OutputFormat))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.ConnectionError(err, p.Name())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, MaxAudioBytes))
	if err != nil {
		return nil, providers.ConnectionError(err, p.Name())
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs returned empty audio")
	}

	p.logger.Info("elevenlabs tts", zap.Int("bytes", len(audio)), zap.Int("chars", len(req.Text)))
	return &TTSResponse{
		Provider:    p.Name(),
		Model:       model,
		Audio:       audio,
		ContentType: "audio/mpeg",
		CharCount:   len([]rune(req.Text)),
		CreatedAt:   time.Now(),
	}, nil
}
