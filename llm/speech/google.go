package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sttapi "google.golang.org/api/speech/v1p1beta1"
	ttsapi "google.golang.org/api/texttospeech/v1"

	"github.com/moguldesignsjordan/mogul-ai-agent/llm/providers"
)

// GoogleProvider 通过 Google Cloud REST API 提供 TTS 与 STT.
// 客户端在首次使用时才创建，凭证缺失不会影响服务启动。
type GoogleProvider struct {
	cfg    GoogleConfig
	opts   []option.ClientOption
	logger *zap.Logger

	mu  sync.Mutex
	tts *ttsapi.Service
	stt *sttapi.Service
}

// NewGoogleProvider 创建 Google 语音供应商. extra 追加在默认选项之后.
func NewGoogleProvider(cfg GoogleConfig, logger *zap.Logger, extra ...option.ClientOption) *GoogleProvider {
	def := DefaultGoogleConfig()
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = def.LanguageCode
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, extra...)

	return &GoogleProvider{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With(zap.String("provider", "google_speech")),
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) ttsService(ctx context.Context) (*ttsapi.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tts != nil {
		return p.tts, nil
	}
	opts := p.opts
	if p.cfg.TTSEndpoint != "" {
		opts = append(append([]option.ClientOption{}, opts...), option.WithEndpoint(p.cfg.TTSEndpoint))
	}
	svc, err := ttsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init google tts client: %w", err)
	}
	p.logger.Info("google tts client initialized")
	p.tts = svc
	return svc, nil
}

func (p *GoogleProvider) sttService(ctx context.Context) (*sttapi.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stt != nil {
		return p.stt, nil
	}
	opts := p.opts
	if p.cfg.STTEndpoint != "" {
		opts = append(append([]option.ClientOption{}, opts...), option.WithEndpoint(p.cfg.STTEndpoint))
	}
	svc, err := sttapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init google speech client: %w", err)
	}
	p.logger.Info("google speech client initialized")
	p.stt = svc
	return svc, nil
}

// Synthesize 使用中性嗓音合成 MP3.
func (p *GoogleProvider) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	svc, err := p.ttsService(ctx)
	if err != nil {
		return nil, err
	}
	lang := req.LanguageCode
	if lang == "" {
		lang = p.cfg.LanguageCode
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := svc.Text.Synthesize(&ttsapi.SynthesizeSpeechRequest{
		Input: &ttsapi.SynthesisInput{Text: req.Text},
		Voice: &ttsapi.VoiceSelectionParams{
			LanguageCode: lang,
			SsmlGender:   "NEUTRAL",
		},
		AudioConfig: &ttsapi.AudioConfig{AudioEncoding: "MP3"},
	}).Context(ctx).Do()
	if err != nil {
		return nil, p.mapError(err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode google tts audio: %w", err)
	}
	p.logger.Info("google tts", zap.Int("bytes", len(audio)))
	return &TTSResponse{
		Provider:    p.Name(),
		Audio:       audio,
		ContentType: "audio/mpeg",
		CharCount:   len([]rune(req.Text)),
		CreatedAt:   time.Now(),
	}, nil
}

// Transcribe 同步识别一段录音，取第一条结果的首选候选.
func (p *GoogleProvider) Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error) {
	svc, err := p.sttService(ctx)
	if err != nil {
		return nil, err
	}
	encoding := req.Encoding
	if encoding == "" {
		encoding = "WEBM_OPUS"
	}
	lang := req.LanguageCode
	if lang == "" {
		lang = p.cfg.LanguageCode
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := svc.Speech.Recognize(&sttapi.RecognizeRequest{
		Config: &sttapi.RecognitionConfig{
			Encoding:                   encoding,
			LanguageCode:               lang,
			EnableAutomaticPunctuation: true,
			Model:                      "default",
		},
		Audio: &sttapi.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(req.Audio),
		},
	}).Context(ctx).Do()
	if err != nil {
		return nil, p.mapError(err)
	}

	out := &STTResponse{Provider: p.Name(), CreatedAt: time.Now()}
	if len(resp.Results) == 0 || len(resp.Results[0].Alternatives) == 0 {
		p.logger.Info("no speech detected", zap.Int("bytes", len(req.Audio)))
		return out, nil
	}
	alt := resp.Results[0].Alternatives[0]
	out.Text = alt.Transcript
	out.Confidence = alt.Confidence
	p.logger.Info("transcribed", zap.Float64("confidence", alt.Confidence), zap.Int("chars", len(alt.Transcript)))
	return out, nil
}

func (p *GoogleProvider) mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		mapped := providers.MapHTTPError(gerr.Code, gerr.Message, p.Name())
		mapped.Cause = err
		return mapped
	}
	if errors.Is(err, context.DeadlineExceeded) {
		mapped := providers.MapHTTPError(http.StatusGatewayTimeout, "google speech timed out", p.Name())
		mapped.Cause = err
		return mapped
	}
	return providers.ConnectionError(err, p.Name())
}
