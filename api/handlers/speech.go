package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/api"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/speech"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// multipartOverhead multipart 边界与其它字段的余量
const multipartOverhead = 1 << 20

// Synthesizer 由 speech.FallbackSynthesizer 实现
type Synthesizer interface {
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// SpeechRecorder STT 指标，由 internal/metrics.Collector 实现
type SpeechRecorder interface {
	RecordSpeech(kind, provider, status string, duration time.Duration)
}

// SpeechHandler /v1/tts 与 /v1/stt
type SpeechHandler struct {
	tts      Synthesizer
	stt      speech.STTProvider
	language string
	recorder SpeechRecorder
	errs     ErrorWriter
	logger   *zap.Logger
}

// NewSpeechHandler tts/stt 为 nil 时对应接口返回 503
func NewSpeechHandler(tts Synthesizer, stt speech.STTProvider, language string, recorder SpeechRecorder, debug bool, logger *zap.Logger) *SpeechHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "speech_handler"))
	return &SpeechHandler{
		tts:      tts,
		stt:      stt,
		language: language,
		recorder: recorder,
		errs:     ErrorWriter{Logger: logger, Debug: debug},
		logger:   logger,
	}
}

// HandleTTS POST /v1/tts {text} -> audio/mpeg
func (h *SpeechHandler) HandleTTS(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if h.tts == nil {
		h.errs.WriteMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "Text-to-speech is not configured")
		return
	}

	var req api.TTSRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	req.Normalize()
	if err := api.Validate(&req); err != nil {
		h.errs.WriteErr(w, r, err)
		return
	}

	// 每个供应商的尝试由 FallbackSynthesizer 的 observer 记录
	resp, err := h.tts.Synthesize(r.Context(), &speech.TTSRequest{Text: req.Text, Voice: req.Voice})
	if err != nil {
		h.errs.Write(w, r, types.NewError(types.ErrSpeechFailed, "Text-to-speech failed").WithCause(err))
		return
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Audio)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-TTS-Provider", resp.Provider)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Audio)
}

// HandleSTT POST /v1/stt，multipart 字段 audio
func (h *SpeechHandler) HandleSTT(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if h.stt == nil {
		h.errs.WriteMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "Speech-to-text is not configured")
		return
	}

	audio, err := h.readAudio(w, r)
	if err != nil {
		h.errs.WriteErr(w, r, err)
		return
	}
	if err := speech.CheckAudioSize(len(audio)); err != nil {
		if errors.Is(err, speech.ErrAudioTooShort) {
			WriteJSON(w, http.StatusOK, api.STTResponse{Text: "", Error: "audio_too_short"})
			return
		}
		h.errs.WriteMessage(w, r, http.StatusRequestEntityTooLarge, types.ErrPayloadTooLarge, err.Error())
		return
	}

	start := time.Now()
	resp, err := h.stt.Transcribe(r.Context(), &speech.STTRequest{
		Audio:        audio,
		Encoding:     "WEBM_OPUS",
		LanguageCode: h.language,
	})
	if err != nil {
		h.record("stt", h.stt.Name(), "error", start)
		h.errs.Write(w, r, types.NewError(types.ErrSpeechFailed, "Speech-to-text failed").WithCause(err))
		return
	}
	h.record("stt", h.stt.Name(), "ok", start)
	WriteJSON(w, http.StatusOK, api.STTResponse{Text: resp.Text, Confidence: resp.Confidence})
}

func (h *SpeechHandler) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, speech.MaxAudioBytes+multipartOverhead)
	file, _, err := r.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, types.NewError(types.ErrPayloadTooLarge, speech.ErrAudioTooLarge.Error()).WithCause(err)
		}
		return nil, types.NewError(types.ErrInvalidRequest, "multipart field 'audio' is required").WithCause(err)
	}
	defer file.Close()

	// 多读一个字节，用来判断是否超限
	audio, err := io.ReadAll(io.LimitReader(file, speech.MaxAudioBytes+1))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to read audio").WithCause(err)
	}
	return audio, nil
}

func (h *SpeechHandler) record(kind, provider, status string, start time.Time) {
	if h.recorder != nil {
		h.recorder.RecordSpeech(kind, provider, status, time.Since(start))
	}
}
