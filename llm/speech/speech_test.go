package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/moguldesignsjordan/mogul-ai-agent/llm"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/circuitbreaker"
)

func TestCheckAudioSize(t *testing.T) {
	assert.ErrorIs(t, CheckAudioSize(0), ErrAudioTooShort)
	assert.ErrorIs(t, CheckAudioSize(MinAudioBytes-1), ErrAudioTooShort)
	assert.NoError(t, CheckAudioSize(MinAudioBytes))
	assert.NoError(t, CheckAudioSize(MaxAudioBytes))
	assert.ErrorIs(t, CheckAudioSize(MaxAudioBytes+1), ErrAudioTooLarge)
}

func TestElevenLabsProvider_Synthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		assert.Equal(t, "xi-key", r.Header.Get("xi-api-key"))

		var body elevenLabsTTSRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello there", body.Text)
		assert.Equal(t, "eleven_multilingual_v2", body.ModelID)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "xi-key", BaseURL: srv.URL, VoiceID: "voice-1"}, zap.NewNop())
	assert.True(t, p.Configured())

	resp, err := p.Synthesize(context.Background(), &TTSRequest{Text: "Hello there"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-fake-mp3"), resp.Audio)
	assert.Equal(t, "audio/mpeg", resp.ContentType)
	assert.Equal(t, "elevenlabs", resp.Provider)
}

func TestElevenLabsProvider_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`))
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "bad", BaseURL: srv.URL}, nil)
	_, err := p.Synthesize(context.Background(), &TTSRequest{Text: "hi"})

	var le *llm.Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, llm.ErrUnauthorized, le.Code)
	assert.Equal(t, "Invalid API key", le.Message)
}

func newGoogleTestProvider(t *testing.T, handler http.HandlerFunc) *GoogleProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGoogleProvider(GoogleConfig{
		TTSEndpoint: srv.URL + "/",
		STTEndpoint: srv.URL + "/",
	}, zap.NewNop(), option.WithoutAuthentication(), option.WithHTTPClient(srv.Client()))
}

func TestGoogleProvider_Synthesize(t *testing.T) {
	p := newGoogleTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text:synthesize", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		voice := req["voice"].(map[string]any)
		assert.Equal(t, "en-US", voice["languageCode"])
		assert.Equal(t, "NEUTRAL", voice["ssmlGender"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"audioContent": base64.StdEncoding.EncodeToString([]byte("mp3-bytes")),
		})
	})

	resp, err := p.Synthesize(context.Background(), &TTSRequest{Text: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), resp.Audio)
	assert.Equal(t, "google", resp.Provider)
}

func TestGoogleProvider_Transcribe(t *testing.T) {
	t.Run("transcript", func(t *testing.T) {
		p := newGoogleTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1p1beta1/speech:recognize", r.URL.Path)
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			cfg := req["config"].(map[string]any)
			assert.Equal(t, "WEBM_OPUS", cfg["encoding"])
			assert.Equal(t, true, cfg["enableAutomaticPunctuation"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"book a call","confidence":0.92}]}]}`))
		})

		resp, err := p.Transcribe(context.Background(), &STTRequest{Audio: make([]byte, 2048)})
		require.NoError(t, err)
		assert.Equal(t, "book a call", resp.Text)
		assert.InDelta(t, 0.92, resp.Confidence, 1e-6)
	})

	t.Run("no speech", func(t *testing.T) {
		p := newGoogleTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		})
		resp, err := p.Transcribe(context.Background(), &STTRequest{Audio: make([]byte, 2048)})
		require.NoError(t, err)
		assert.Empty(t, resp.Text)
	})

	t.Run("api error", func(t *testing.T) {
		p := newGoogleTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad encoding","status":"INVALID_ARGUMENT"}}`))
		})
		_, err := p.Transcribe(context.Background(), &STTRequest{Audio: make([]byte, 2048)})
		var le *llm.Error
		require.True(t, errors.As(err, &le))
		assert.Equal(t, llm.ErrInvalidRequest, le.Code)
	})
}

type fakeTTS struct {
	name  string
	err   error
	mu    sync.Mutex
	calls int
}

func (f *fakeTTS) Name() string { return f.name }

func (f *fakeTTS) Synthesize(context.Context, *TTSRequest) (*TTSResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &TTSResponse{Provider: f.name, Audio: []byte(f.name)}, nil
}

func TestFallbackSynthesizer(t *testing.T) {
	t.Run("primary succeeds", func(t *testing.T) {
		primary := &fakeTTS{name: "elevenlabs"}
		fallback := &fakeTTS{name: "google"}
		s := NewFallbackSynthesizer(primary, nil, fallback, nil, zap.NewNop())

		resp, err := s.Synthesize(context.Background(), &TTSRequest{Text: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "elevenlabs", resp.Provider)
		assert.Equal(t, 0, fallback.calls)
	})

	t.Run("primary fails and breaker opens after three failures", func(t *testing.T) {
		primary := &fakeTTS{name: "elevenlabs", err: errors.New("quota")}
		fallback := &fakeTTS{name: "google"}
		var observed []string
		s := NewFallbackSynthesizer(primary, nil, fallback, func(p string, err error, _ time.Duration) {
			observed = append(observed, p)
		}, zap.NewNop())

		for i := 0; i < 4; i++ {
			resp, err := s.Synthesize(context.Background(), &TTSRequest{Text: "hi"})
			require.NoError(t, err)
			assert.Equal(t, "google", resp.Provider)
		}
		assert.Equal(t, 3, primary.calls, "fourth request skips the open breaker")
		assert.Equal(t, 4, fallback.calls)
		assert.Equal(t, circuitbreaker.StateOpen, s.Breaker().State())
		assert.Len(t, observed, 7)
	})

	t.Run("no primary", func(t *testing.T) {
		fallback := &fakeTTS{name: "google"}
		s := NewFallbackSynthesizer(nil, nil, fallback, nil, nil)
		assert.Nil(t, s.Breaker())
		resp, err := s.Synthesize(context.Background(), &TTSRequest{Text: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "google", resp.Provider)
	})

	t.Run("both fail", func(t *testing.T) {
		gErr := errors.New("google down")
		s := NewFallbackSynthesizer(&fakeTTS{name: "elevenlabs", err: errors.New("x")}, nil, &fakeTTS{name: "google", err: gErr}, nil, nil)
		_, err := s.Synthesize(context.Background(), &TTSRequest{Text: "hi"})
		assert.ErrorIs(t, err, gErr)
	})
}
