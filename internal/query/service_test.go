package query

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"netlens/internal/logger"
	"netlens/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	logs []model.Exchange
	err  error
}

func (f *fakeReader) QueryBySession(string) ([]model.Exchange, error) { return f.logs, f.err }

type fakeCreds struct{ key string }

func (f *fakeCreds) Credential(string) (string, error) { return f.key, nil }

const geminiKey = "AIzaSyTestKeyTestKeyTestKeyTest"

func geminiAnswer(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":"` + text + `"}]}}]}`
}

func oneExchange() []model.Exchange {
	return []model.Exchange{{
		ID:           1,
		SessionID:    "s1",
		URL:          "https://app.example/api/data",
		Method:       "GET",
		ResponseBody: `{"a":1}`,
		ContentType:  model.ContentTypeOf("application/json"),
		Timestamp:    1700000000000,
	}}
}

func TestAskWithoutCredentialSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	s := New(&fakeReader{logs: oneExchange()}, &fakeCreds{key: ""}, "gemini", "gemini-2.0-flash", logger.NewNop())
	s.BaseURL = srv.URL

	_, err := s.Ask(context.Background(), "s1", "what is field a?")
	require.ErrorIs(t, err, model.ErrMissingCredential)
	assert.Zero(t, calls.Load())
}

func TestAskRejectsMalformedKey(t *testing.T) {
	s := New(&fakeReader{}, &fakeCreds{key: "not-a-key"}, "gemini", "gemini-2.0-flash", logger.NewNop())
	_, err := s.Ask(context.Background(), "s1", "q")
	require.ErrorIs(t, err, model.ErrInvalidCredential)

	s = New(&fakeReader{}, &fakeCreds{key: "sk-short"}, "openai", "gpt-4o-mini", logger.NewNop())
	_, err = s.Ask(context.Background(), "s1", "q")
	require.ErrorIs(t, err, model.ErrInvalidCredential)
}

func TestAskSendsPromptAndReturnsAnswer(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		io.WriteString(w, geminiAnswer("a is 1"))
	}))
	defer srv.Close()

	s := New(&fakeReader{logs: oneExchange()}, &fakeCreds{key: geminiKey}, "gemini", "gemini-2.0-flash", logger.NewNop())
	s.BaseURL = srv.URL

	answer, err := s.Ask(context.Background(), "s1", "what is a?")
	require.NoError(t, err)
	assert.Equal(t, "a is 1", answer)

	// 提示词必须携带捕获体与字面的问题文本
	assert.Contains(t, gotBody, `\"a\":1`)
	assert.Contains(t, gotBody, "what is a?")
	assert.Contains(t, gotBody, "If the data is insufficient")
}

func TestAskOpenAIUsesBearerHeader(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		io.WriteString(w, `{"choices":[{"message":{"content":"answer"}}]}`)
	}))
	defer srv.Close()

	s := New(&fakeReader{logs: oneExchange()}, &fakeCreds{key: "sk-testkeytestkeytest"}, "openai", "gpt-4o-mini", logger.NewNop())
	s.BaseURL = srv.URL

	answer, err := s.Ask(context.Background(), "s1", "q")
	require.NoError(t, err)
	assert.Equal(t, "answer", answer)
	assert.Equal(t, "Bearer sk-testkeytestkeytest", auth)
}

func TestAskSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"quota exceeded"}}`)
	}))
	defer srv.Close()

	s := New(&fakeReader{logs: oneExchange()}, &fakeCreds{key: geminiKey}, "gemini", "gemini-2.0-flash", logger.NewNop())
	s.BaseURL = srv.URL

	_, err := s.Ask(context.Background(), "s1", "q")
	var pe *model.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusTooManyRequests, pe.Status)
	assert.Equal(t, "quota exceeded", pe.Message)
}

func TestAskFallsBackWhenAnswerMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	s := New(&fakeReader{logs: oneExchange()}, &fakeCreds{key: geminiKey}, "gemini", "gemini-2.0-flash", logger.NewNop())
	s.BaseURL = srv.URL

	answer, err := s.Ask(context.Background(), "s1", "q")
	require.NoError(t, err)
	assert.Equal(t, fallbackAnswer, answer)
}

func TestAskPropagatesStoreFault(t *testing.T) {
	s := New(&fakeReader{err: model.ErrStorageFault}, &fakeCreds{key: geminiKey}, "gemini", "gemini-2.0-flash", logger.NewNop())
	_, err := s.Ask(context.Background(), "s1", "q")
	require.ErrorIs(t, err, model.ErrStorageFault)
}

func TestBuildPromptOrdersAndNumbersExchanges(t *testing.T) {
	logs := []model.Exchange{
		{URL: "https://x/newer", Method: "GET", ResponseBody: `{"n":2}`, Timestamp: 2000},
		{URL: "https://x/older", Method: "POST", ResponseBody: `{"n":1}`, Timestamp: 1000},
	}
	prompt := buildPrompt(logs, "which came first?")
	older := strings.Index(prompt, "https://x/older")
	newer := strings.Index(prompt, "https://x/newer")
	require.GreaterOrEqual(t, older, 0)
	require.GreaterOrEqual(t, newer, 0)
	assert.Less(t, older, newer)
	assert.Contains(t, prompt, "[1] POST https://x/older")
	assert.Contains(t, prompt, "[2] GET https://x/newer")
}
