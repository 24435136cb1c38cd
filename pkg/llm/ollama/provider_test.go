package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-memory-agent-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"model":"llama3","message":{"role":"assistant","content":"hello"},"done":true}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")
	out, err := p.Chat(context.Background(), []llm.Message{{Role: "model", Content: "hi"}}, llm.WithJSONMode(), llm.WithTemperature(0), llm.WithMaxTokens(64))

	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "llama3", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, "json", got.Format)
	assert.Equal(t, "assistant", got.Messages[0].Role)
	require.NotNil(t, got.Options)
	assert.Equal(t, 64, got.Options.NumPredict)
}

func TestChat_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "missing").Generate(context.Background(), "hi")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		for _, part := range []string{"Hel", "lo ", "world"} {
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", part)
		}
		fmt.Fprint(w, `{"message":{"role":"assistant","content":""},"done":true}`+"\n")
	}))
	defer srv.Close()

	tokens, err := NewOllamaProvider(srv.URL, "llama3").Stream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	var b strings.Builder
	var last llm.StreamToken
	for tok := range tokens {
		require.NoError(t, tok.Err)
		b.WriteString(tok.Content)
		last = tok
	}
	assert.Equal(t, "Hello world", b.String())
	assert.True(t, last.Done)
}

func TestStream_ErrorChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"content":"par"},"done":false}`+"\n")
		fmt.Fprint(w, `{"error":"out of memory"}`+"\n")
	}))
	defer srv.Close()

	tokens, err := NewOllamaProvider(srv.URL, "llama3").Stream(context.Background(), nil)
	require.NoError(t, err)

	var errs []error
	for tok := range tokens {
		if tok.Err != nil {
			errs = append(errs, tok.Err)
		}
	}
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "out of memory")
}

func TestStream_TruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"content":"par"},"done":false}`+"\n")
	}))
	defer srv.Close()

	tokens, err := NewOllamaProvider(srv.URL, "llama3").Stream(context.Background(), nil)
	require.NoError(t, err)

	var last llm.StreamToken
	for tok := range tokens {
		last = tok
	}
	assert.Error(t, last.Err)
}
