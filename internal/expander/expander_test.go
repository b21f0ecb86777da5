package expander

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/audiomark-mcp/internal/logging"
	"github.com/dshills/audiomark-mcp/pkg/types"
)

// fakeServer serves an OpenAI-compatible streaming chat completion endpoint
type fakeServer struct {
	*httptest.Server
	calls    atomic.Int32
	failures int32 // Number of leading calls answered with 500
	status   int   // Failure status code
	chunks   []string
	lastReq  atomic.Value
}

func newFakeServer(t *testing.T, chunks ...string) *fakeServer {
	t.Helper()
	fs := &fakeServer{chunks: chunks, status: http.StatusInternalServerError}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	n := fs.calls.Add(1)

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	fs.lastReq.Store(body)

	if n <= fs.failures {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fs.status)
		_, _ = fmt.Fprint(w, `{"error":{"message":"try later","type":"server_error"}}`)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, c := range fs.chunks {
		payload, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": c}}},
		})
		_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
		if flusher != nil {
			flusher.Flush()
		}
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
}

func newTestExpander(t *testing.T, url string, cache *Cache) *OpenAIExpander {
	t.Helper()
	e, err := NewOpenAIExpander(OpenAIOptions{
		APIKey:     "test-key",
		BaseURL:    url + "/v1",
		Model:      "test-model",
		Cache:      cache,
		Retry:      &RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
		HTTPClient: &http.Client{Transport: &http.Transport{DisableKeepAlives: true}},
		Logger:     logging.Discard(),
	})
	require.NoError(t, err)
	return e
}

// verifyNoLeaks snapshots the running goroutines and returns the check to defer
func verifyNoLeaks(t *testing.T) func() {
	t.Helper()
	current := goleak.IgnoreCurrent()
	return func() {
		goleak.VerifyNone(t,
			current,
			goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
			goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
			goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		)
	}
}

func TestExpand_Streams(t *testing.T) {
	defer verifyNoLeaks(t)()

	srv := newFakeServer(t, "Warm ", "analog ", "pads.")
	e := newTestExpander(t, srv.URL, NewCache(4))

	seq, err := e.Expand(context.Background(), "pads")
	require.NoError(t, err)

	var chunks []string
	for chunk, err := range seq {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"Warm ", "analog ", "pads."}, chunks)

	body := srv.lastReq.Load().(map[string]any)
	assert.Equal(t, "test-model", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.EqualValues(t, DefaultMaxTokens, body["max_tokens"])
	assert.InDelta(t, DefaultTemperature, body["temperature"], 1e-6)
	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "pads", messages[1].(map[string]any)["content"])
}

func TestExpand_CachesCompletedExpansion(t *testing.T) {
	srv := newFakeServer(t, "Bright ", "bells.")
	cache := NewCache(4)
	e := newTestExpander(t, srv.URL, cache)

	seq, err := e.Expand(context.Background(), "bells")
	require.NoError(t, err)
	first, err := Collect(seq)
	require.NoError(t, err)

	seq, err = e.Expand(context.Background(), "bells")
	require.NoError(t, err)
	second, err := Collect(seq)
	require.NoError(t, err)

	assert.Equal(t, "Bright bells.", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), srv.calls.Load())
	assert.Equal(t, 1, cache.Size())
}

func TestExpand_EarlyBreakDoesNotCache(t *testing.T) {
	defer verifyNoLeaks(t)()

	srv := newFakeServer(t, "one ", "two ", "three")
	cache := NewCache(4)
	e := newTestExpander(t, srv.URL, cache)

	seq, err := e.Expand(context.Background(), "count")
	require.NoError(t, err)
	for chunk := range seq {
		assert.Equal(t, "one ", chunk)
		break
	}
	assert.Equal(t, 0, cache.Size())
}

func TestExpand_SequenceIsSingleUse(t *testing.T) {
	srv := newFakeServer(t, "x")
	e := newTestExpander(t, srv.URL, nil)

	seq, err := e.Expand(context.Background(), "x")
	require.NoError(t, err)
	_, err = Collect(seq)
	require.NoError(t, err)

	_, err = Collect(seq)
	assert.ErrorIs(t, err, ErrStreamConsumed)
}

func TestExpand_EmptyText(t *testing.T) {
	srv := newFakeServer(t, "x")
	e := newTestExpander(t, srv.URL, nil)

	for _, text := range []string{"", "   "} {
		seq, err := e.Expand(context.Background(), text)
		assert.Nil(t, seq)
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
		assert.ErrorIs(t, err, ErrEmptyText)
	}
	assert.Equal(t, int32(0), srv.calls.Load())
}

func TestExpand_RetriesServerErrors(t *testing.T) {
	srv := newFakeServer(t, "ok")
	srv.failures = 2
	e := newTestExpander(t, srv.URL, nil)

	seq, err := e.Expand(context.Background(), "retry")
	require.NoError(t, err)
	text, err := Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), srv.calls.Load())
}

func TestExpand_GivesUpAfterMaxRetries(t *testing.T) {
	srv := newFakeServer(t, "never")
	srv.failures = 10
	e := newTestExpander(t, srv.URL, nil)

	_, err := e.Expand(context.Background(), "retry")
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(3), srv.calls.Load())
}

func TestExpand_ClientErrorNotRetried(t *testing.T) {
	srv := newFakeServer(t, "never")
	srv.failures = 10
	srv.status = http.StatusUnauthorized
	e := newTestExpander(t, srv.URL, nil)

	_, err := e.Expand(context.Background(), "denied")
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestExpand_CancelledContext(t *testing.T) {
	srv := newFakeServer(t, "x")
	e := newTestExpander(t, srv.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Expand(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpand_CancelReleasesUnconsumedStream(t *testing.T) {
	defer verifyNoLeaks(t)()

	srv := newFakeServer(t, "never ", "read")
	cache := NewCache(4)
	e := newTestExpander(t, srv.URL, cache)

	ctx, cancel := context.WithCancel(context.Background())
	seq, err := e.Expand(ctx, "abandoned")
	require.NoError(t, err)
	cancel()

	var got []string
	for chunk, err := range seq {
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
			break
		}
		got = append(got, chunk)
	}
	assert.Empty(t, got)
	assert.Equal(t, 0, cache.Size())
}

func TestNewOpenAIExpander_RequiresKeyOrURL(t *testing.T) {
	_, err := NewOpenAIExpander(OpenAIOptions{})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestNewFromConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewFromConfig(Config{Provider: ProviderNone}, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	_, err = NewFromConfig(Config{Provider: "mystery"}, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	_, err = NewFromConfig(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled, "no key and no base url")

	t.Setenv("OPENAI_API_KEY", "from-env")
	exp, err := NewFromConfig(DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, exp.Provider())
	assert.Equal(t, DefaultModel, exp.Model())
}

func TestCache(t *testing.T) {
	c := NewCache(2)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry evicted")
	v, ok := c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	c.Clear()
	assert.Equal(t, 0, c.Size())

	var nilCache *Cache
	nilCache.Set("a", "1")
	_, ok = nilCache.Get("a")
	assert.False(t, ok)
}

func TestComputeHash(t *testing.T) {
	assert.Equal(t, computeHash("m", "text"), computeHash("m", "text"))
	assert.NotEqual(t, computeHash("m1", "text"), computeHash("m2", "text"))
	assert.Len(t, computeHash("m", "text"), 64)
}
