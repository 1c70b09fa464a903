package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kris-hansen/redbiomctl/utils/assistant"
	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/models"
	"github.com/kris-hansen/redbiomctl/utils/runner"
	"github.com/kris-hansen/redbiomctl/utils/validator"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAsker struct {
	restored []models.Message
	question string
	answer   string
	err      error
}

func (f *fakeAsker) Ask(_ context.Context, question string) (assistant.Answer, error) {
	f.question = question
	if f.err != nil {
		return assistant.Answer{}, f.err
	}
	cmd := "redbiom summarize contexts"
	return assistant.Answer{
		Question: question,
		Text:     f.answer,
		Commands: []assistant.Proposal{{Raw: cmd, Report: validator.Validate(cmd)}},
		Attempts: 1,
	}, nil
}

func (f *fakeAsker) Restore(messages []models.Message) { f.restored = messages }
func (f *fakeAsker) Model() string                     { return "qwen3" }

type fakeRunner struct {
	calls []command.BuiltCommand
	stdin []string
	res   runner.Result
	err   error
}

func (f *fakeRunner) Run(_ context.Context, cmd command.BuiltCommand, opts runner.RunOptions) (runner.Result, error) {
	f.calls = append(f.calls, cmd)
	f.stdin = opts.Stdin
	return f.res, f.err
}

func newTestServer(t *testing.T, mutate func(*config.ServerConfig), opts Options) *Server {
	t.Helper()
	env := config.DefaultEnvConfig()
	srv := env.GetServer()
	if mutate != nil {
		mutate(srv)
	}
	return New(env, opts)
}

func do(t *testing.T, s *Server, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func askerFactory(a *fakeAsker) AssistantFactory {
	return func() (Asker, error) { return a, nil }
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, func(c *config.ServerConfig) { c.BearerToken = "secret" }, Options{Version: "1.2.3"})

	rec := do(t, s, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "redbiom", body["program"])
	assert.Equal(t, false, body["run_enabled"])
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, func(c *config.ServerConfig) { c.BearerToken = "secret" }, Options{})

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong token", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"wrong scheme", map[string]string{"Authorization": "Basic secret"}, http.StatusUnauthorized},
		{"valid", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/v1/grammar", nil, tt.header)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, func(c *config.ServerConfig) {
		c.CORS.AllowedOrigins = []string{"https://qiita.ucsd.edu"}
	}, Options{})

	rec := do(t, s, http.MethodOptions, "/v1/build", nil, map[string]string{"Origin": "https://qiita.ucsd.edu"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://qiita.ucsd.edu", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	rec = do(t, s, http.MethodGet, "/health", nil, map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGrammarEndpoint(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	rec := do(t, s, http.MethodGet, "/v1/grammar", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Program    string          `json:"program"`
		Operations []operationJSON `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "redbiom", body.Program)
	require.NotEmpty(t, body.Operations)
	assert.Equal(t, "search features", body.Operations[0].Key)
	assert.Equal(t, "--context", body.Operations[0].Required[0].Name)
	assert.Equal(t, "variadic", body.Operations[0].Positional)
}

func TestBuildEndpoint(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	t.Run("builds", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/build", map[string]interface{}{
			"family": "search",
			"action": "metadata",
			"params": map[string]interface{}{"query": "where qiita_study_id == 10317"},
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode(t, rec)
		assert.Equal(t, "redbiom search metadata 'where qiita_study_id == 10317'", body["command"])
		assert.Equal(t, "search metadata", body["operation"])
	})

	t.Run("missing required flag", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/build", map[string]interface{}{
			"family": "fetch", "action": "samples",
			"params": map[string]interface{}{"--output": "out.biom"},
		}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "--context", decode(t, rec)["flag"])
	})

	t.Run("unknown operation", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/build", map[string]interface{}{"family": "fetch", "action": "nothing"}, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad body", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/build", map[string]interface{}{"family": "fetch"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestValidateEndpoint(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	rec := do(t, s, http.MethodPost, "/v1/validate", map[string]string{"command": "redbiom summarize contexts"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ok reportJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.True(t, ok.Valid)
	assert.Equal(t, "summarize contexts", ok.Operation)
	assert.Empty(t, ok.Issues)

	rec = do(t, s, http.MethodPost, "/v1/validate", map[string]string{"command": "redbiom fetch samples --output x.biom"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bad reportJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bad))
	assert.False(t, bad.Valid)
	require.NotEmpty(t, bad.Issues)
	assert.Equal(t, "required-flag", bad.Issues[0].Rule)
}

func TestRunEndpoint(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		s := newTestServer(t, nil, Options{Runner: &fakeRunner{}})
		rec := do(t, s, http.MethodPost, "/v1/run", map[string]string{"command": "redbiom summarize contexts"}, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	enable := func(c *config.ServerConfig) { c.RunEnabled = true }

	t.Run("runs a valid command", func(t *testing.T) {
		fr := &fakeRunner{res: runner.Result{Success: true, Stdout: "ctx-a\n"}}
		s := newTestServer(t, enable, Options{Runner: fr})
		rec := do(t, s, http.MethodPost, "/v1/run", map[string]interface{}{
			"command": "redbiom summarize contexts",
			"stdin":   []string{"10317.000001"},
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "ctx-a\n", body["stdout"])
		require.Len(t, fr.calls, 1)
		assert.Equal(t, []string{"redbiom", "summarize", "contexts"}, fr.calls[0].Tokens)
		assert.Equal(t, []string{"10317.000001"}, fr.stdin)
	})

	t.Run("rejects invalid commands", func(t *testing.T) {
		fr := &fakeRunner{}
		s := newTestServer(t, enable, Options{Runner: fr})
		rec := do(t, s, http.MethodPost, "/v1/run", map[string]string{"command": "redbiom summarize contexts; rm -rf /"}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Empty(t, fr.calls)
	})

	t.Run("reports exit status", func(t *testing.T) {
		fr := &fakeRunner{
			res: runner.Result{ExitCode: 2, Stderr: "boom"},
			err: &runner.ExitError{Code: 2, Stderr: "boom"},
		}
		s := newTestServer(t, enable, Options{Runner: fr})
		rec := do(t, s, http.MethodPost, "/v1/run", map[string]string{"command": "redbiom summarize contexts"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, float64(2), body["exit_code"])
	})

	t.Run("timeout", func(t *testing.T) {
		fr := &fakeRunner{res: runner.Result{TimedOut: true, ExitCode: -1}, err: runner.ErrTimeout}
		s := newTestServer(t, enable, Options{Runner: fr})
		rec := do(t, s, http.MethodPost, "/v1/run", map[string]string{"command": "redbiom summarize contexts"}, nil)
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})
}

func TestAskEndpoint(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, nil, Options{})
		rec := do(t, s, http.MethodPost, "/v1/ask", map[string]string{"question": "which contexts exist?"}, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("answers", func(t *testing.T) {
		a := &fakeAsker{answer: "Run `redbiom summarize contexts`."}
		s := newTestServer(t, nil, Options{Assistant: askerFactory(a)})
		rec := do(t, s, http.MethodPost, "/v1/ask", map[string]string{"question": "which contexts exist?"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "which contexts exist?", a.question)
		assert.Equal(t, true, body["valid"])
		commands := body["commands"].([]interface{})
		require.Len(t, commands, 1)
		assert.Equal(t, "redbiom summarize contexts", commands[0].(map[string]interface{})["command"])
	})

	t.Run("blank question", func(t *testing.T) {
		s := newTestServer(t, nil, Options{Assistant: askerFactory(&fakeAsker{})})
		rec := do(t, s, http.MethodPost, "/v1/ask", map[string]string{"question": "   "}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("model failure", func(t *testing.T) {
		s := newTestServer(t, nil, Options{Assistant: askerFactory(&fakeAsker{err: errors.New("upstream down")})})
		rec := do(t, s, http.MethodPost, "/v1/ask", map[string]string{"question": "hi"}, nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestHandleListModels(t *testing.T) {
	s := newTestServer(t, nil, Options{Assistant: askerFactory(&fakeAsker{})})
	rec := do(t, s, http.MethodGet, "/v1/models", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp modelList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "list", resp.Object)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, AssistantModel, resp.Data[0].ID)
	assert.Equal(t, "model", resp.Data[0].Object)

	empty := newTestServer(t, nil, Options{})
	rec = do(t, empty, http.MethodGet, "/v1/models", nil, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data)
}

func TestHandleChatCompletions(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantType   string
	}{
		{"missing model", openai.ChatCompletionRequest{Messages: []openai.ChatCompletionMessage{{Role: "user", Content: "hi"}}}, http.StatusBadRequest, "invalid_request_error"},
		{"missing messages", openai.ChatCompletionRequest{Model: AssistantModel}, http.StatusBadRequest, "invalid_request_error"},
		{"unknown model", openai.ChatCompletionRequest{Model: "gpt-4o", Messages: []openai.ChatCompletionMessage{{Role: "user", Content: "hi"}}}, http.StatusNotFound, "model_not_found"},
		{"no user message", openai.ChatCompletionRequest{Model: AssistantModel, Messages: []openai.ChatCompletionMessage{{Role: "system", Content: "be brief"}}}, http.StatusBadRequest, "invalid_request_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, Options{Assistant: askerFactory(&fakeAsker{})})
			rec := do(t, s, http.MethodPost, "/v1/chat/completions", tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			var errResp openai.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
			require.NotNil(t, errResp.Error)
			assert.Equal(t, tt.wantType, errResp.Error.Type)
		})
	}

	t.Run("answers with restored history", func(t *testing.T) {
		a := &fakeAsker{answer: "Use `redbiom summarize contexts`."}
		s := newTestServer(t, nil, Options{Assistant: askerFactory(a)})
		rec := do(t, s, http.MethodPost, "/v1/chat/completions", openai.ChatCompletionRequest{
			Model: AssistantModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: "system", Content: "ignored"},
				{Role: "user", Content: "first question"},
				{Role: "assistant", Content: "first answer"},
				{Role: "user", Content: "which contexts exist?"},
			},
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp chatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "chat.completion", resp.Object)
		assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
		require.Len(t, resp.Choices, 1)
		assert.Equal(t, a.answer, resp.Choices[0].Message.Content)
		assert.Equal(t, openai.FinishReasonStop, resp.Choices[0].FinishReason)
		assert.Equal(t, []string{"redbiom summarize contexts"}, resp.Commands)

		assert.Equal(t, "which contexts exist?", a.question)
		assert.Equal(t, []models.Message{
			{Role: "user", Content: "first question"},
			{Role: "assistant", Content: "first answer"},
		}, a.restored)
	})
}

func TestChatCompletionStreaming(t *testing.T) {
	a := &fakeAsker{answer: "Use `redbiom summarize contexts`."}
	s := newTestServer(t, nil, Options{Assistant: askerFactory(a)})
	rec := do(t, s, http.MethodPost, "/v1/chat/completions", openai.ChatCompletionRequest{
		Model:    AssistantModel,
		Stream:   true,
		Messages: []openai.ChatCompletionMessage{{Role: "user", Content: "which contexts exist?"}},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var events []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Len(t, events, 4)
	assert.Equal(t, "[DONE]", events[3])

	var role, content openai.ChatCompletionStreamResponse
	require.NoError(t, json.Unmarshal([]byte(events[0]), &role))
	require.NoError(t, json.Unmarshal([]byte(events[1]), &content))
	assert.Equal(t, "chat.completion.chunk", role.Object)
	assert.Equal(t, "assistant", role.Choices[0].Delta.Role)
	assert.Equal(t, a.answer, content.Choices[0].Delta.Content)
	assert.Equal(t, role.ID, content.ID)
}

func TestChatCompletionStreamingError(t *testing.T) {
	s := newTestServer(t, nil, Options{Assistant: askerFactory(&fakeAsker{err: errors.New("upstream down")})})
	rec := do(t, s, http.MethodPost, "/v1/chat/completions", openai.ChatCompletionRequest{
		Model:    AssistantModel,
		Stream:   true,
		Messages: []openai.ChatCompletionMessage{{Role: "user", Content: "hi"}},
	}, nil)
	body := rec.Body.String()
	assert.Contains(t, body, `"message":"upstream down"`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestSplitMessagesMultiContent(t *testing.T) {
	input, prior := splitMessages([]openai.ChatCompletionMessage{
		{Role: "user", MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: "which samples"},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: "http://x/y.png"}},
			{Type: openai.ChatMessagePartTypeText, Text: "come from soil?"},
		}},
	})
	assert.Equal(t, "which samples\ncome from soil?", input)
	assert.Empty(t, prior)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 25, estimateTokens(strings.Repeat("a", 100)))
}
