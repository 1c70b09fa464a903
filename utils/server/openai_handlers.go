package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kris-hansen/redbiomctl/utils/assistant"
	"github.com/kris-hansen/redbiomctl/utils/logging"
	openai "github.com/sashabaranov/go-openai"
)

// chatTimeout bounds one chat completion, including validation retries
const chatTimeout = 5 * time.Minute

var startedAt = time.Now()

// generateCompletionID generates a unique completion ID
func generateCompletionID() string {
	return fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
}

// estimateTokens provides a rough token estimate (4 chars per token average)
func estimateTokens(text string) int {
	return len(text) / 4
}

func apiError(errType, message string) openai.ErrorResponse {
	return openai.ErrorResponse{Error: &openai.APIError{Type: errType, Message: message}}
}

// sendOpenAIError sends an error response in OpenAI format
func sendOpenAIError(c *gin.Context, status int, errType, message string) {
	c.AbortWithStatusJSON(status, apiError(errType, message))
}

// handleListModels handles GET /v1/models
func (s *Server) handleListModels(c *gin.Context) {
	list := modelList{Object: "list", Data: []openai.Model{}}
	if s.opts.Assistant != nil {
		list.Data = append(list.Data, openai.Model{
			ID:        AssistantModel,
			Object:    "model",
			CreatedAt: startedAt.Unix(),
			OwnedBy:   "redbiomctl",
		})
	}
	c.JSON(http.StatusOK, list)
}

// handleChatCompletions handles POST /v1/chat/completions
func (s *Server) handleChatCompletions(c *gin.Context) {
	var req openai.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "Invalid JSON: "+err.Error())
		return
	}
	if req.Model == "" {
		sendOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}
	if len(req.Messages) == 0 {
		sendOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "messages is required")
		return
	}
	if req.Model != AssistantModel || s.opts.Assistant == nil {
		sendOpenAIError(c, http.StatusNotFound, "model_not_found", "model not found: "+req.Model)
		return
	}

	input, prior := splitMessages(req.Messages)
	if input == "" {
		sendOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "a user message is required")
		return
	}

	asker, err := s.opts.Assistant()
	if err != nil {
		sendOpenAIError(c, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	asker.Restore(prior)
	logging.Debug("chat completion", "turns", len(prior), "stream", req.Stream)

	if req.Stream {
		s.streamChatCompletion(c, req.Model, asker, input)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), chatTimeout)
	defer cancel()
	answer, err := asker.Ask(ctx, input)
	if err != nil {
		sendOpenAIError(c, http.StatusBadGateway, "server_error", "Assistant failed: "+err.Error())
		return
	}

	prompt, completion := estimateTokens(input), estimateTokens(answer.Text)
	c.JSON(http.StatusOK, chatResponse{
		ChatCompletionResponse: openai.ChatCompletionResponse{
			ID:      generateCompletionID(),
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: answer.Text},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{
				PromptTokens:     prompt,
				CompletionTokens: completion,
				TotalTokens:      prompt + completion,
			},
		},
		Commands: answer.ValidCommands(),
	})
}

// streamChatCompletion answers over server-sent events. The assistant
// validates before replying, so the answer arrives as one content chunk.
func (s *Server) streamChatCompletion(c *gin.Context, model string, asker Asker, input string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	st := &sseStream{w: c.Writer, id: generateCompletionID(), created: time.Now().Unix(), model: model}
	st.chunk(openai.ChatCompletionStreamChoiceDelta{Role: openai.ChatMessageRoleAssistant}, "")

	ctx, cancel := context.WithTimeout(c.Request.Context(), chatTimeout)
	defer cancel()

	type result struct {
		answer assistant.Answer
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("assistant panic: %v", r)}
			}
		}()
		a, err := asker.Ask(ctx, input)
		done <- result{answer: a, err: err}
	}()

	select {
	case <-c.Request.Context().Done():
		return
	case <-ctx.Done():
		st.fail("Request timed out")
	case r := <-done:
		if r.err != nil {
			st.fail(r.err.Error())
			return
		}
		if r.answer.Text != "" {
			st.chunk(openai.ChatCompletionStreamChoiceDelta{Content: r.answer.Text}, "")
		}
		st.chunk(openai.ChatCompletionStreamChoiceDelta{}, openai.FinishReasonStop)
		st.done()
	}
}

// sseStream writes chat completion chunks of one response
type sseStream struct {
	w       gin.ResponseWriter
	id      string
	created int64
	model   string
}

func (st *sseStream) event(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Warn("could not encode stream event", "err", err)
		return
	}
	fmt.Fprintf(st.w, "data: %s\n\n", data)
	st.w.Flush()
}

func (st *sseStream) chunk(delta openai.ChatCompletionStreamChoiceDelta, finish openai.FinishReason) {
	st.event(openai.ChatCompletionStreamResponse{
		ID:      st.id,
		Object:  "chat.completion.chunk",
		Created: st.created,
		Model:   st.model,
		Choices: []openai.ChatCompletionStreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	})
}

func (st *sseStream) done() {
	fmt.Fprintf(st.w, "data: [DONE]\n\n")
	st.w.Flush()
}

// fail sends an error event and ends the stream
func (st *sseStream) fail(message string) {
	st.event(apiError("server_error", message))
	st.done()
}
