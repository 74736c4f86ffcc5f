package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/core"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// WebSocketHandler streams a suggest run to a connected agent-assist client:
// a status chunk while the graph runs, the answer split into word chunks,
// then a complete frame carrying citations and evidence.
type WebSocketHandler struct {
	service *core.Service
}

func NewWebSocketHandler(service *core.Service) *WebSocketHandler {
	return &WebSocketHandler{service: service}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("websocket connection established")

	defer func() {
		c.Close()
		logger.Info("websocket connection closed")
	}()

	for {
		var msg struct {
			Type           string `json:"type"`
			ConversationID string `json:"conversation_id"`
			Query          string `json:"query"`
			Category       string `json:"category"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Error("failed to read websocket message", zap.Error(err))
			break
		}

		if msg.Type != "suggest" {
			continue
		}

		logger.Info("processing websocket suggest request", zap.String("query", msg.Query))

		if err := h.streamSuggest(c, msg.ConversationID, msg.Query, msg.Category); err != nil {
			logger.Error("failed to stream suggest response", zap.Error(err))
			h.sendError(c, "failed to process suggestion")
		}
	}
}

func (h *WebSocketHandler) streamSuggest(c *websocket.Conn, conversationID, queryText, category string) error {
	ctx := context.Background()

	if err := h.sendChunk(c, "status", "retrieving evidence..."); err != nil {
		return err
	}

	resp, err := h.service.Suggest(ctx, core.SuggestRequest{
		ConversationID: conversationID,
		Query:          queryText,
		Category:       category,
	})
	if err != nil {
		return err
	}

	for _, word := range splitIntoWords(resp.Answer) {
		if err := h.sendChunk(c, "chunk", word); err != nil {
			return err
		}
	}

	return h.sendComplete(c, resp)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, resp core.SuggestResponse) error {
	msg := map[string]interface{}{
		"type":         "complete",
		"execution_id": resp.ExecutionID,
		"status":       resp.Status,
		"citations":    resp.Citations,
		"evidence":     resp.Evidence,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
