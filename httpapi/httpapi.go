// Package httpapi exposes the conversation handler over HTTP.
//
// POST /api/chat streams the turn: raw content chunks as they arrive, then
// a __CITATIONS_START__ marker line and the cited text when the turn
// produced citations, and finally one JSON envelope line that signals
// completion to the client.
//
// GET /api/history/:id returns the stored transcript of a conversation,
// with assistant turns rendered to HTML for display.
package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	relay "github.com/relaykit/relay"
	"github.com/relaykit/relay/render"
)

// citationsMarker separates raw streamed text from the cited rendition.
const citationsMarker = "__CITATIONS_START__"

// Server serves the chat API for one relay.Handler.
type Server struct {
	handler        *relay.Handler
	store          relay.ConversationStore
	logger         *slog.Logger
	historyTurns   int
	allowedOrigins []string
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables history loading for incoming conversations.
func WithStore(s relay.ConversationStore) Option {
	return func(srv *Server) { srv.store = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// WithHistoryTurns bounds how many stored turns are replayed into a request
// (default 20).
func WithHistoryTurns(n int) Option {
	return func(srv *Server) { srv.historyTurns = n }
}

// WithAllowedOrigins sets CORS origins. Empty means same-origin only.
func WithAllowedOrigins(origins []string) Option {
	return func(srv *Server) { srv.allowedOrigins = origins }
}

// New creates a Server around handler.
func New(handler *relay.Handler, opts ...Option) *Server {
	srv := &Server{
		handler:      handler,
		logger:       slog.New(slog.DiscardHandler),
		historyTurns: 20,
	}
	for _, o := range opts {
		o(srv)
	}
	return srv
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if len(s.allowedOrigins) > 0 {
		r.Use(s.cors())
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/api/chat", s.chat)
	r.GET("/api/history/:id", s.history)
	return r
}

func (s *Server) cors() gin.HandlerFunc {
	allowed := make(map[string]bool, len(s.allowedOrigins))
	for _, o := range s.allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message" binding:"required"`
}

// envelope is the terminal JSON line of a chat stream.
type envelope struct {
	RawResponse   string  `json:"raw_response"`
	CitedResponse *string `json:"cited_response"`
	Citations     bool    `json:"citations"`
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = relay.NewID()
	}

	ctx := c.Request.Context()

	var history []relay.Turn
	if s.store != nil {
		var err error
		history, err = s.store.Recent(ctx, req.ConversationID, s.historyTurns)
		if err != nil {
			s.logger.Warn("history load failed",
				"conversation", req.ConversationID,
				"error", err)
		}
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("X-Conversation-ID", req.ConversationID)
	c.Status(http.StatusOK)

	forward := make(chan relay.StreamChunk, 16)
	type turnResult struct {
		env relay.ResponseEnvelope
		err error
	}
	done := make(chan turnResult, 1)
	go func() {
		env, err := s.handler.Handle(ctx, req.ConversationID, relay.Query{Text: req.Message}, history, forward)
		close(forward)
		done <- turnResult{env, err}
	}()

	w := c.Writer
	for chunk := range forward {
		switch chunk.Kind {
		case relay.ChunkContentDelta, relay.ChunkError:
			if chunk.Text != "" {
				io.WriteString(w, chunk.Text)
				w.Flush()
			}
		}
	}

	res := <-done
	if res.err != nil {
		s.logger.Error("turn failed",
			"conversation", req.ConversationID,
			"error", res.err)
		writeTerminal(w, envelope{
			RawResponse: "Sorry, something went wrong. Please try again in a moment.",
		})
		return
	}

	env := envelope{RawResponse: res.env.RawText, Citations: res.env.Cited()}
	if res.env.Cited() {
		io.WriteString(w, "\n"+citationsMarker+"\n")
		io.WriteString(w, res.env.CitedText)
		if !strings.HasSuffix(res.env.CitedText, "\n") {
			io.WriteString(w, "\n")
		}
		env.CitedResponse = &res.env.CitedText
	}
	writeTerminal(w, env)
}

// historyTurn is one transcript entry. HTML is the rendered content for
// assistant turns; user turns carry only the raw text.
type historyTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
}

func (s *Server) history(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is not enabled"})
		return
	}
	id := c.Param("id")
	turns, err := s.store.Recent(c.Request.Context(), id, s.historyTurns)
	if err != nil {
		s.logger.Error("history load failed", "conversation", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load history"})
		return
	}

	out := make([]historyTurn, 0, len(turns))
	for _, t := range turns {
		ht := historyTurn{Role: t.Role, Content: t.Content}
		if t.Role == "assistant" {
			ht.HTML = render.ToHTML(t.Content)
		}
		out = append(out, ht)
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "turns": out})
}

func writeTerminal(w gin.ResponseWriter, env envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	w.Write(payload)
	io.WriteString(w, "\n")
	w.Flush()
}
