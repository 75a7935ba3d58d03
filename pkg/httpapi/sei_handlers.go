package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coolbeans/seiview/pkg/proxy"
	"github.com/coolbeans/seiview/pkg/sei"
)

type loginRequest struct {
	Usuario string `json:"usuario" binding:"required"`
	Senha   string `json:"senha" binding:"required"`
	Orgao   string `json:"orgao" binding:"required"`
}

func (server *Server) handleLogin(c *gin.Context) {
	var body loginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "usuario, senha and orgao are required", nil)
		return
	}

	session, err := server.deps.Upstream.Login(c.Request.Context(), body.Usuario, body.Senha, body.Orgao)
	if err != nil {
		server.logger.Warn("login failed", "usuario", body.Usuario, "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (server *Server) handleDocuments(c *gin.Context) {
	token, ok := server.seiToken(c)
	if !ok {
		return
	}
	idUnidade, ok := server.requireUnidade(c)
	if !ok {
		return
	}
	partial := c.Query("parcial") == "true"

	envelope, err := server.deps.Proxy.Documents(c.Request.Context(), token, c.Param("numero"), idUnidade, partial)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope)
}

func (server *Server) handleProgress(c *gin.Context) {
	token, ok := server.seiToken(c)
	if !ok {
		return
	}
	idUnidade, ok := server.requireUnidade(c)
	if !ok {
		return
	}
	partial := c.Query("parcial") == "true"

	envelope, err := server.deps.Proxy.Progress(c.Request.Context(), token, c.Param("numero"), idUnidade, partial)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope)
}

// sseFrame writes one data frame and flushes it to the client.
func sseFrame(c *gin.Context, frameType string, content any) {
	payload, err := json.Marshal(gin.H{"type": frameType, "content": content})
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
	c.Writer.Flush()
}

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}

func (server *Server) handleProgressStream(c *gin.Context) {
	token, ok := server.seiToken(c)
	if !ok {
		return
	}
	idUnidade, ok := server.requireUnidade(c)
	if !ok {
		return
	}
	sseHeaders(c)

	events := server.deps.Proxy.ProgressStream(c.Request.Context(), token, c.Param("numero"), idUnidade)
	for event := range events {
		switch event.Type {
		case proxy.StreamProgress:
			sseFrame(c, "progress", gin.H{"loaded": event.Loaded, "total": event.Total})
		case proxy.StreamDone:
			sseFrame(c, "done", event.Envelope)
		case proxy.StreamError:
			sseFrame(c, "error", event.Message)
			return
		}
	}
}

func (server *Server) handleOpenUnits(c *gin.Context) {
	token, ok := server.seiToken(c)
	if !ok {
		return
	}
	idUnidade, ok := server.requireUnidade(c)
	if !ok {
		return
	}

	procedimento, err := server.deps.Proxy.OpenUnits(c.Request.Context(), token, c.Param("numero"), idUnidade)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, procedimento)
}

func (server *Server) handleSign(c *gin.Context) {
	token, ok := server.seiToken(c)
	if !ok {
		return
	}
	idUnidade, ok := server.requireUnidade(c)
	if !ok {
		return
	}

	var body sei.SignRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "invalid sign request body", nil)
		return
	}

	if err := server.deps.Proxy.Sign(c.Request.Context(), token, idUnidade, c.Param("numero"), body); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (server *Server) handleInvalidateCache(c *gin.Context) {
	removed, err := server.deps.Proxy.Invalidate(c.Request.Context(), c.Param("numero"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "removidos": removed})
}

func (server *Server) handleHealth(c *gin.Context) {
	status := server.deps.Proxy.Health(c.Request.Context())
	httpStatus := http.StatusOK
	if status.Upstream != "up" {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, status)
}
