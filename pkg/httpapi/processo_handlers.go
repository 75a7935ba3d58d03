package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// summarizerReady aborts with 503 when summarization is not configured.
func (server *Server) summarizerReady(c *gin.Context) bool {
	if server.deps.Summarizer == nil {
		writeErrorEnvelope(c, http.StatusServiceUnavailable, "service_unavailable", "summarization is not configured", nil)
		return false
	}
	return true
}

func (server *Server) handleResumo(c *gin.Context) {
	if !server.summarizerReady(c) {
		return
	}
	token, ok := server.seiToken(c)
	if !ok {
		return
	}
	idUnidade, ok := server.requireUnidade(c)
	if !ok {
		return
	}
	numero := c.Param("numero")

	envelope, err := server.deps.Proxy.Documents(c.Request.Context(), token, numero, idUnidade, false)
	if err != nil {
		writeError(c, err)
		return
	}
	understanding, err := server.deps.Summarizer.Understand(c.Request.Context(), token, numero, idUnidade, envelope.Documentos)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, understanding)
}

func (server *Server) handleResumoStream(c *gin.Context) {
	if !server.summarizerReady(c) {
		return
	}
	token, ok := server.seiToken(c)
	if !ok {
		return
	}
	idUnidade, ok := server.requireUnidade(c)
	if !ok {
		return
	}
	numero := c.Param("numero")

	envelope, err := server.deps.Proxy.Documents(c.Request.Context(), token, numero, idUnidade, false)
	if err != nil {
		writeError(c, err)
		return
	}

	sseHeaders(c)
	chunks := server.deps.Summarizer.UnderstandStream(c.Request.Context(), token, numero, idUnidade, envelope.Documentos)
	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			sseFrame(c, "error", chunk.Err.Error())
			return
		case chunk.Done:
			sseFrame(c, "done", nil)
		default:
			sseFrame(c, "chunk", chunk.Content)
		}
	}
}

func (server *Server) handleResumoDocumento(c *gin.Context) {
	if !server.summarizerReady(c) {
		return
	}
	token, ok := server.seiToken(c)
	if !ok {
		return
	}
	idUnidade, ok := server.requireUnidade(c)
	if !ok {
		return
	}

	resumo, err := server.deps.Summarizer.DocumentByProtocol(c.Request.Context(), token, idUnidade, c.Param("documento"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documento": c.Param("documento"), "resumo": resumo})
}

// handleLatestProgress returns the most recent progress event of a process,
// served through the same cached listing the andamentos endpoint uses.
func (server *Server) handleLatestProgress(c *gin.Context) {
	token, ok := server.seiToken(c)
	if !ok {
		return
	}
	idUnidade, ok := server.requireUnidade(c)
	if !ok {
		return
	}

	envelope, err := server.deps.Proxy.Progress(c.Request.Context(), token, c.Param("numero"), idUnidade, true)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(envelope.Andamentos) == 0 {
		writeErrorEnvelope(c, http.StatusNotFound, "not_found", "process has no progress events", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"numero_processo": envelope.Info.NumeroProcesso,
		"andamento":       envelope.Andamentos[len(envelope.Andamentos)-1],
	})
}
