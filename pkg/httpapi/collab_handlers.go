package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// storeReady aborts with 503 when the collaboration store is not configured.
func (server *Server) storeReady(c *gin.Context) bool {
	if server.deps.Store == nil {
		writeErrorEnvelope(c, http.StatusServiceUnavailable, "service_unavailable", "collaboration store is not configured", nil)
		return false
	}
	return true
}

type tagRequest struct {
	Nome string `json:"nome" binding:"required"`
	Cor  string `json:"cor"`
}

func (server *Server) handleCreateTag(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	var body tagRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "nome is required", nil)
		return
	}

	tag, err := server.deps.Store.CreateTag(c.Request.Context(), usuario, body.Nome, body.Cor)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

func (server *Server) handleListTags(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}

	tags, err := server.deps.Store.ListTags(c.Request.Context(), usuario)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

func (server *Server) handleUpdateTag(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	var body tagRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "nome is required", nil)
		return
	}

	tag, err := server.deps.Store.UpdateTag(c.Request.Context(), usuario, c.Param("id"), body.Nome, body.Cor)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, tag)
}

func (server *Server) handleDeleteTag(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	if err := server.deps.Store.DeleteTag(c.Request.Context(), usuario, c.Param("id")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type tagProcessRequest struct {
	NumeroProcesso string `json:"numero_processo" binding:"required"`
}

func (server *Server) handleTagProcess(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	var body tagProcessRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "numero_processo is required", nil)
		return
	}

	if err := server.deps.Store.TagProcess(c.Request.Context(), usuario, c.Param("id"), body.NumeroProcesso); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success"})
}

func (server *Server) handleUntagProcess(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	if err := server.deps.Store.UntagProcess(c.Request.Context(), usuario, c.Param("id"), c.Param("numero")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (server *Server) handleProcessTags(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	tags, err := server.deps.Store.ProcessTags(c.Request.Context(), usuario, c.Param("numero"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

type saveProcessRequest struct {
	NumeroProcesso string `json:"numero_processo" binding:"required"`
	Anotacao       string `json:"anotacao"`
}

func (server *Server) handleSaveProcess(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	var body saveProcessRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "numero_processo is required", nil)
		return
	}

	saved, err := server.deps.Store.SaveProcess(c.Request.Context(), usuario, body.NumeroProcesso, body.Anotacao)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (server *Server) handleListSavedProcesses(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	saved, err := server.deps.Store.ListSavedProcesses(c.Request.Context(), usuario)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (server *Server) handleDeleteSavedProcess(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	if err := server.deps.Store.DeleteSavedProcess(c.Request.Context(), usuario, c.Param("numero")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type noteRequest struct {
	NumeroProcesso string `json:"numero_processo"`
	Texto          string `json:"texto" binding:"required"`
}

func (server *Server) handleCreateNote(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	var body noteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "texto is required", nil)
		return
	}

	note, err := server.deps.Store.CreateNote(c.Request.Context(), usuario, body.NumeroProcesso, body.Texto)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (server *Server) handleListNotes(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	notes, err := server.deps.Store.ListNotes(c.Request.Context(), usuario, c.Param("numero"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, notes)
}

func (server *Server) handleUpdateNote(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	var body noteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "texto is required", nil)
		return
	}

	note, err := server.deps.Store.UpdateNote(c.Request.Context(), usuario, c.Param("id"), body.Texto)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (server *Server) handleDeleteNote(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	if err := server.deps.Store.DeleteNote(c.Request.Context(), usuario, c.Param("id")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type searchRequest struct {
	Termo string `json:"termo" binding:"required"`
	Tipo  string `json:"tipo"`
}

func (server *Server) handleRecordSearch(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	var body searchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "termo is required", nil)
		return
	}

	entry, err := server.deps.Store.RecordSearch(c.Request.Context(), usuario, body.Termo, body.Tipo)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (server *Server) handleListSearches(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limite", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := server.deps.Store.ListSearches(c.Request.Context(), usuario, limit, offset)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (server *Server) handleSearchStats(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	stats, err := server.deps.Store.Stats(c.Request.Context(), usuario)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (server *Server) handleDeleteSearch(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	if err := server.deps.Store.DeleteSearch(c.Request.Context(), usuario, c.Param("id")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (server *Server) handleRestoreSearch(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	if err := server.deps.Store.RestoreSearch(c.Request.Context(), usuario, c.Param("id")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (server *Server) handleClearSearches(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	cleared, err := server.deps.Store.ClearSearches(c.Request.Context(), usuario)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "removidos": cleared})
}
