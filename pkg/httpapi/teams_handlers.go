package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coolbeans/seiview/pkg/processo"
)

type teamRequest struct {
	Nome      string `json:"nome" binding:"required"`
	Descricao string `json:"descricao"`
}

func (server *Server) handleCreateTeam(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	var body teamRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "nome is required", nil)
		return
	}

	team, err := server.deps.Store.CreateTeam(c.Request.Context(), usuario, body.Nome, body.Descricao)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, team)
}

func (server *Server) handleListTeams(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	teams, err := server.deps.Store.ListTeams(c.Request.Context(), usuario)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, teams)
}

func (server *Server) handleGetTeam(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	team, err := server.deps.Store.GetTeam(c.Request.Context(), usuario, c.Param("id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, team)
}

func (server *Server) handleDeleteTeam(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	if err := server.deps.Store.DeleteTeam(c.Request.Context(), usuario, c.Param("id")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type memberRequest struct {
	Usuario string `json:"usuario" binding:"required"`
	Papel   string `json:"papel"`
}

func (server *Server) handleAddMember(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	actor, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	var body memberRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "usuario is required", nil)
		return
	}

	if err := server.deps.Store.AddMember(c.Request.Context(), actor, c.Param("id"), body.Usuario, body.Papel); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success"})
}

func (server *Server) handleRemoveMember(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	actor, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	if err := server.deps.Store.RemoveMember(c.Request.Context(), actor, c.Param("id"), c.Param("usuario")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type shareRequest struct {
	NumeroProcesso string `json:"numero_processo" binding:"required"`
	Destinatario   string `json:"destinatario"`
	EquipeID       string `json:"equipe_id"`
	Mensagem       string `json:"mensagem"`
}

func (server *Server) handleCreateShare(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	var body shareRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "numero_processo is required", nil)
		return
	}
	if (body.Destinatario == "") == (body.EquipeID == "") {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "exactly one of destinatario or equipe_id is required", nil)
		return
	}

	if body.Destinatario != "" {
		share, err := server.deps.Store.ShareWithUser(c.Request.Context(), usuario, body.NumeroProcesso, body.Destinatario, body.Mensagem)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusCreated, share)
		return
	}

	share, err := server.deps.Store.ShareWithTeam(c.Request.Context(), usuario, body.NumeroProcesso, body.EquipeID, body.Mensagem)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, share)
}

func (server *Server) handleReceivedShares(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	shares, err := server.deps.Store.ListReceivedShares(c.Request.Context(), usuario)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, shares)
}

func (server *Server) handleSentShares(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	shares, err := server.deps.Store.ListSentShares(c.Request.Context(), usuario)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, shares)
}

func (server *Server) handleRevokeShare(c *gin.Context) {
	if !server.storeReady(c) {
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	if err := server.deps.Store.RevokeShare(c.Request.Context(), usuario, c.Param("id")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type shareLinkRequest struct {
	NumeroProcesso string `json:"numero_processo" binding:"required"`
	ValidadeHoras  int    `json:"validade_horas"`
}

func (server *Server) handleCreateShareLink(c *gin.Context) {
	if server.deps.Shares == nil {
		writeErrorEnvelope(c, http.StatusServiceUnavailable, "service_unavailable", "share links are not configured", nil)
		return
	}
	usuario, ok := server.requireUsuario(c)
	if !ok {
		return
	}
	var body shareLinkRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "numero_processo is required", nil)
		return
	}
	validity := time.Duration(body.ValidadeHoras) * time.Hour
	if validity <= 0 {
		validity = 72 * time.Hour
	}

	token, err := server.deps.Shares.Sign(processo.Normalize(body.NumeroProcesso), usuario, validity)
	if err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "expira_em_horas": int(validity.Hours())})
}

func (server *Server) handleResolveShareLink(c *gin.Context) {
	if server.deps.Shares == nil {
		writeErrorEnvelope(c, http.StatusServiceUnavailable, "service_unavailable", "share links are not configured", nil)
		return
	}

	claims, err := server.deps.Shares.Verify(c.Param("token"))
	if err != nil {
		writeErrorEnvelope(c, http.StatusUnauthorized, "authentication_error", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"numero_processo": claims.NumeroProcesso,
		"remetente":       claims.Remetente,
	})
}
