package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coolbeans/seiview/pkg/auth"
)

type generateURLRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Orgao    string `json:"orgao" binding:"required"`
}

// requireAPIKey guards trusted-system routes behind the x-api-key header.
func (server *Server) requireAPIKey(c *gin.Context) bool {
	if server.deps.APIKey == "" {
		writeErrorEnvelope(c, http.StatusServiceUnavailable, "service_unavailable", "API key access is not configured", nil)
		return false
	}
	apiKey := c.GetHeader("x-api-key")
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(server.deps.APIKey)) != 1 {
		writeErrorEnvelope(c, http.StatusForbidden, "authentication_error", "invalid API key", nil)
		return false
	}
	return true
}

// handleGenerateURL seals SEI credentials into an access token for
// pre-authenticated URLs. Guarded by the x-api-key header so only trusted
// systems can mint tokens.
func (server *Server) handleGenerateURL(c *gin.Context) {
	if server.deps.Tokens == nil {
		writeErrorEnvelope(c, http.StatusServiceUnavailable, "service_unavailable", "access URL generation is not configured", nil)
		return
	}
	if !server.requireAPIKey(c) {
		return
	}

	var body generateURLRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "email, password and orgao are required", nil)
		return
	}

	token, err := server.deps.Tokens.Mint(auth.Credentials{
		Usuario: body.Email,
		Senha:   body.Password,
		Orgao:   body.Orgao,
	}, 24*time.Hour)
	if err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	fullURL := ""
	if server.deps.PublicBaseURL != "" {
		fullURL = server.deps.PublicBaseURL + "/acesso?token=" + url.QueryEscape(token)
	}
	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"base_url": server.deps.PublicBaseURL,
		"full_url": fullURL,
	})
}

// handleTokenLogin consumes a minted access token: the sealed credentials
// are opened and exchanged for an upstream SEI session. Invalid credentials
// surface as the upstream's authentication error.
func (server *Server) handleTokenLogin(c *gin.Context) {
	if server.deps.Tokens == nil {
		writeErrorEnvelope(c, http.StatusServiceUnavailable, "service_unavailable", "access tokens are not configured", nil)
		return
	}
	token := c.Query("token")
	if token == "" {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "token query parameter is required", nil)
		return
	}

	credentials, err := server.deps.Tokens.Open(token)
	if err != nil {
		message := "invalid access token"
		if errors.Is(err, auth.ErrTokenExpired) {
			message = "access token expired"
		}
		writeErrorEnvelope(c, http.StatusUnauthorized, "authentication_error", message, nil)
		return
	}

	session, err := server.deps.Upstream.Login(c.Request.Context(), credentials.Usuario, credentials.Senha, credentials.Orgao)
	if err != nil {
		server.logger.Warn("token login failed", "usuario", credentials.Usuario, "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
