// Package httpapi is the HTTP surface of the proxy: the SEI passthrough
// endpoints, summary endpoints, the collaboration CRUD groups and the
// access-URL minting endpoint.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coolbeans/seiview/pkg/auth"
	"github.com/coolbeans/seiview/pkg/cache"
	"github.com/coolbeans/seiview/pkg/proxy"
	"github.com/coolbeans/seiview/pkg/sei"
	"github.com/coolbeans/seiview/pkg/store"
	"github.com/coolbeans/seiview/pkg/summarize"
)

// tokenHeader carries the upstream SEI session token on proxied requests.
const tokenHeader = "X-SEI-Token"

// ProxyService is the orchestration surface the handlers call.
type ProxyService interface {
	Documents(ctx context.Context, token, numeroProcesso, idUnidade string, partial bool) (proxy.Envelope, error)
	Progress(ctx context.Context, token, numeroProcesso, idUnidade string, partial bool) (proxy.Envelope, error)
	ProgressStream(ctx context.Context, token, numeroProcesso, idUnidade string) <-chan proxy.StreamEvent
	OpenUnits(ctx context.Context, token, numeroProcesso, idUnidade string) (sei.Procedimento, error)
	Sign(ctx context.Context, token, idUnidade, protocoloDocumento string, signRequest sei.SignRequest) error
	Invalidate(ctx context.Context, numeroProcesso string) (int, error)
	Health(ctx context.Context) proxy.HealthStatus
}

// Upstream is the slice of the SEI client used directly by handlers.
type Upstream interface {
	Login(ctx context.Context, usuario, senha, orgao string) (sei.Session, error)
}

// Summarizer is the summary surface. Nil disables the summary routes.
type Summarizer interface {
	Understand(ctx context.Context, token, numeroProcesso, idUnidade string, documentos []sei.Documento) (summarize.Understanding, error)
	UnderstandStream(ctx context.Context, token, numeroProcesso, idUnidade string, documentos []sei.Documento) <-chan summarize.Chunk
	DocumentByProtocol(ctx context.Context, token, idUnidade, documento string) (string, error)
}

// Deps carries everything the server needs. Optional dependencies may be
// nil; the corresponding routes respond 503.
type Deps struct {
	Proxy      ProxyService
	Upstream   Upstream
	Summarizer Summarizer
	Store      *store.Store
	Tokens     *auth.TokenCipher
	Shares     *auth.ShareSigner

	// Cache backs the admin introspection routes.
	Cache cache.Cache

	// APIKey guards generate-url and the admin cache routes.
	APIKey string

	// PublicBaseURL builds the full access URL returned by generate-url.
	PublicBaseURL string

	Logger *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	deps   Deps
	logger *slog.Logger
	router *gin.Engine
}

// NewServer builds the server and registers every route.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	server := &Server{
		deps:   deps,
		logger: logger.With("component", "httpapi"),
		router: router,
	}

	seiGroup := router.Group("/sei")
	{
		seiGroup.POST("/login", server.handleLogin)
		seiGroup.GET("/documentos/:numero", server.handleDocuments)
		seiGroup.GET("/andamentos/:numero", server.handleProgress)
		seiGroup.GET("/andamentos-stream/:numero", server.handleProgressStream)
		seiGroup.GET("/unidades-abertas/:numero", server.handleOpenUnits)
		seiGroup.POST("/documentos/:numero/assinar", server.handleSign)
		seiGroup.DELETE("/cache/:numero", server.handleInvalidateCache)
		seiGroup.GET("/health", server.handleHealth)
	}

	processoGroup := router.Group("/processo")
	{
		processoGroup.GET("/resumo/:numero", server.handleResumo)
		processoGroup.GET("/resumo-stream/:numero", server.handleResumoStream)
		processoGroup.GET("/resumo-documento/:documento", server.handleResumoDocumento)
		processoGroup.GET("/andamento/:numero", server.handleLatestProgress)
	}

	tagsGroup := router.Group("/tags")
	{
		tagsGroup.POST("", server.handleCreateTag)
		tagsGroup.GET("", server.handleListTags)
		tagsGroup.PATCH("/:id", server.handleUpdateTag)
		tagsGroup.DELETE("/:id", server.handleDeleteTag)
		tagsGroup.POST("/:id/processos", server.handleTagProcess)
		tagsGroup.DELETE("/:id/processos/:numero", server.handleUntagProcess)
		tagsGroup.GET("/processo/:numero", server.handleProcessTags)
	}

	savedGroup := router.Group("/processos-salvos")
	{
		savedGroup.POST("", server.handleSaveProcess)
		savedGroup.GET("", server.handleListSavedProcesses)
		savedGroup.DELETE("/:numero", server.handleDeleteSavedProcess)
	}

	notesGroup := router.Group("/observacoes")
	{
		notesGroup.POST("", server.handleCreateNote)
		notesGroup.GET("/:numero", server.handleListNotes)
		notesGroup.PATCH("/:id", server.handleUpdateNote)
		notesGroup.DELETE("/:id", server.handleDeleteNote)
	}

	historyGroup := router.Group("/historico")
	{
		historyGroup.POST("", server.handleRecordSearch)
		historyGroup.GET("", server.handleListSearches)
		historyGroup.GET("/estatisticas", server.handleSearchStats)
		historyGroup.DELETE("/:id", server.handleDeleteSearch)
		historyGroup.PATCH("/:id/restaurar", server.handleRestoreSearch)
		historyGroup.DELETE("", server.handleClearSearches)
	}

	teamsGroup := router.Group("/equipes")
	{
		teamsGroup.POST("", server.handleCreateTeam)
		teamsGroup.GET("", server.handleListTeams)
		teamsGroup.GET("/:id", server.handleGetTeam)
		teamsGroup.DELETE("/:id", server.handleDeleteTeam)
		teamsGroup.POST("/:id/membros", server.handleAddMember)
		teamsGroup.DELETE("/:id/membros/:usuario", server.handleRemoveMember)
	}

	sharesGroup := router.Group("/compartilhamentos")
	{
		sharesGroup.POST("", server.handleCreateShare)
		sharesGroup.GET("/recebidos", server.handleReceivedShares)
		sharesGroup.GET("/enviados", server.handleSentShares)
		sharesGroup.DELETE("/:id", server.handleRevokeShare)
		sharesGroup.POST("/link", server.handleCreateShareLink)
		sharesGroup.GET("/link/:token", server.handleResolveShareLink)
	}

	router.POST("/auth/generate-url", server.handleGenerateURL)
	router.GET("/acesso", server.handleTokenLogin)

	adminGroup := router.Group("/admin/cache")
	{
		adminGroup.GET("/status", server.handleCacheStatus)
		adminGroup.GET("/chaves", server.handleCacheKeys)
		adminGroup.DELETE("", server.handleCacheReset)
	}

	return server
}

// Handler exposes the router for tests and for the graceful HTTP server.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Run serves until the listener fails.
func (server *Server) Run(addr string) error {
	return server.router.Run(addr)
}

// seiToken pulls the upstream session token from the request, aborting with
// an auth error when missing.
func (server *Server) seiToken(c *gin.Context) (string, bool) {
	token := c.GetHeader(tokenHeader)
	if token == "" {
		writeErrorEnvelope(c, http.StatusUnauthorized, string(sei.KindAuth), "missing "+tokenHeader+" header", nil)
		return "", false
	}
	return token, true
}

// requireUsuario pulls the acting user from the usuario query parameter.
func (server *Server) requireUsuario(c *gin.Context) (string, bool) {
	usuario := c.Query("usuario")
	if usuario == "" {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "usuario query parameter is required", nil)
		return "", false
	}
	return usuario, true
}

// requireUnidade pulls the unit id from the id_unidade query parameter.
func (server *Server) requireUnidade(c *gin.Context) (string, bool) {
	idUnidade := c.Query("id_unidade")
	if idUnidade == "" {
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", "id_unidade query parameter is required", nil)
		return "", false
	}
	return idUnidade, true
}
