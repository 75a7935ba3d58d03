package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// The admin cache routes introspect and reset the proxy cache. They share
// the x-api-key guard with generate-url.

func (server *Server) cacheReady(c *gin.Context) bool {
	if server.deps.Cache == nil {
		writeErrorEnvelope(c, http.StatusServiceUnavailable, "service_unavailable", "cache is not configured", nil)
		return false
	}
	return true
}

func (server *Server) handleCacheStatus(c *gin.Context) {
	if !server.requireAPIKey(c) || !server.cacheReady(c) {
		return
	}
	ctx := c.Request.Context()

	if err := server.deps.Cache.Ping(ctx); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"status":    "unavailable",
			"connected": false,
			"message":   err.Error(),
		})
		return
	}
	keys, err := server.deps.Cache.Keys(ctx, "*")
	if err != nil {
		writeErrorEnvelope(c, http.StatusBadGateway, "external_service_error", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"connected":  true,
		"total_keys": len(keys),
	})
}

func (server *Server) handleCacheKeys(c *gin.Context) {
	if !server.requireAPIKey(c) || !server.cacheReady(c) {
		return
	}
	pattern := c.DefaultQuery("pattern", "*")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	keys, err := server.deps.Cache.Keys(c.Request.Context(), pattern)
	if err != nil {
		writeErrorEnvelope(c, http.StatusBadGateway, "external_service_error", err.Error(), nil)
		return
	}
	total := len(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"pattern":       pattern,
		"total_keys":    total,
		"returned_keys": len(keys),
		"limit":         limit,
		"keys":          keys,
	})
}

func (server *Server) handleCacheReset(c *gin.Context) {
	if !server.requireAPIKey(c) || !server.cacheReady(c) {
		return
	}
	deleted, err := server.deps.Cache.DeletePattern(c.Request.Context(), "*")
	if err != nil {
		writeErrorEnvelope(c, http.StatusBadGateway, "external_service_error", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"keys_deleted": deleted,
	})
}
