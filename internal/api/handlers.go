package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"actionsync/internal/alog"
	"actionsync/internal/registry"
)

// Handler holds the dependencies the admin/diagnostic routes read from.
type Handler struct {
	log      *alog.Log
	registry *registry.Registry
	nodeID   string
}

// NewHandler creates a Handler.
func NewHandler(log *alog.Log, reg *registry.Registry, nodeID string) *Handler {
	return &Handler{log: log, registry: reg, nodeID: nodeID}
}

// Register mounts every admin route on r, plus a Prometheus scrape
// endpoint at /metrics.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	r.GET("/nodes", h.Nodes)
	r.GET("/peers/:id/cursor", h.PeerCursor)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	lastAdded, err := h.log.Store().LastAdded(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"node":      h.nodeID,
		"status":    "ok",
		"lastAdded": lastAdded,
		"sessions":  h.registry.Count(),
	})
}

// Stats handles GET /stats: this node's id and a snapshot of every live
// session (connection state, syncing, timeFix). Per-peer sync cursors are
// not included; PeerCursor serves them.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"node":     h.nodeID,
		"sessions": h.registry.List(),
	})
}

// Nodes handles GET /nodes: the remote node ids this process currently
// holds a session for.
func (h *Handler) Nodes(c *gin.Context) {
	snapshots := h.registry.List()
	ids := make([]string, 0, len(snapshots))
	for _, s := range snapshots {
		if s.RemoteNodeID != "" {
			ids = append(ids, s.RemoteNodeID)
		}
	}
	c.JSON(http.StatusOK, gin.H{"nodes": ids})
}

// PeerCursor handles GET /peers/:id/cursor, returning the persisted sync
// watermark pair for a given peer node id (store.SyncCursor).
func (h *Handler) PeerCursor(c *gin.Context) {
	peer := c.Param("id")
	cursor, err := h.log.Store().LastSynced(c.Request.Context(), peer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"peer": peer, "cursor": cursor})
}
