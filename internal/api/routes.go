package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/airminal/internal/bridge"
	"github.com/zulandar/airminal/internal/observer"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, opts Opts) {
	hub := opts.Hub

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/message", handleMessage(hub))
	api.GET("/config", handleGetConfig(hub))
	api.PUT("/config", handleSaveConfig(hub))
	api.GET("/status", handleStatus(hub))
	api.DELETE("/sessions", handleClearSessions(hub))
	api.POST("/test-connection", handleTestConnection(hub))
	api.GET("/automations", handleAutomations(hub))
	api.POST("/automations/:id/trigger", handleTrigger(hub))
	api.GET("/automations/:id/runs", handleRuns(hub))
	api.GET("/tabs", handleTabs(opts.Tabs))
	api.GET("/events", handleSSE(hub, opts.Heartbeat))

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
		return nil, false
	}
	return body, true
}

// handleMessage answers one {type, ...payload} protocol message.
func handleMessage(hub Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readBody(c)
		if !ok {
			return
		}
		resp, err := hub.Handle(c.Request.Context(), body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleGetConfig(hub Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, bridge.ConfigResponse{Config: hub.Config()})
	}
}

// handleSaveConfig takes the config document itself as the body.
func handleSaveConfig(hub Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readBody(c)
		if !ok {
			return
		}
		if err := hub.SaveConfig(c.Request.Context(), body); err != nil {
			c.JSON(http.StatusBadRequest, bridge.SuccessResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, bridge.SuccessResponse{Success: true})
	}
}

func handleStatus(hub Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.Status())
	}
}

func handleClearSessions(hub Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		hub.ClearSessions()
		c.JSON(http.StatusOK, bridge.SuccessResponse{Success: true})
	}
}

func handleTestConnection(hub Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.TestConnection(c.Request.Context()))
	}
}

func handleAutomations(hub Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, bridge.AutomationsResponse{Automations: hub.Automations()})
	}
}

func handleTrigger(hub Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.TriggerAutomation(c.Request.Context(), c.Param("id")))
	}
}

// RunsResponse is the body of GET /api/automations/:id/runs.
type RunsResponse struct {
	Runs []bridge.RunView `json:"runs"`
}

func handleRuns(hub Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = n
		}
		runs, err := hub.Runs(c.Request.Context(), c.Param("id"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, RunsResponse{Runs: runs})
	}
}

// TabsResponse is the body of GET /api/tabs.
type TabsResponse struct {
	Tabs []observer.Status `json:"tabs"`
}

func handleTabs(tabs func() []observer.Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := []observer.Status{}
		if tabs != nil {
			out = append(out, tabs()...)
		}
		c.JSON(http.StatusOK, TabsResponse{Tabs: out})
	}
}
