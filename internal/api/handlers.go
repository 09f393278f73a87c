package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type limitQuery struct {
	Limit int `form:"limit"`
}

type activityQuery struct {
	Days int `form:"days"`
}

type searchQuery struct {
	Query   string `form:"query"`
	Channel string `form:"channel"`
	Limit   int    `form:"limit"`
}

func (s *Server) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name": "medwarehouse",
		"endpoints": []string{
			"/api/health",
			"/api/reports/top-products",
			"/api/channels",
			"/api/channels/{channel_name}/activity",
			"/api/search/messages",
			"/api/reports/visual-content",
			"/api/runs",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"timestamp": s.now().UTC().Format(time.RFC3339)}
	if s.db == nil {
		body["status"] = "unhealthy"
		body["database"] = "unconfigured"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["driver"] = s.db.Driver()
	if err := s.db.Ping(c.Request.Context()); err != nil {
		s.fail(c, "health", err)
		return
	}
	body["status"] = "healthy"
	body["database"] = "connected"
	c.JSON(http.StatusOK, body)
}

func (s *Server) topProducts(c *gin.Context) {
	var q limitQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.fail(c, "top products", badRequest(err))
		return
	}
	rows, err := s.reports.TopProducts(c.Request.Context(), q.Limit)
	respond(s, c, "top products", rows, err)
}

func (s *Server) channels(c *gin.Context) {
	rows, err := s.reports.Channels(c.Request.Context())
	respond(s, c, "channels", rows, err)
}

func (s *Server) channelActivity(c *gin.Context) {
	var q activityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.fail(c, "channel activity", badRequest(err))
		return
	}
	rows, err := s.reports.Activity(c.Request.Context(), c.Param("channel_name"), q.Days)
	respond(s, c, "channel activity", rows, err)
}

func (s *Server) searchMessages(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.fail(c, "search", badRequest(err))
		return
	}
	rows, err := s.reports.Search(c.Request.Context(), q.Query, q.Channel, q.Limit)
	respond(s, c, "search", rows, err)
}

func (s *Server) visualContent(c *gin.Context) {
	rows, err := s.reports.VisualContent(c.Request.Context())
	respond(s, c, "visual content", rows, err)
}

func (s *Server) runs(c *gin.Context) {
	var q limitQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.fail(c, "runs", badRequest(err))
		return
	}
	rows, err := s.reports.Runs(c.Request.Context(), q.Limit)
	respond(s, c, "runs", rows, err)
}

func (s *Server) run(c *gin.Context) {
	view, err := s.reports.Run(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		s.fail(c, "run", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// respond writes rows, rendering a nil slice as [].
func respond[T any](s *Server, c *gin.Context, operation string, rows []T, err error) {
	if err != nil {
		s.fail(c, operation, err)
		return
	}
	if rows == nil {
		rows = []T{}
	}
	c.JSON(http.StatusOK, rows)
}
