package relayhandler

import (
	"net/http"

	"chatrelay/internal/relay"

	"github.com/gin-gonic/gin"
)

// ISessionReader is the read-only slice of the session service the REST
// surface needs.
type ISessionReader interface {
	Users() []string
	Messages() []relay.Message
	Snapshot() relay.MetricsSnapshot
}

type Handler struct {
	svc ISessionReader
}

func New(svc ISessionReader) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/healthz", h.health)
	r.GET("/users", h.users)
	r.GET("/messages", h.messages)
	r.GET("/metrics", h.metrics)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// users returns the current presence list, same ordering as the
// users_update broadcast.
func (h *Handler) users(c *gin.Context) {
	c.JSON(http.StatusOK, UsersResponse{Users: h.svc.Users()})
}

// messages returns the in-memory chat log.
func (h *Handler) messages(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Messages())
}

// metrics returns the full snapshot, including per-connection latency
// averages that the metrics_update broadcast omits.
func (h *Handler) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Snapshot())
}
