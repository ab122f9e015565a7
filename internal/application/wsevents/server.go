package wsevents

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/mbflow/internal/application/orchestrator"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
)

// Serve starts a *gin.Engine exposing GET /ws/events, wired to a Hub
// watching inst. It returns once the listener is bound; the server
// itself runs until ctx is cancelled.
func Serve(ctx context.Context, addr string, inst *orchestrator.Instance) (*http.Server, error) {
	log := logger.Default().With("component", "wsevents")
	hub := NewHub(log)
	go hub.Watch(inst)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := NewHandler(hub, log)
	router.GET("/ws/events", func(c *gin.Context) { handler.ServeHTTP(c.Writer, c.Request) })

	srv := &http.Server{Addr: addr, Handler: router}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info("websocket event listener started", "addr", addr)
		_ = srv.Serve(ln)
	}()

	return srv, nil
}
