package compiler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// compileWeb implements Web rule: start an HTTP listener
// that forwards inbound requests as function invocations on the
// referenced operations, using a gin-based HTTP listener generalized
// from a fixed route table to one built from cfg.Routes.
func compileWeb(cell *models.Cell, opID models.OperationID, deps Dependencies) (*engine.OperationNode, error) {
	cfg := cell.Web

	execute := func(ctx context.Context, state *engine.ExecutionState, payload engine.OperationPayload, env map[string]string, rpc engine.AsyncRPC) (*engine.OperationFnOutput, error) {
		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.Use(gin.Recovery())

		for _, route := range cfg.Routes {
			route := route
			router.Handle(route.Method, route.Path, func(c *gin.Context) {
				var body interface{}
				_ = c.ShouldBindJSON(&body)
				arg, err := value.FromJSON(body)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				if deps.ResolveCell == nil {
					c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cell resolver unavailable"})
					return
				}
				target, ok := deps.ResolveCell(route.FunctionCell)
				if !ok {
					c.JSON(http.StatusNotFound, gin.H{"error": "unknown target cell"})
					return
				}
				fn := value.FunctionPointer{OperationID: target.String(), Name: route.FunctionName}
				out, err := rpc.Invoke(c.Request.Context(), fn, []value.Value{arg}, nil)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
				json, err := value.ToJSON(out)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
				c.JSON(http.StatusOK, json)
			})
		}

		server := &http.Server{Addr: cfg.Addr, Handler: router}
		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()

		select {
		case <-ctx.Done():
			_ = server.Close()
			return &engine.OperationFnOutput{Output: value.Null()}, ctx.Err()
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return &engine.OperationFnOutput{HasError: true}, err
			}
			return &engine.OperationFnOutput{Output: value.Null()}, nil
		}
	}

	return &engine.OperationNode{
		ID:            opID,
		DisplayName:   cell.Name,
		Execute:       execute,
		IsAsync:       true,
		IsLongRunning: true,
	}, nil
}
