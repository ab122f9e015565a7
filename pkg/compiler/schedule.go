package compiler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// compileSchedule implements Schedule rule: parse configured
// (schedule_expr, target_function_name) lines and, at run time, subscribe
// to a local cron firing each target function on schedule, using a
// second-precision, UTC `robfig/cron.Cron`.
func compileSchedule(cell *models.Cell, opID models.OperationID, deps Dependencies) (*engine.OperationNode, error) {
	cfg := cell.Schedule

	execute := func(ctx context.Context, state *engine.ExecutionState, payload engine.OperationPayload, env map[string]string, rpc engine.AsyncRPC) (*engine.OperationFnOutput, error) {
		c := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))
		var wg sync.WaitGroup
		for _, entry := range cfg.Entries {
			entry := entry
			triggerKey := cell.Name + ":" + entry.Expr
			if _, err := c.AddFunc(entry.Expr, func() {
				wg.Add(1)
				defer wg.Done()
				firedAt := time.Now()
				if deps.TriggerStore != nil {
					if err := deps.TriggerStore.RecordFire(ctx, triggerKey, firedAt); err != nil {
						logger.Default().Error("failed to persist schedule trigger fire", "trigger", triggerKey, "error", err)
					}
				}
				if deps.ResolveCell == nil {
					return
				}
				target, ok := deps.ResolveCell(entry.TargetFunctionCell)
				if !ok {
					return
				}
				fn := value.FunctionPointer{OperationID: target.String(), Name: entry.TargetFunctionName}
				_, _ = rpc.Invoke(ctx, fn, nil, nil)
			}); err != nil {
				return &engine.OperationFnOutput{HasError: true}, err
			}
		}
		c.Start()
		<-ctx.Done()
		stopCtx := c.Stop()
		<-stopCtx.Done()
		wg.Wait()
		return &engine.OperationFnOutput{Output: value.Null()}, ctx.Err()
	}

	return &engine.OperationNode{
		ID:            opID,
		DisplayName:   cell.Name,
		Execute:       execute,
		IsAsync:       true,
		IsLongRunning: true,
	}, nil
}
