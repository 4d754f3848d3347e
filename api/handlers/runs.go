package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/tracing"
)

// TriggerRun runs one batch pass over every mailbox within the request
// deadline and returns the run summary.
func TriggerRun(runner interfaces.BatchRunner, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "Handlers.TriggerRun")
		defer span.Finish()
		tracing.TagComponentRest(span)

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		summary, err := runner.RunOnce(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			status := http.StatusInternalServerError
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		span.SetTag(tracing.SpanTagRunId, summary.RunID)
		c.JSON(http.StatusOK, summary)
	}
}
