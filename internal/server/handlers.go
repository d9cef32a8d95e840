package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terminal-bench/stochopt/internal/agriculture"
	"github.com/terminal-bench/stochopt/internal/events"
	"github.com/terminal-bench/stochopt/pkg/circuit"
	"github.com/terminal-bench/stochopt/pkg/stochastic"
)

type optimizeResponse struct {
	RequestID string `json:"request_id"`
	*agriculture.PlanResult
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "stochopt",
		"version":     "1.0.0",
		"description": "two-stage stochastic production planning",
		"modules":     []string{"agriculture"},
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "stochopt"})
}

func (s *Server) agricultureHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "module": "agriculture"})
}

func (s *Server) optimizePlan(c *gin.Context) {
	requestID := c.GetString("request_id")

	var input agriculture.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		s.respondError(c, requestID, &stochastic.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	if !s.solves.TryAcquire(1) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":      "unavailable",
			"detail":     "concurrent solve limit reached",
			"request_id": requestID,
		})
		return
	}
	defer s.solves.Release(1)

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.SolveTimeout)
	defer cancel()

	started := time.Now()
	result, err := agriculture.Optimize(ctx, &input, agriculture.Options{Tolerance: s.cfg.SimplexTolerance})
	if err != nil {
		s.respondError(c, requestID, err)
		return
	}

	elapsed := time.Since(started)
	s.logger.Info("plan solved",
		zap.String("request_id", requestID),
		zap.Int("crops", len(input.Crops)),
		zap.Int("scenarios", len(input.Scenarios)),
		zap.Float64("objective", result.ObjectiveValue),
		zap.Duration("elapsed", elapsed),
	)

	s.publish(events.SubjectPlanSolved, events.PlanSolved{
		EventID:        uuid.New(),
		RequestID:      requestID,
		Module:         "agriculture",
		ObjectiveValue: result.ObjectiveValue,
		ExpectedProfit: result.Financial.ExpectedProfit,
		Crops:          len(input.Crops),
		Scenarios:      len(input.Scenarios),
		DurationMS:     elapsed.Milliseconds(),
		SolvedAt:       time.Now().UTC(),
	})

	c.JSON(http.StatusOK, optimizeResponse{RequestID: requestID, PlanResult: result})
}

func (s *Server) respondError(c *gin.Context, requestID string, err error) {
	status, kind := classifyError(err)

	s.logger.Warn("optimization rejected",
		zap.String("request_id", requestID),
		zap.String("kind", kind),
		zap.Error(err),
	)

	s.publish(events.SubjectPlanFailed, events.PlanFailed{
		EventID:   uuid.New(),
		RequestID: requestID,
		Module:    "agriculture",
		Kind:      kind,
		Detail:    err.Error(),
		FailedAt:  time.Now().UTC(),
	})

	c.JSON(status, gin.H{
		"error":      kind,
		"detail":     err.Error(),
		"request_id": requestID,
	})
}

// classifyError maps the optimizer's error taxonomy onto HTTP statuses:
// bad input is the caller's fault, an infeasible or unbounded program is a
// well-formed request whose model has no usable optimum, and everything
// else is on us.
func classifyError(err error) (int, string) {
	var vErr *stochastic.ValidationError
	var sErr *stochastic.SolverError

	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, stochastic.ErrInfeasible):
		return http.StatusUnprocessableEntity, "infeasible"
	case errors.Is(err, stochastic.ErrUnbounded):
		return http.StatusUnprocessableEntity, "unbounded"
	case errors.As(err, &sErr):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, "timeout"
		}
		return http.StatusInternalServerError, "solver_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// publish delivers an event through the circuit breaker. Events are
// best-effort; a failure is logged and the request proceeds.
func (s *Server) publish(subject string, event any) {
	err := s.breaker.Execute(func() error {
		return s.pub.Publish(context.Background(), subject, event)
	})
	switch {
	case errors.Is(err, circuit.ErrOpen) || errors.Is(err, circuit.ErrTooManyProbes):
		s.logger.Debug("event publishing suspended", zap.String("subject", subject))
	case err != nil:
		s.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
