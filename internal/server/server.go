// Package server provides the HTTP API for buyerd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/buyerd/internal/approval"
	"github.com/fyrsmithlabs/buyerd/internal/assist"
	"github.com/fyrsmithlabs/buyerd/internal/cart"
	"github.com/fyrsmithlabs/buyerd/internal/logging"
	"github.com/fyrsmithlabs/buyerd/internal/session"
	"github.com/fyrsmithlabs/buyerd/internal/telemetry"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes the assistant over HTTP.
type Server struct {
	echo      *echo.Echo
	assistant *assist.Assistant
	metrics   *telemetry.Metrics
	logger    *logging.Logger
	config    Config
}

// New creates the HTTP server. metrics may be nil; the metrics route is
// then omitted.
func New(assistant *assist.Assistant, metrics *telemetry.Metrics, logger *logging.Logger, cfg Config) (*Server, error) {
	if assistant == nil {
		return nil, errors.New("assistant is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{echo: e, assistant: assistant, metrics: metrics, logger: logger, config: cfg}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/v1")
	v1.POST("/users/:id/messages", s.handleMessage)
	v1.PUT("/users/:id/preferences", s.handlePreferences)
	v1.GET("/users/:id/cart", s.handleShowCart)
	v1.POST("/users/:id/cart", s.handleCartCommand)
	v1.DELETE("/users/:id/cart/:productID", s.handleRemoveFromCart)
	v1.POST("/users/:id/orders", s.handleCreateOrder)
	v1.POST("/approvals/:id/decision", s.handleDecision)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// MessageRequest is the request body for POST /v1/users/:id/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}
	reply := s.assistant.HandleUtterance(c.Request().Context(), c.Param("id"), req.Text)
	return c.JSON(http.StatusOK, reply)
}

// PreferencesRequest is the request body for PUT /v1/users/:id/preferences.
type PreferencesRequest struct {
	Preferences []string `json:"preferences"`
	Role        string   `json:"role,omitempty"`
}

func (s *Server) handlePreferences(c echo.Context) error {
	var req PreferencesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	reply, err := s.assistant.SetPreferences(c.Request().Context(), c.Param("id"), req.Preferences, req.Role)
	if errors.Is(err, session.ErrInvalidPreference) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store preferences")
	}
	return c.JSON(http.StatusOK, reply)
}

// CartCommandRequest is the request body for POST /v1/users/:id/cart.
type CartCommandRequest struct {
	Action    string `json:"action"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity,omitempty"`
}

func (s *Server) handleCartCommand(c echo.Context) error {
	var req CartCommandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var cmd assist.Command
	switch req.Action {
	case "add":
		cmd = assist.CmdAddToCart
	case "check":
		cmd = assist.CmdCheckCompliance
	case "check_all":
		cmd = assist.CmdCheckAllCompliance
	case "seek_approval":
		cmd = assist.CmdSeekApproval
	case "clear_session":
		cmd = assist.CmdClearSession
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
	}

	reply, err := s.assistant.Execute(c.Request().Context(), c.Param("id"), assist.CommandRequest{
		Command:   cmd,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return s.commandError(err)
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) handleShowCart(c echo.Context) error {
	reply, err := s.assistant.Execute(c.Request().Context(), c.Param("id"), assist.CommandRequest{Command: assist.CmdShowCart})
	if err != nil {
		return s.commandError(err)
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) handleRemoveFromCart(c echo.Context) error {
	reply, err := s.assistant.Execute(c.Request().Context(), c.Param("id"), assist.CommandRequest{
		Command:   assist.CmdRemoveFromCart,
		ProductID: c.Param("productID"),
	})
	if err != nil {
		return s.commandError(err)
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) handleCreateOrder(c echo.Context) error {
	reply, err := s.assistant.Execute(c.Request().Context(), c.Param("id"), assist.CommandRequest{Command: assist.CmdCreateOrder})
	if err != nil {
		return s.commandError(err)
	}
	return c.JSON(http.StatusOK, reply)
}

// DecisionRequest is the request body for POST /v1/approvals/:id/decision.
type DecisionRequest struct {
	Accept   *bool  `json:"accept"`
	Approver string `json:"approver,omitempty"`
}

func (s *Server) handleDecision(c echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Accept == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "accept field is required")
	}
	reply, err := s.assistant.Execute(c.Request().Context(), req.Approver, assist.CommandRequest{
		Command:   assist.CmdDecide,
		RequestID: c.Param("id"),
		Accept:    req.Accept,
	})
	if err != nil {
		return s.commandError(err)
	}
	return c.JSON(http.StatusOK, reply)
}

// commandError maps domain sentinels to HTTP status codes.
func (s *Server) commandError(err error) error {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, assist.ErrUnknownCommand):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrStaleReference),
		errors.Is(err, approval.ErrUnknownRequest):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, approval.ErrAlreadyDecided),
		errors.Is(err, cart.ErrNotAwaiting):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
