// Package server exposes the reconciliation engine over HTTP: session
// creation, status, manual retry, teardown, and per-session retrospective
// reports. Sessions run one goroutine each and share nothing with one
// another; the registry only maps IDs to live sessions.
package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/yourorg/payment-reconciler/internal/config"
	"github.com/yourorg/payment-reconciler/internal/fulfillment"
	"github.com/yourorg/payment-reconciler/internal/gateway"
	"github.com/yourorg/payment-reconciler/internal/identity"
	"github.com/yourorg/payment-reconciler/internal/monitor"
	"github.com/yourorg/payment-reconciler/internal/oracle"
	"github.com/yourorg/payment-reconciler/internal/oracle/circuitbreaker"
	"github.com/yourorg/payment-reconciler/internal/policy"
	"github.com/yourorg/payment-reconciler/internal/poller"
	"github.com/yourorg/payment-reconciler/internal/reporting"
	"github.com/yourorg/payment-reconciler/internal/session"
)

// submitSchema is the contract for POST /sessions. Requests failing it never
// reach the gateway.
const submitSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["order_id", "client_secret", "identity", "instrument"],
  "properties": {
    "order_id": {"type": "string", "minLength": 1},
    "client_secret": {"type": "string", "minLength": 1},
    "identity": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"type": "string", "enum": ["bearer", "guest"]},
        "credential": {"type": "string"},
        "token": {"type": "string"},
        "locale": {"type": "string"},
        "timezone": {"type": "string"}
      }
    },
    "instrument": {
      "type": "object",
      "required": ["card_number", "exp_month", "exp_year", "cvc"],
      "properties": {
        "card_number": {"type": "string", "minLength": 1},
        "exp_month": {"type": "string"},
        "exp_year": {"type": "string"},
        "cvc": {"type": "string"}
      }
    }
  }
}`

type identityPayload struct {
	Kind       string `json:"kind"`
	Credential string `json:"credential"`
	Token      string `json:"token"`
	Locale     string `json:"locale"`
	Timezone   string `json:"timezone"`
}

type instrumentPayload struct {
	CardNumber string `json:"card_number"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	CVC        string `json:"cvc"`
}

type submitRequest struct {
	OrderID      string            `json:"order_id"`
	ClientSecret string            `json:"client_secret"`
	Identity     identityPayload   `json:"identity"`
	Instrument   instrumentPayload `json:"instrument"`
}

// Server wires sessions from configuration and tracks live ones.
type Server struct {
	cfg      config.Config
	logger   *zap.Logger
	gateway  gateway.ConfirmationClient
	backend  *resty.Client
	breaker  *circuitbreaker.Breaker
	gate     *policy.RetryGate
	contract *monitor.ContractMonitor
	reporter *reporting.RetrospectiveReporter

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// New builds a Server from cfg.
func New(cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	contract, err := monitor.NewContractMonitorFromBytes([]byte(submitSchema))
	if err != nil {
		return nil, err
	}
	gate, err := policy.NewRetryGate(cfg.RetryRule)
	if err != nil {
		return nil, err
	}
	gatewayRest := resty.New().SetTimeout(cfg.HTTPTimeout())
	backendRest := resty.New().SetTimeout(cfg.HTTPTimeout()).SetBaseURL(cfg.BackendBaseURL)
	return &Server{
		cfg:      cfg,
		logger:   logger,
		gateway:  gateway.NewClient(gatewayRest, cfg.GatewayBaseURL, logger.Named("gateway")),
		backend:  backendRest,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			OpenTimeout:      cfg.Breaker.OpenTimeout(),
			HalfOpenSuccess:  cfg.Breaker.HalfOpenSuccess,
		}),
		gate:     gate,
		contract: contract,
		reporter: reporting.NewRetrospectiveReporter(),
		sessions: make(map[string]*session.Session),
	}, nil
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(otelgin.Middleware("payment-reconciler"), gin.Recovery())

	r.POST("/sessions", s.createSession)
	r.GET("/sessions/:id", s.getSession)
	r.POST("/sessions/:id/retry", s.retrySession)
	r.DELETE("/sessions/:id", s.teardownSession)
	r.GET("/sessions/:id/report", s.sessionReport)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// buildDeps wires the identity-dependent collaborators: which oracle and
// resolver variant a session gets is decided once, here, never inside the
// state machine.
func (s *Server) buildDeps(orderID string, idp identityPayload) session.Deps {
	deps := session.Deps{
		Gateway: s.gateway,
		Gate:    s.gate,
		Logger:  s.logger.Named("session"),
	}
	if idp.Kind == "guest" {
		ident := identity.NewGuest(idp.Token, orderID)
		deps.Oracle = oracle.NewGuest(s.backend, ident, s.breaker, s.logger.Named("oracle"))
		deps.Resolver = fulfillment.NewGuest(s.backend, ident, s.logger.Named("fulfillment"))
		deps.Trigger = fulfillment.SaveTrigger{Dir: s.cfg.Fulfillment.DownloadDir}
	} else {
		ident := identity.NewBearer(idp.Credential, idp.Locale, idp.Timezone)
		auth := oracle.NewAuthenticated(s.backend, ident, s.breaker, s.logger.Named("oracle"))
		deps.Oracle = auth
		deps.Orders = auth
		deps.Resolver = fulfillment.NewAuthenticated(auth, s.cfg.Fulfillment, s.logger.Named("fulfillment"))
		deps.Trigger = fulfillment.LibraryTrigger{BasePath: s.cfg.Fulfillment.LibraryPath}
	}
	deps.Poller = poller.New(deps.Oracle, s.cfg.Schedule, s.logger.Named("poller"))
	return deps
}

func (s *Server) createSession(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}
	valid, problems, err := s.contract.Validate(body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request validation failed: " + err.Error()})
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(problems)})
		return
	}
	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format: " + err.Error()})
		return
	}

	sess := session.New(req.OrderID, s.buildDeps(req.OrderID, req.Identity))
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	instrument := gateway.Instrument{
		CardNumber: req.Instrument.CardNumber,
		ExpMonth:   req.Instrument.ExpMonth,
		ExpYear:    req.Instrument.ExpYear,
		CVC:        req.Instrument.CVC,
	}
	go func() {
		if err := sess.Submit(req.ClientSecret, instrument); err != nil {
			s.logger.Warn("session submission rejected",
				zap.String("session_id", sess.ID()), zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, sess.Snapshot())
}

func (s *Server) lookup(c *gin.Context) (*session.Session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) retrySession(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	status, err := sess.Retry(c.Request.Context())
	switch {
	case err == session.ErrRetryNotAllowed:
		c.JSON(http.StatusConflict, gin.H{"error": "retry is not available for this session", "session": status})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "session": status})
	default:
		c.JSON(http.StatusOK, status)
	}
}

func (s *Server) teardownSession(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	sess.Teardown()
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (s *Server) sessionReport(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.reporter.Generate(sess.History()))
}
