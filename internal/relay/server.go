// Package relay serves the print relay that runs on the operator's machine
// next to the printers. Only approved client IPs may submit jobs.
package relay

import (
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/thereceipt/order-printer/internal/api"
	"github.com/thereceipt/order-printer/internal/command"
	"github.com/thereceipt/order-printer/internal/dispatch"
	"github.com/thereceipt/order-printer/internal/gate"
	"github.com/thereceipt/order-printer/internal/oplog"
	"github.com/thereceipt/order-printer/internal/printer"
)

// Deps are the components the relay serves
type Deps struct {
	Gate       *gate.Store
	Dispatcher command.Dispatcher
	Catalog    command.Catalog
	Log        *oplog.Log
	Executor   *command.Executor
	// PublicURL is the base advertised in authUrl. When empty it is derived
	// from the request Host header.
	PublicURL string
}

// Server is the relay HTTP server
type Server struct {
	router *gin.Engine
	deps   Deps
	logger *slog.Logger
}

// NewServer creates the relay server
func NewServer(deps Deps, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.SetTrustedProxies(nil)
	router.Use(gin.Recovery())
	router.Use(api.RequestLogger(logger))
	router.Use(api.CORSMiddleware())
	router.SetHTMLTemplate(template.Must(template.New("auth").Funcs(pageFuncs).Parse(authPage)))

	s := &Server{router: router, deps: deps, logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.POST("/print", s.handlePrint)
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	m := s.router.Group("/", s.localOnly)
	m.GET("/auth", s.handleAuthPage)
	m.GET("/ips", s.handleList)
	m.POST("/approve-ip", s.handleApprove)
	m.POST("/reject-ip", s.handleReject)
	m.POST("/remove-ip", s.handleRemove)
	m.POST("/command", api.CommandHandler(s.deps.Executor))
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the relay server
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// ClientIP returns the address a request is attributed to. Forwarded
// headers and the body clientIP are honoured only from trusted peers.
func (s *Server) ClientIP(c *gin.Context, bodyIP string) string {
	peer := gate.Normalize(c.RemoteIP())
	if !s.deps.Gate.IsTrusted(peer) {
		return peer
	}

	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return gate.Normalize(first)
		}
	}
	if real := strings.TrimSpace(c.GetHeader("X-Real-IP")); real != "" {
		return gate.Normalize(real)
	}
	if bodyIP != "" {
		return gate.Normalize(bodyIP)
	}
	return peer
}

func (s *Server) authURL(c *gin.Context) string {
	base := strings.TrimRight(s.deps.PublicURL, "/")
	if base == "" {
		base = "http://" + c.Request.Host
	}
	return base + "/auth"
}

// handlePrint authorizes the caller and prints locally.
func (s *Server) handlePrint(c *gin.Context) {
	var req dispatch.RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"success": false, "message": "invalid request body", "error": err.Error()})
		return
	}

	ip := s.ClientIP(c, req.ClientIP)
	if !s.deps.Gate.IsAuthorized(ip) {
		label := req.UserName
		if label == "" {
			label = c.Request.UserAgent()
		}
		entry := s.deps.Gate.RecordUnknown(ip, label)
		authURL := s.authURL(c)

		s.deps.Log.Warn("print rejected, IP not authorized", map[string]any{
			"ip":      ip,
			"status":  entry.Status,
			"orderId": req.OrderID,
		})
		s.logger.Warn("print rejected, IP not authorized", "ip", ip, "status", entry.Status)

		c.JSON(403, gin.H{
			"success": false,
			"message": "IP " + ip + " is not authorized to print. Ask the operator to approve it.",
			"error":   dispatch.CodeIPNotAuthorized,
			"authUrl": authURL,
		})
		return
	}

	if strings.TrimSpace(req.PrintText) == "" {
		c.JSON(400, gin.H{"success": false, "message": "printText is required"})
		return
	}

	res := s.deps.Dispatcher.Dispatch(c.Request.Context(), dispatch.Job{
		OrderID:   req.OrderID,
		Text:      req.PrintText,
		ClientIP:  ip,
		UserName:  req.UserName,
		OrderData: req.OrderData,
	})

	status := 200
	if !res.Success {
		status = 500
	}
	c.JSON(status, res)
}

// handleStatus reports relay health, IP counts and printers.
func (s *Server) handleStatus(c *gin.Context) {
	counts := s.deps.Gate.Counts()
	body := gin.H{
		"success":    true,
		"message":    "relay online",
		"ips":        counts,
		"authUrl":    s.authURL(c),
		"systemInfo": api.SystemInfo(),
	}
	if s.deps.Catalog != nil {
		summary := printer.Summarize(s.deps.Catalog.DetectAllPrinters(c.Request.Context()))
		body["totalPrinters"] = summary.TotalPrinters
		body["activePrinters"] = summary.ActivePrinters
		body["defaultPrinter"] = summary.DefaultPrinter
	}
	c.JSON(200, body)
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(200, gin.H{"success": true, "ips": s.deps.Gate.List()})
}

type ipRequest struct {
	IP string `json:"ip" form:"ip"`
}

func (s *Server) handleApprove(c *gin.Context) {
	s.mutate(c, "approved", func(ip string) (gate.Entry, error) { return s.deps.Gate.Approve(ip) })
}

func (s *Server) handleReject(c *gin.Context) {
	s.mutate(c, "rejected", func(ip string) (gate.Entry, error) { return s.deps.Gate.Reject(ip) })
}

func (s *Server) handleRemove(c *gin.Context) {
	s.mutate(c, "removed", func(ip string) (gate.Entry, error) {
		entry, _ := s.deps.Gate.Get(ip)
		return entry, s.deps.Gate.Remove(ip)
	})
}

// mutate applies an operator action. Form posts from the auth page are
// redirected back to it.
func (s *Server) mutate(c *gin.Context, verb string, apply func(ip string) (gate.Entry, error)) {
	var req ipRequest
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.IP) == "" {
		c.JSON(400, gin.H{"success": false, "message": "ip is required"})
		return
	}

	entry, err := apply(req.IP)
	if errors.Is(err, gate.ErrIPNotFound) {
		c.JSON(404, gin.H{"success": false, "message": "IP not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"success": false, "message": err.Error()})
		return
	}

	ip := gate.Normalize(req.IP)
	s.deps.Log.Info("IP "+verb, map[string]any{"ip": ip})
	s.logger.Info("IP "+verb, "ip", ip)

	if c.ContentType() == "application/x-www-form-urlencoded" {
		c.Redirect(303, "/auth")
		return
	}
	c.JSON(200, gin.H{"success": true, "message": "IP " + ip + " " + verb, "entry": entry})
}

func (s *Server) handleAuthPage(c *gin.Context) {
	counts := make(map[string]int)
	for status, n := range s.deps.Gate.Counts() {
		counts[string(status)] = n
	}
	c.HTML(200, "auth", gin.H{
		"Entries": s.deps.Gate.List(),
		"Counts":  counts,
	})
}

// localOnly limits management routes to loopback and trusted peers.
func (s *Server) localOnly(c *gin.Context) {
	peer := c.RemoteIP()
	if ip := net.ParseIP(peer); (ip != nil && ip.IsLoopback()) || s.deps.Gate.IsTrusted(peer) {
		c.Next()
		return
	}
	c.AbortWithStatusJSON(403, gin.H{"success": false, "message": "management is only available on the relay machine"})
}
