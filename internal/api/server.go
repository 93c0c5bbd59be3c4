// Package api handles HTTP and WebSocket API endpoints
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thereceipt/order-printer/internal/command"
	"github.com/thereceipt/order-printer/internal/dispatch"
	"github.com/thereceipt/order-printer/internal/oplog"
	"github.com/thereceipt/order-printer/internal/orders"
	"github.com/thereceipt/order-printer/internal/printer"
	"github.com/thereceipt/order-printer/internal/renderer"
)

// Deps are the components the API serves
type Deps struct {
	Catalog    command.Catalog
	Activator  command.Activator
	Dispatcher command.Dispatcher
	Renderer   *renderer.Renderer
	Orders     orders.Collaborator
	Log        *oplog.Log
	AutoPrint  command.AutoPrint
	Executor   *command.Executor
}

// Server is the API server
type Server struct {
	router   *gin.Engine
	deps     Deps
	upgrader websocket.Upgrader
	logger   *slog.Logger

	// preview encodes the receipt PNG; replaced in tests
	preview func(w io.Writer, text, code string) error
}

// NewServer creates a new API server
func NewServer(deps Deps, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	// forwarded headers are never trusted; ClientIP is the peer address
	router.SetTrustedProxies(nil)
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	router.Use(CORSMiddleware())

	server := &Server{
		router: router,
		deps:   deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		logger:  logger,
		preview: renderer.PreviewPNG,
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	p := s.router.Group("/printer")
	p.GET("/detect", s.handleDetect)
	p.POST("/activate/:printerId", s.handleActivate)
	p.POST("/print", s.handlePrint)
	p.POST("/test/:printerId", s.handleTest)
	p.GET("/status", s.handleStatus)
	p.GET("/logs", s.handleLogs)
	p.GET("/preview/:orderId", s.handlePreview)

	a := s.router.Group("/autoprint")
	a.GET("/status", s.handleAutoPrintStatus)
	a.POST("/enable", s.handleAutoPrintEnable)
	a.POST("/disable", s.handleAutoPrintDisable)
	a.POST("/tick", s.handleAutoPrintTick)

	// Command endpoint
	s.router.POST("/command", CommandHandler(s.deps.Executor))

	// WebSocket
	s.router.GET("/ws", s.handleWebSocket)

	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleDetect returns all detected printers
func (s *Server) handleDetect(c *gin.Context) {
	printers := s.deps.Catalog.DetectAllPrinters(c.Request.Context())

	c.JSON(200, gin.H{
		"success":  true,
		"printers": printers,
		"message":  strconv.Itoa(len(printers)) + " printer(s) detected",
	})
}

// handleActivate re-enables a disabled system printer
func (s *Server) handleActivate(c *gin.Context) {
	res := s.deps.Activator.Activate(c.Request.Context(), c.Param("printerId"))

	status := 200
	switch {
	case res.Success:
	case res.ErrorCode == printer.CodeNotSystemPrinter:
		status = 400
	default:
		status = 500
	}
	c.JSON(status, res)
}

// PrintRequest is the body of POST /printer/print
type PrintRequest struct {
	PrinterID string          `json:"printerId"`
	OrderID   int64           `json:"orderId"`
	OrderData json.RawMessage `json:"orderData"`
	PrintText string          `json:"printText"`
	UserName  string          `json:"userName"`
}

// handlePrint dispatches a receipt. printText wins over orderData; when only
// orderData is sent the receipt is rendered here.
func (s *Server) handlePrint(c *gin.Context) {
	var req PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"success": false, "message": "invalid request body", "error": err.Error()})
		return
	}

	text := req.PrintText
	orderID := req.OrderID
	if len(req.OrderData) > 0 && string(req.OrderData) != "null" {
		var order orders.Order
		if err := json.Unmarshal(req.OrderData, &order); err != nil {
			c.JSON(400, gin.H{"success": false, "message": "invalid orderData", "error": err.Error()})
			return
		}
		if orderID == 0 {
			orderID = order.ID
		}
		if text == "" {
			text = s.deps.Renderer.Render(order)
		}
	}
	if text == "" {
		c.JSON(400, gin.H{"success": false, "message": "printText or orderData is required"})
		return
	}

	res := s.deps.Dispatcher.Dispatch(c.Request.Context(), dispatch.Job{
		OrderID:         orderID,
		Text:            text,
		TargetPrinterID: req.PrinterID,
		ClientIP:        c.ClientIP(),
		UserName:        req.UserName,
		OrderData:       req.OrderData,
	})
	c.JSON(resultStatus(res), res)
}

// handleTest prints the canned test page
func (s *Server) handleTest(c *gin.Context) {
	id := c.Param("printerId")
	name := id
	for _, p := range s.deps.Catalog.DetectAllPrinters(c.Request.Context()) {
		if p.ID == id {
			name = p.DisplayName
			break
		}
	}

	res := s.deps.Dispatcher.Dispatch(c.Request.Context(), dispatch.Job{
		Text:            s.deps.Renderer.RenderTest(name),
		TargetPrinterID: id,
		ClientIP:        c.ClientIP(),
	})
	c.JSON(resultStatus(res), res)
}

// handleStatus summarises the printer catalog
func (s *Server) handleStatus(c *gin.Context) {
	summary := printer.Summarize(s.deps.Catalog.DetectAllPrinters(c.Request.Context()))

	body := gin.H{
		"success":          true,
		"totalPrinters":    summary.TotalPrinters,
		"activePrinters":   summary.ActivePrinters,
		"defaultPrinter":   summary.DefaultPrinter,
		"inactivePrinters": summary.Inactive,
		"systemInfo":       SystemInfo(),
	}
	if s.deps.AutoPrint != nil {
		body["autoprint"] = s.deps.AutoPrint.Status()
	}
	c.JSON(200, body)
}

// handleLogs returns recent operation log entries
func (s *Server) handleLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	entries := s.deps.Log.Recent(limit)

	c.JSON(200, gin.H{
		"success":  true,
		"logs":     entries,
		"count":    len(entries),
		"capacity": s.deps.Log.Capacity(),
	})
}

// handlePreview renders an order receipt as PNG
func (s *Server) handlePreview(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"success": false, "message": "invalid order id"})
		return
	}
	if s.deps.Orders == nil {
		c.JSON(503, gin.H{"success": false, "message": "orders source not configured"})
		return
	}

	order, err := findOrder(c.Request.Context(), s.deps.Orders, id)
	if err != nil {
		c.JSON(404, gin.H{"success": false, "message": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := s.preview(&buf, s.deps.Renderer.Render(order), strconv.FormatInt(id, 10)); err != nil {
		s.logger.Error("failed to render preview", "order_id", id, "err", err)
		c.JSON(500, gin.H{"success": false, "message": "failed to render preview", "error": err.Error()})
		return
	}
	c.Data(200, "image/png", buf.Bytes())
}

func (s *Server) handleAutoPrintStatus(c *gin.Context) {
	if !s.autoPrintConfigured(c) {
		return
	}
	c.JSON(200, gin.H{"success": true, "autoprint": s.deps.AutoPrint.Status()})
}

func (s *Server) handleAutoPrintEnable(c *gin.Context) {
	if !s.autoPrintConfigured(c) {
		return
	}
	s.deps.AutoPrint.Enable()
	c.JSON(200, gin.H{"success": true, "autoprint": s.deps.AutoPrint.Status()})
}

func (s *Server) handleAutoPrintDisable(c *gin.Context) {
	if !s.autoPrintConfigured(c) {
		return
	}
	s.deps.AutoPrint.Disable()
	c.JSON(200, gin.H{"success": true, "autoprint": s.deps.AutoPrint.Status()})
}

func (s *Server) handleAutoPrintTick(c *gin.Context) {
	if !s.autoPrintConfigured(c) {
		return
	}
	report := s.deps.AutoPrint.Tick(c.Request.Context())
	c.JSON(200, gin.H{"success": report.Error == "", "report": report})
}

func (s *Server) autoPrintConfigured(c *gin.Context) bool {
	if s.deps.AutoPrint == nil {
		c.JSON(503, gin.H{"success": false, "message": "auto-print not configured"})
		return false
	}
	return true
}

// Run starts the API server
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func findOrder(ctx context.Context, src orders.Collaborator, id int64) (orders.Order, error) {
	all, err := src.GetAllOrders(ctx)
	if err != nil {
		return orders.Order{}, err
	}
	for _, o := range all {
		if o.ID == id {
			return o, nil
		}
	}
	return orders.Order{}, orders.ErrOrderNotFound
}

// resultStatus maps a dispatch result to an HTTP status.
func resultStatus(res dispatch.Result) int {
	switch {
	case res.Success:
		return 200
	case res.Error == dispatch.CodeIPNotAuthorized:
		return 403
	default:
		return 500
	}
}

// SystemInfo describes the host the printers are attached to.
func SystemInfo() gin.H {
	host, _ := os.Hostname()
	return gin.H{
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"hostname": host,
		"time":     time.Now().Format(time.RFC3339),
	}
}

// CommandHandler serves POST /command for an executor.
func CommandHandler(executor *command.Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if executor == nil {
			c.JSON(503, gin.H{"success": false, "error": "commands not available"})
			return
		}

		var req struct {
			Command string `json:"command" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "command is required"})
			return
		}

		result := executor.Execute(c.Request.Context(), req.Command)

		if result.Success {
			response := gin.H{
				"success": true,
			}
			if result.Message != "" {
				response["message"] = result.Message
			}
			for k, v := range result.Data {
				response[k] = v
			}
			c.JSON(200, response)
		} else {
			c.JSON(400, gin.H{
				"success": false,
				"error":   result.Error,
			})
		}
	}
}

// RequestLogger logs each request through slog.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// CORSMiddleware allows the dashboard to call the API from the browser.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
