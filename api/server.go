package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tvhook/auth"
	"tvhook/config"
	"tvhook/signal"
	"tvhook/trader"
)

// Server webhook接收 + 管理API
// /webhook 对TradingView开放，管理接口走JWT鉴权。
type Server struct {
	engine    *gin.Engine
	executor  *trader.Executor
	exchange  trader.Exchange
	db        *config.Database
	notifier  trader.Notifier
	jwtSecret string
	adminUser string
	adminPass string
}

// NewServer 创建API服务器
func NewServer(executor *trader.Executor, exchange trader.Exchange, db *config.Database, notifier trader.Notifier, jwtSecret, adminUser, adminPass string) *Server {
	s := &Server{
		engine:    gin.Default(),
		executor:  executor,
		exchange:  exchange,
		db:        db,
		notifier:  notifier,
		jwtSecret: jwtSecret,
		adminUser: adminUser,
		adminPass: adminPass,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(corsMiddleware())

	// TradingView webhook入口，不走鉴权
	s.engine.POST("/webhook", s.handleWebhook)

	api := s.engine.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/login", s.handleLogin)

		authed := api.Group("", auth.Middleware(s.jwtSecret))
		{
			authed.GET("/account", s.handleAccount)
			authed.GET("/positions", s.handlePositions)
			authed.POST("/positions/close", s.handleClosePosition)
			authed.GET("/config", s.handleGetConfig)
			authed.PUT("/config", s.handlePutConfig)
			authed.GET("/orders", s.handleOrders)
			authed.POST("/test-telegram", s.handleTestTelegram)
		}
	}
}

// Run 启动HTTP服务
func (s *Server) Run(addr string) error {
	log.Printf("🚀 API服务启动: %s", addr)
	return s.engine.Run(addr)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// handleWebhook 处理TradingView信号
// 载荷非法返回400；信号被策略过滤返回200/filtered；执行失败返回500/error
func (s *Server) handleWebhook(c *gin.Context) {
	var payload signal.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "无效的JSON载荷"})
		return
	}

	if payload.IsTrailing() {
		s.handleTrailingSignal(c, &payload)
		return
	}

	sig, err := signal.ParseStandard(&payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	if reason := s.policyFilter(sig.Direction, sig.Action); reason != "" {
		log.Printf("🚫 信号被策略过滤: %s %s %s (%s)", sig.Symbol, sig.Direction, sig.Action, reason)
		c.JSON(http.StatusOK, gin.H{"status": "filtered", "message": reason})
		return
	}

	result := s.executor.PlaceOrder(sig.Symbol, sig.Direction, sig.Action, 0)
	s.writeResult(c, result)
}

func (s *Server) handleTrailingSignal(c *gin.Context, payload *signal.WebhookPayload) {
	req, err := signal.ParseTrailing(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	direction := "long"
	if req.Side == "SELL" {
		direction = "short"
	}
	if reason := s.policyFilter(direction, "open"); reason != "" {
		log.Printf("🚫 追踪止损信号被策略过滤: %s %s (%s)", req.Symbol, req.Side, reason)
		c.JSON(http.StatusOK, gin.H{"status": "filtered", "message": reason})
		return
	}

	result := s.executor.PlaceTrailingStop(req)
	s.writeResult(c, result)
}

// policyFilter 全局方向过滤开关
func (s *Server) policyFilter(direction, action string) string {
	if action != "open" {
		return ""
	}
	if direction == "short" && s.db.GetBool("allow_long_only", false) {
		return "只做多模式已开启，过滤做空信号"
	}
	if direction == "long" && s.db.GetBool("allow_short_only", false) {
		return "只做空模式已开启，过滤做多信号"
	}
	return ""
}

func (s *Server) writeResult(c *gin.Context, result *trader.ExecutionResult) {
	switch {
	case result.Filtered:
		c.JSON(http.StatusOK, gin.H{"status": "filtered", "message": result.Message})
	case result.Success:
		c.JSON(http.StatusOK, gin.H{
			"status":           "success",
			"message":          result.Message,
			"order_id":         result.OrderID,
			"entry_price":      result.EntryPrice,
			"quantity":         result.Quantity,
			"tp_order_id":      result.TPOrderID,
			"sl_order_id":      result.SLOrderID,
			"trailing_stop_id": result.TrailingStopID,
			"fallback_used":    result.FallbackUsed,
			"degraded":         result.Degraded,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": result.Message})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format("2006-01-02 15:04:05"),
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求"})
		return
	}
	if req.Username != s.adminUser || req.Password != s.adminPass {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "用户名或密码错误"})
		return
	}
	token, err := auth.GenerateToken(s.jwtSecret, req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "令牌签发失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) handleAccount(c *gin.Context) {
	balance, err := s.exchange.GetBalance("USDT")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"asset":          balance.Asset,
		"total":          balance.Total,
		"available":      balance.Available,
		"unrealized_pnl": balance.UnrealizedPnL,
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.exchange.GetPositions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(positions))
	for i := range positions {
		p := &positions[i]
		out = append(out, gin.H{
			"symbol":         p.Symbol,
			"direction":      p.Direction(),
			"position_side":  p.PositionSide,
			"size":           p.Size(),
			"entry_price":    p.EntryPrice,
			"mark_price":     p.MarkPrice,
			"leverage":       p.Leverage,
			"unrealized_pnl": p.UnrealizedPnL,
		})
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) handleClosePosition(c *gin.Context) {
	var req struct {
		Symbol    string `json:"symbol" binding:"required"`
		Direction string `json:"direction" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol和direction必填"})
		return
	}
	result := s.executor.PlaceOrder(signal.NormalizeSymbol(req.Symbol), req.Direction, "close", 0)
	s.writeResult(c, result)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"config": s.db.Snapshot()})
}

func (s *Server) handlePutConfig(c *gin.Context) {
	var updates map[string]string
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的配置载荷"})
		return
	}
	for k, v := range updates {
		if err := s.db.SetSystemConfig(k, v); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	log.Printf("⚙️ 配置已更新 %d 项", len(updates))
	c.JSON(http.StatusOK, gin.H{"updated": len(updates)})
}

func (s *Server) handleOrders(c *gin.Context) {
	records, err := s.db.ListOrders(50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(records))
	for _, r := range records {
		out = append(out, gin.H{
			"order_id":         r.OrderID,
			"symbol":           r.Symbol,
			"side":             r.Side,
			"position_side":    r.PositionSide,
			"quantity":         r.Quantity,
			"price":            r.Price,
			"tp_price":         r.TPPrice,
			"sl_price":         r.SLPrice,
			"trailing_stop_id": r.TrailingStopID,
			"status":           r.Status,
			"created_at":       r.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (s *Server) handleTestTelegram(c *gin.Context) {
	if s.notifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telegram通知未配置"})
		return
	}
	s.notifier.Notify("🔔 测试消息: 通知通道正常")
	c.JSON(http.StatusOK, gin.H{"message": "测试消息已发送"})
}
