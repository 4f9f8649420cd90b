package api

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/payment-fabric/internal/fraud"
	"github.com/rawblock/payment-fabric/internal/orchestrator"
	"github.com/rawblock/payment-fabric/internal/pricing"
	"github.com/rawblock/payment-fabric/internal/router"
	"github.com/rawblock/payment-fabric/internal/swarm"
	"github.com/rawblock/payment-fabric/internal/yield"
)

// APIHandler exposes the orchestrator, yield allocator, and swarm
// coordinator over HTTP, per spec.md §6's external-interface request
// shapes (AnalyzeRequest, OptimizeRequest, RouteRequest, SubmitTaskRequest,
// ConsensusRequest).
type APIHandler struct {
	orch        *orchestrator.Orchestrator
	allocator   *yield.Allocator
	coordinator *swarm.Coordinator
	router      *router.Router
	wsHub       *Hub
}

// SetupRouter wires the gin engine the way the teacher's engine did:
// CORS, a public group, and a bearer-token + rate-limited protected group.
func SetupRouter(orch *orchestrator.Orchestrator, allocator *yield.Allocator, coordinator *swarm.Coordinator, r *router.Router, wsHub *Hub) *gin.Engine {
	engine := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		orch:        orch,
		allocator:   allocator,
		coordinator: coordinator,
		router:      r,
		wsHub:       wsHub,
	}

	pub := engine.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
	}

	auth := engine.Group("/api/v1")
	auth.Use(AuthMiddleware())
	auth.Use(NewRateLimiter(60, 10).Middleware())
	{
		auth.POST("/analyze", handler.handleAnalyze)
		auth.POST("/analyze/replay", handler.handleReplayBatch)
		auth.POST("/payments", handler.handleProcessPayment)
		auth.POST("/route", handler.handleRoute)
		auth.POST("/optimize", handler.handleOptimize)
		auth.POST("/tasks", handler.handleSubmitTask)
		auth.GET("/tasks/:id", handler.handleGetTask)
		auth.POST("/consensus", handler.handleConsensus)
		auth.POST("/blocklist/:address", handler.handleBlockAddress)
		auth.DELETE("/blocklist/:address", handler.handleUnblockAddress)
	}

	return engine
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	completed, failed := h.coordinator.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":          "operational",
		"service":         "payment-fabric",
		"agents":          len(h.coordinator.Agents()),
		"tasksCompleted":  completed,
		"tasksFailed":     failed,
	})
}

// handleAnalyze implements spec.md §6's AnalyzeRequest -> AnalyzeResponse.
func (h *APIHandler) handleAnalyze(c *gin.Context) {
	var tx fraud.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid-input", "details": err.Error()})
		return
	}
	analysis := h.orch.Analyze(tx)
	c.JSON(http.StatusOK, analysis)
}

// handleReplayBatch feeds a historical transaction batch through the fraud
// analyzer sequentially, preserving per-user ordering, per spec.md §5.
func (h *APIHandler) handleReplayBatch(c *gin.Context) {
	var txs []fraud.Transaction
	if err := c.ShouldBindJSON(&txs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid-input", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.orch.ReplayBatch(txs))
}

// handleProcessPayment runs a transaction through the full orchestrator
// pipeline: fraud analysis, pricing, (conditional) consensus, routing, and
// execute-task submission.
func (h *APIHandler) handleProcessPayment(c *gin.Context) {
	var req orchestrator.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid-input", "details": err.Error()})
		return
	}
	resp := h.orch.ProcessPayment(req)
	status := http.StatusOK
	if !resp.Approved {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, resp)
}

// handleRoute implements spec.md §6's RouteRequest -> RouteResponse.
func (h *APIHandler) handleRoute(c *gin.Context) {
	var req struct {
		From      string          `json:"from"`
		To        string          `json:"to"`
		Amount    float64         `json:"amount"`
		Objective router.Objective `json:"objective"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid-input", "details": err.Error()})
		return
	}
	result, err := h.router.Route(req.From, req.To, req.Amount, req.Objective)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleOptimize implements spec.md §6's OptimizeRequest -> OptimizeResponse.
func (h *APIHandler) handleOptimize(c *gin.Context) {
	var req struct {
		Balance float64 `json:"balance"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid-input", "details": err.Error()})
		return
	}
	report, err := h.allocator.Optimize(c.Request.Context(), req.Balance)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleSubmitTask implements spec.md §6's SubmitTaskRequest -> task_id.
func (h *APIHandler) handleSubmitTask(c *gin.Context) {
	var req struct {
		Kind     swarm.TaskKind `json:"kind"`
		Payload  any            `json:"payload"`
		Priority int            `json:"priority"`
		Deadline *time.Time     `json:"deadline"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid-input", "details": err.Error()})
		return
	}
	id, err := h.coordinator.Submit(req.Kind, req.Payload, req.Priority, req.Deadline)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id})
}

func (h *APIHandler) handleGetTask(c *gin.Context) {
	task, ok := h.coordinator.Task(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown task"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// handleConsensus implements spec.md §6's ConsensusRequest -> ConsensusResult.
func (h *APIHandler) handleConsensus(c *gin.Context) {
	var req swarm.ConsensusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid-input", "details": err.Error()})
		return
	}
	result := h.coordinator.RequestConsensus(req)
	c.JSON(http.StatusOK, result)
}

// handleBlockAddress / handleUnblockAddress implement spec.md §5's
// Blocklist CRUD, adapted from the teacher's address-watchlist endpoints.
func (h *APIHandler) handleBlockAddress(c *gin.Context) {
	h.orch.Blocklist().Block(c.Param("address"))
	c.JSON(http.StatusOK, gin.H{"blocked": c.Param("address")})
}

func (h *APIHandler) handleUnblockAddress(c *gin.Context) {
	h.orch.Blocklist().Unblock(c.Param("address"))
	c.JSON(http.StatusOK, gin.H{"unblocked": c.Param("address")})
}
