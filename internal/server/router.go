package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LaliChicken/active-role-bot/internal/commands"
	"github.com/LaliChicken/active-role-bot/internal/evaluation"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const adminSubjectContextKey = "activerole_admin_subject"

var (
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingCommandService = errors.New("command service dependency required")
	errMissingEvaluator      = errors.New("evaluator dependency required")
	errMissingAdminUser      = errors.New("admin user id required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

type CommandService interface {
	Setup(ctx context.Context, request commands.SetupRequest) (commands.Settings, error)
	Status(ctx context.Context, communityID string) (commands.Status, error)
	Leaderboard(ctx context.Context, communityID string, limit int) (commands.Leaderboard, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, communityID string, at time.Time) (evaluation.Report, error)
}

type Dependencies struct {
	TokenManager   TokenValidator
	Commands       CommandService
	Evaluator      Evaluator
	AdminUserID    string
	MetricsHandler http.Handler
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Commands == nil {
		return nil, errMissingCommandService
	}
	if deps.Evaluator == nil {
		return nil, errMissingEvaluator
	}
	if strings.TrimSpace(deps.AdminUserID) == "" {
		return nil, errMissingAdminUser
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		tokens:      deps.TokenManager,
		commands:    deps.Commands,
		evaluator:   deps.Evaluator,
		adminUserID: deps.AdminUserID,
		logger:      logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.GET("/communities/:id", handler.handleGetCommunity)
	protected.PUT("/communities/:id", handler.handlePutCommunity)
	protected.GET("/communities/:id/leaderboard", handler.handleLeaderboard)
	protected.POST("/communities/:id/evaluate", handler.handleEvaluate)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	tokens      TokenValidator
	commands    CommandService
	evaluator   Evaluator
	adminUserID string
	logger      *zap.Logger
}

type setupRequestPayload struct {
	RoleID    string `json:"roleId"`
	Threshold *int   `json:"threshold"`
	Timezone  string `json:"timezone"`
	WeekStart string `json:"weekStart"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleGetCommunity(c *gin.Context) {
	status, err := h.commands.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *httpHandler) handlePutCommunity(c *gin.Context) {
	var request setupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	settings, err := h.commands.Setup(c.Request.Context(), commands.SetupRequest{
		CommunityID: c.Param("id"),
		RoleID:      request.RoleID,
		Threshold:   request.Threshold,
		Timezone:    request.Timezone,
		WeekStart:   request.WeekStart,
	})
	if err != nil {
		h.respondError(c, "setup", err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *httpHandler) handleLeaderboard(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "leaderboard.invalid_limit"})
			return
		}
		limit = parsed
	}
	board, err := h.commands.Leaderboard(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.respondError(c, "leaderboard", err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (h *httpHandler) handleEvaluate(c *gin.Context) {
	communityID := strings.TrimSpace(c.Param("id"))
	if communityID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "evaluate.invalid_community"})
		return
	}
	report, err := h.evaluator.Evaluate(c.Request.Context(), communityID, time.Time{})
	if err != nil {
		h.respondError(c, "evaluate", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	var validationErr *commands.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Code()})
	case errors.Is(err, evaluation.ErrEvaluationInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "evaluate.in_progress"})
	default:
		h.logger.Error("admin request failed",
			zap.String("operation", operation),
			zap.String("community_id", c.Param("id")),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": operation + ".failed"})
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if subject != h.adminUserID {
		h.logger.Warn("token subject is not the admin user", zap.String("subject", subject))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Set(adminSubjectContextKey, subject)
	c.Next()
}
