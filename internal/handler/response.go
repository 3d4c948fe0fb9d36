package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civicfund/internal/model"
	"civicfund/pkg/apperr"
	"civicfund/pkg/logger"
	"civicfund/pkg/rbac"
)

// gin context 中由认证中间件写入的键
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// CallerFrom 从认证中间件写入的身份构造 Caller
func CallerFrom(c *gin.Context) (model.Caller, bool) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		return model.Caller{}, false
	}
	return model.Caller{
		UserID: userID,
		Admin:  rbac.IsAdmin(c.GetString(ContextRole)),
	}, true
}

func requireCaller(c *gin.Context) (model.Caller, bool) {
	caller, ok := CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
	}
	return caller, ok
}

// respondError 把 apperr 映射为 HTTP 状态码和统一的错误体
func respondError(c *gin.Context, log *zap.Logger, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Wrap(apperr.CodeInternal, "internal error", err)
	}

	status := e.HTTPStatus()
	l := logger.WithTrace(c.Request.Context(), log)
	if status >= http.StatusInternalServerError {
		l.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", string(e.Code)),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal error", "code": e.Code})
		return
	}

	l.Info("Request rejected",
		zap.String("path", c.FullPath()),
		zap.String("code", string(e.Code)),
		zap.String("reason", e.Message),
	)
	body := gin.H{"error": e.Message, "code": e.Code}
	if len(e.Metadata) > 0 {
		body["metadata"] = e.Metadata
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": apperr.CodeValidation})
}

// queryInt 缺省时返回 def
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+key+" parameter")
		return 0, false
	}
	return n, true
}
