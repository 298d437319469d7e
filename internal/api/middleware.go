package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/timerd/scheduler/internal/biz/task"
	"github.com/timerd/scheduler/internal/schedule"
	"github.com/timerd/scheduler/internal/service"
	"go.uber.org/zap"
)

// ErrorResponse 统一错误响应格式
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorHandlingMiddleware 统一错误处理中间件
func ErrorHandlingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method))

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Code:    "INTERNAL_ERROR",
					Message: "An internal error occurred",
				})
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			logger.Error("request error",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method))

			switch {
			case errors.Is(err, task.ErrTaskNotFound):
				c.JSON(http.StatusNotFound, ErrorResponse{
					Code:    "NOT_FOUND",
					Message: "Task not found",
				})
			case errors.Is(err, schedule.ErrInvalidSchedule),
				errors.Is(err, service.ErrInvalidTask):
				c.JSON(http.StatusBadRequest, ErrorResponse{
					Code:    "INVALID_TASK",
					Message: "Task specification is invalid",
					Details: err.Error(),
				})
			case errors.Is(err, service.ErrNotCancellable):
				c.JSON(http.StatusConflict, ErrorResponse{
					Code:    "NOT_CANCELLABLE",
					Message: "Task is already in a terminal status",
					Details: err.Error(),
				})
			default:
				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Code:    "INTERNAL_ERROR",
					Message: "An error occurred while processing your request",
					Details: err.Error(),
				})
			}
		}
	}
}

func Cors() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}
