package handler

import (
	"fmt"
	"log"
	"strings"
	"time"

	"bankcore/internal/model"
	"bankcore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxAccountID = "accountID"
	ctxRole      = "role"
)

// AuthMiddleware JWT 认证中间件
// 从 Authorization: Bearer <token> 解出 (accountID, role) 放进上下文，
// 后续 handler 和记账核心直接信任这对身份，不再查验凭证
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "缺少 Authorization 请求头")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.Unauthorized(c, "Authorization 格式错误")
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			// 只接受 HMAC 签名，防止算法替换攻击
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("不支持的签名算法: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			response.Unauthorized(c, "令牌无效或已过期")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.Unauthorized(c, "令牌内容无效")
			c.Abort()
			return
		}

		// JSON 数字解出来是 float64
		idFloat, ok := claims["id"].(float64)
		if !ok {
			response.Unauthorized(c, "令牌内容无效")
			c.Abort()
			return
		}
		role, ok := claims["role"].(string)
		if !ok {
			response.Unauthorized(c, "令牌内容无效")
			c.Abort()
			return
		}

		c.Set(ctxAccountID, int64(idFloat))
		c.Set(ctxRole, role)
		c.Next()
	}
}

// RequireRole 角色守卫，admin 接口和 customer 接口互不相通
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != role {
			response.Forbidden(c, "没有权限执行此操作")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin / RequireCustomer 便捷守卫
func RequireAdmin() gin.HandlerFunc    { return RequireRole(model.RoleAdmin) }
func RequireCustomer() gin.HandlerFunc { return RequireRole(model.RoleCustomer) }

// callerID 取出认证中间件写入的账户ID
func callerID(c *gin.Context) int64 {
	return c.GetInt64(ctxAccountID)
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// 处理请求
		c.Next()

		// 记录日志
		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
