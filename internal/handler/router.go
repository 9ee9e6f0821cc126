package handler

import (
	"bankcore/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	auth := AuthMiddleware(cfg.JWT.Secret)

	// API 路由组
	api := r.Group("/api")
	{
		// 客户相关
		customer := api.Group("/customer")
		{
			customer.POST("/register", h.Register)
			customer.POST("/login", h.CustomerLogin)

			protected := customer.Group("", auth, RequireCustomer())
			{
				protected.GET("/dashboard", h.GetDashboard)
				protected.GET("/balance", h.GetBalance)
				protected.GET("/statement", h.GetStatement)
				protected.GET("/approval-status", h.GetApprovalStatus)
				protected.POST("/send-money", h.SendMoney)
				protected.PUT("/profile", h.UpdateProfile)
			}
		}

		// 管理员相关
		admin := api.Group("/admin")
		{
			admin.POST("/login", h.AdminLogin)

			protected := admin.Group("", auth, RequireAdmin())
			{
				protected.GET("/dashboard", h.GetDashboardStats)
				protected.GET("/customers", h.ListCustomers)
				protected.GET("/pending", h.ListPendingCustomers)
				protected.GET("/transactions", h.ListAllTransactions)
				protected.GET("/recent-transactions", h.ListRecentTransactions)
				protected.POST("/approve/:id", h.ApproveCustomer)
				protected.POST("/deposit", h.Deposit)
				protected.POST("/withdraw", h.Withdraw)
				protected.DELETE("/customer/:id", h.DeleteCustomer)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
