package handler

import (
	"learncoins-ledger/internal/adapter/http/middleware"
	"learncoins-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Ledger         ports.LedgerService
	Wallets        ports.WalletService
	Market         ports.MarketService
	TokenSvc       ports.TokenService
	RateLimitStore ports.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/swagger", SwaggerUI)
	r.GET("/swagger/spec", SwaggerSpec)

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))
	// Audit runs after JWTAuth so entries carry the caller.
	if deps.AuditSvc != nil {
		v1.Use(middleware.AuditLog(deps.AuditSvc))
	}

	walletHandler := NewWalletHandler(deps.Ledger, deps.Wallets)
	wallet := v1.Group("/wallet")
	{
		wallet.GET("/me", rl("read"), walletHandler.GetMe)
		wallet.GET("/balance", rl("read"), walletHandler.GetBalance)
		wallet.GET("/history", rl("read"), walletHandler.History)
		wallet.POST("/setup", rl("pin"), walletHandler.Setup)
		wallet.PUT("/pin", rl("pin"), walletHandler.ChangePin)
		wallet.POST("/verify-pin", rl("pin"), walletHandler.VerifyPin)
		wallet.POST("/transfer", rl("ledger"), walletHandler.Transfer)
		wallet.POST("/checkout", rl("ledger"), walletHandler.Checkout)
		wallet.POST("/daily-reward", rl("daily_reward"), walletHandler.ClaimDailyReward)
	}

	marketHandler := NewMarketHandler(deps.Market)
	market := v1.Group("/market")
	{
		market.GET("/products", rl("read"), marketHandler.ListProducts)
		market.GET("/products/search", rl("read"), marketHandler.SearchProducts)
		market.GET("/products/:id", rl("read"), marketHandler.GetProduct)
		market.POST("/products", rl("market_write"), marketHandler.CreateProduct)
		market.GET("/cart", rl("read"), marketHandler.GetCart)
		market.POST("/cart", rl("market_write"), marketHandler.AddToCart)
		market.DELETE("/cart/:id", rl("market_write"), marketHandler.RemoveFromCart)
	}

	v1.GET("/orders", rl("read"), marketHandler.ListOrders)

	return r
}
