package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"library_backend/pkg/catalog"
	"library_backend/pkg/config"
	"library_backend/pkg/database"
	"library_backend/pkg/lending"
	"library_backend/pkg/members"
	"library_backend/pkg/seed"
)

var (
	db     *gorm.DB
	books  *catalog.Store
	people *members.Store
	ledger *lending.Ledger
	logger = zap.NewNop()
)

func main() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting library service...")
	cfg := config.Load()

	db, err = database.InitLibraryDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	if err := database.ApplyLendingRules(db, cfg.Lending); err != nil {
		logger.Fatal("failed to apply lending rules", zap.Error(err))
	}
	wire(db, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SeedData {
		if err := seed.Seed(ctx, db, people, books, logger); err != nil {
			logger.Error("failed to seed demo data", zap.Error(err))
		}
	}

	sweeper := lending.NewSweeper(ledger.Sweep, cfg.Sweeper, logger)
	go sweeper.Run(ctx)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("library service listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("library service stopped")
}

// wire builds the stores and the ledger on top of the shared database handle.
func wire(conn *gorm.DB, cfg config.Config) {
	db = conn
	books = catalog.NewStore(conn)
	people = members.NewStore(conn, cfg.SessionTTL)
	ledger = lending.NewLedger(conn, books, people, cfg.Lending, logger)
}

func setupRouter(cfg config.Config) *gin.Engine {
	server := gin.Default()
	server.Use(rateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	server.GET("/manage/health", healthCheck)

	api := server.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", register)
	auth.POST("/login", login)
	auth.POST("/logout", requireAuth, logout)
	auth.GET("/profile", requireAuth, profile)

	bookRoutes := api.Group("/books")
	bookRoutes.GET("", getBooks)
	bookRoutes.GET("/genres", getGenres)
	bookRoutes.GET("/:bookUid", getBook)
	bookRoutes.POST("", requireAuth, createBook)
	bookRoutes.PUT("/:bookUid", requireAuth, updateBook)
	bookRoutes.DELETE("/:bookUid", requireAuth, deleteBook)

	authorRoutes := api.Group("/authors")
	authorRoutes.GET("", getAuthors)
	authorRoutes.GET("/:authorUid", getAuthor)
	authorRoutes.POST("", requireAuth, createAuthor)
	authorRoutes.PUT("/:authorUid", requireAuth, updateAuthor)
	authorRoutes.DELETE("/:authorUid", requireAuth, deleteAuthor)

	userRoutes := api.Group("/users", requireAuth)
	userRoutes.GET("", getUsers)
	userRoutes.GET("/:memberUid", getUser)
	userRoutes.PUT("/:memberUid", updateUser)
	userRoutes.PATCH("/:memberUid/toggle-status", toggleUserStatus)

	loanRoutes := api.Group("/loans", requireAuth)
	loanRoutes.GET("", getLoans)
	loanRoutes.GET("/my", getMyLoans)
	loanRoutes.GET("/stats", getLoanStats)
	loanRoutes.GET("/user/:memberUid", getLoansByUser)
	loanRoutes.POST("/sweep", sweepLoans)
	loanRoutes.GET("/:loanUid", getLoan)
	loanRoutes.POST("", createLoan)
	loanRoutes.PUT("/:loanUid", updateLoan)
	loanRoutes.DELETE("/:loanUid", deleteLoan)
	loanRoutes.PATCH("/:loanUid/return", returnLoan)
	loanRoutes.PATCH("/:loanUid/renew", renewLoan)

	dashboard := api.Group("/dashboard", requireAuth)
	dashboard.GET("/stats", getDashboardStats)
	dashboard.GET("/recent-loans", getRecentLoans)
	dashboard.GET("/low-stock", getLowStockBooks)

	return server
}

func healthCheck(ctx *gin.Context) {
	sqlDB, err := db.DB()
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database connection failed",
		})
		return
	}
	if err := sqlDB.PingContext(ctx.Request.Context()); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "UP",
		"details": "Library service is active",
	})
}
