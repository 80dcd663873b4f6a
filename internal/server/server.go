package server

import (
	"context"
	"net/http"
	"time"

	"allowance/internal/auth"
	"allowance/internal/budget"
	"allowance/internal/config"
	"allowance/internal/dashboard"
	"allowance/internal/expense"
	"allowance/internal/notify"
	"allowance/internal/relationship"
	"allowance/internal/user"
	"allowance/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
	queue  *notify.Queue

	// Expenses is exposed so startup can seed default categories.
	Expenses expense.Service
}

// New wires every domain package onto one router. queue may be nil, in
// which case ledger events are not emailed.
func New(db *sqlx.DB, cfg *config.Config, queue *notify.Queue) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(corsMiddleware())
	router.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))

	users := user.NewService(user.NewRepository(db), cfg.JWTSecret, cfg.JWTRefreshSecret)
	linkRepo := relationship.NewRepository(db)
	links := relationship.NewService(linkRepo)
	budgetRepo := budget.NewRepository(db)
	plans := budget.NewService(budgetRepo)

	var notifier wallet.Notifier
	if queue != nil {
		notifier = notify.NewNotifier(queue, users, links)
	}
	walletRepo := wallet.NewRepository(db)
	wallets := wallet.NewService(walletRepo, links, users, budgetRepo, notifier, wallet.Config{
		Location:         cfg.Location,
		StrictDailyLimit: cfg.StrictDailyLimit,
	})
	expenseRepo := expense.NewRepository(db)
	expenses := expense.NewService(expenseRepo, wallets, cfg.Location)
	dashboards := dashboard.NewService(dashboard.NewRepository(db), walletRepo, expenseRepo, linkRepo, users, cfg.Location)

	userHandler := user.NewHandler(users)
	linkHandler := relationship.NewHandler(links)
	budgetHandler := budget.NewHandler(plans, links)
	walletHandler := wallet.NewHandler(wallets, links)
	expenseHandler := expense.NewHandler(expenses, links, cfg.Location)
	dashboardHandler := dashboard.NewHandler(dashboards, links, cfg.Location)

	public := router.Group("/auth")
	{
		public.POST("/register", userHandler.Register)
		public.POST("/login", userHandler.Login)
		public.POST("/refresh", userHandler.RefreshToken)
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", userHandler.GetMe)
	}

	spend := router.Group("/")
	spend.Use(authMiddleware, auth.RequireCapability(auth.CapSpend))
	{
		spend.GET("/wallet/me", walletHandler.GetMyWallet)
		spend.PATCH("/wallet/me/settings", walletHandler.UpdateMySettings)
		spend.GET("/wallet/me/transactions", walletHandler.ListMyTransactions)
		spend.GET("/wallet/me/today", walletHandler.GetMyDailyStatus)
		spend.POST("/wallet/me/expenses", walletHandler.RecordMyExpense)

		spend.POST("/expenses", expenseHandler.CreateExpense)
		spend.GET("/expenses/me", expenseHandler.ListMyExpenses)
		spend.GET("/expenses/me/summary", expenseHandler.GetMySummary)
		spend.GET("/expenses/categories", expenseHandler.ListCategories)
		spend.POST("/expenses/categories", expenseHandler.CreateCategory)

		spend.GET("/dashboard/student", dashboardHandler.GetStudentDashboard)

		spend.GET("/links/parent", linkHandler.GetMyParent)
		spend.POST("/links/invites/accept", linkHandler.AcceptInvite)
	}

	deposit := router.Group("/")
	deposit.Use(authMiddleware, auth.RequireCapability(auth.CapDeposit))
	{
		deposit.POST("/wallet/deposits", walletHandler.Deposit)
	}

	manage := router.Group("/")
	manage.Use(authMiddleware, auth.RequireCapability(auth.CapManagePlans))
	{
		manage.GET("/plans/me", budgetHandler.ListMyPlans)
		manage.POST("/plans", budgetHandler.CreatePlan)
		manage.GET("/plans/active", budgetHandler.GetActivePlan)
		manage.GET("/plans/active/preview", budgetHandler.PreviewAllocation)
		manage.GET("/plans/:planID", budgetHandler.GetPlan)
		manage.PATCH("/plans/:planID", budgetHandler.UpdatePlan)
		manage.POST("/plans/:planID/activate", budgetHandler.ActivatePlan)
		manage.GET("/plans/:planID/bills", budgetHandler.ListBills)
		manage.POST("/plans/:planID/bills", budgetHandler.AddBill)
		manage.PATCH("/bills/:billID", budgetHandler.UpdateBill)
		manage.DELETE("/bills/:billID", budgetHandler.DeleteBill)
	}

	linked := router.Group("/")
	linked.Use(authMiddleware, auth.RequireCapability(auth.CapViewLinked))
	{
		linked.GET("/wallet/students/:studentID", walletHandler.GetStudentWallet)
		linked.GET("/wallet/students/:studentID/transactions", walletHandler.ListStudentTransactions)
		linked.GET("/expenses/students/:studentID", expenseHandler.ListStudentExpenses)
		linked.GET("/expenses/students/:studentID/summary", expenseHandler.GetStudentSummary)
		linked.GET("/students/:studentID/plans/active", budgetHandler.GetStudentActivePlan)

		linked.GET("/dashboard/parent/overview", dashboardHandler.GetParentOverview)
		linked.GET("/dashboard/parent/students/:studentID", dashboardHandler.GetParentStudentDashboard)

		linked.GET("/links/students", linkHandler.ListMyStudents)
		linked.DELETE("/links/students/:studentID", linkHandler.RevokeStudent)
		linked.POST("/links/invites", linkHandler.CreateInvite)
		linked.GET("/links/invites", linkHandler.ListInvites)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireCapability(auth.CapAdmin))
	{
		admin.POST("/links", linkHandler.AdminLink)
	}

	var queueCheck func(context.Context) error
	if queue != nil {
		queueCheck = queue.Ping
	}
	router.GET("/health", Health(db.PingContext, queueCheck))
	router.GET("/metrics", Metrics())

	return &Server{
		router: router,
		db:     db,
		config: cfg,
		queue:  queue,

		Expenses: expenses,
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
