package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/middlewares"
	"github.com/nens/trs_backend/models"
	"github.com/nens/trs_backend/models/reports"
	"github.com/nens/trs_backend/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("trs-backend")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// weekParams reads the ?year=&week= cutoff, defaulting to the current
// ISO week.
func weekParams(c *gin.Context) (int, int) {
	nowYear, nowWeek := time.Now().ISOWeek()
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil || year == 0 {
		year = nowYear
	}
	week, err := strconv.Atoi(c.Query("week"))
	if err != nil || week == 0 {
		week = nowWeek
	}
	return year, week
}

func respondError(c *gin.Context, err error) {
	switch {
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, utils.ErrorNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func bindError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

/* generic JSON CRUD plumbing */

func handleCreate[In any, Out any](create func(context.Context, *In) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input In
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
		result, err := create(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func handleUpdate[In any, Out any](update func(context.Context, int, *In) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var input In
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
		result, err := update(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleGet[Out any](get func(context.Context, int) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		result, err := get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleDelete[Out any](del func(context.Context, int) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		result, err := del(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleList[Out any](list func(context.Context) ([]*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := list(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

// handleListFor lists child rows of a parent resource (/:id/...).
func handleListFor[Out any](list func(context.Context, int) ([]*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		results, err := list(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

// requireSignIn gates mutations on a resolved SSO identity.
func requireSignIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetPersonIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// requireAdmin gates administrative operations on office management.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context()); !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

type generateYearWeeksRequest struct {
	StartYear int `json:"start_year"`
	EndYear   int `json:"end_year"`
}

// generateYearWeeksHandler backfills the week axis. Without a body the
// configured year range applies.
func generateYearWeeksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		settings := config.GetSettings()
		req := generateYearWeeksRequest{
			StartYear: settings.StartYear,
			EndYear:   settings.EndYear,
		}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				bindError(c, err)
				return
			}
		}
		created, err := models.GenerateYearWeeks(c.Request.Context(), req.StartYear, req.EndYear)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"start_year": req.StartYear,
			"end_year":   req.EndYear,
			"created":    created,
		})
	}
}

func togglePersonHandler(isActive bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		person, err := models.ToggleActivePerson(c.Request.Context(), id, isActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, person)
	}
}

func projectAcceptanceHandler(transition func(context.Context, int) (*models.Project, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		project, err := transition(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, project)
	}
}

func bySlugHandler[Out any](get func(context.Context, string) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := get(c.Request.Context(), c.Param("slug"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func projectBudgetReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		year, week := weekParams(c)
		report, err := reports.GetProjectBudgetReport(c.Request.Context(), id, year, week)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func organisationBudgetReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		year, week := weekParams(c)
		report, err := reports.GetOrganisationBudgetReport(c.Request.Context(), year, week)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func organisationBudgetExcelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		year, week := weekParams(c)
		f, err := reports.ExportOrganisationBudgetExcel(c.Request.Context(), year, week)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=budget-%d-%02d.xlsx", year, week))
		if err := f.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "server.go", "organisationBudgetExcelHandler", "f.Write", nil, err)
		}
	}
}

func personWeekReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		toYear, toWeek := weekParams(c)
		fromYear, err := strconv.Atoi(c.Query("from_year"))
		if err != nil || fromYear == 0 {
			fromYear = toYear
			if toWeek == 1 {
				fromYear--
			}
		}
		fromWeek, err := strconv.Atoi(c.Query("from_week"))
		if err != nil || fromWeek == 0 {
			fromWeek = 1
		}
		rows, rerr := reports.GetPersonWeekReport(c.Request.Context(), id, fromYear, fromWeek, toYear, toWeek)
		if rerr != nil {
			respondError(c, rerr)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

// personCapacityHandler answers "how many hours does this person work
// as of week X" for the planning views.
func personCapacityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		year, week := weekParams(c)
		capacity, err := models.EffectiveCapacity(c.Request.Context(), id, year, week)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"person_id":      id,
			"year":           year,
			"week":           week,
			"hours_per_week": capacity.HoursPerWeek,
			"target":         capacity.Target,
		})
	}
}

func projectWeekBudgetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		year, week := weekParams(c)
		budget, err := models.EffectiveWeekBudget(c.Request.Context(), id, year, week)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"project_id": id,
			"year":       year,
			"week":       week,
			"budget":     budget,
		})
	}
}

func projectTariffHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		personId, err := strconv.Atoi(c.Param("personId"))
		if err != nil || personId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
			return
		}
		year, week := weekParams(c)
		tariff, err := models.EffectiveTariff(c.Request.Context(), personId, id, year, week)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"project_id": id,
			"person_id":  personId,
			"year":       year,
			"week":       week,
			"tariff":     tariff,
		})
	}
}

// whoAmIHandler reports the resolved session: the frontend uses it to
// decide which controls to show.
func whoAmIHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		_, signedIn := utils.GetTokenFromContext(ctx)
		personId, _ := utils.GetPersonIdFromContext(ctx)
		personName, _ := utils.GetPersonNameFromContext(ctx)
		isAdmin, _ := utils.GetIsAdminFromContext(ctx)
		c.JSON(http.StatusOK, gin.H{
			"signed_in":   signedIn,
			"person_id":   personId,
			"person_name": personName,
			"is_admin":    isAdmin,
		})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	settings := config.GetSettings()
	port := settings.APIPort
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	logger := config.GetLogger()

	// Shutdown coordination: SIGTERM on deploy, SIGINT locally.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy. Until DB/Redis are ready we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production requires an explicit allowlist; development allows all.
	if settings.IsProduction() {
		corsConfig.AllowOrigins = settings.CORSAllowedOrigins
		if corsConfig.AllowOrigins == nil {
			corsConfig.AllowOrigins = []string{}
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	if boolEnv("RATE_LIMIT_ENABLED") {
		rateLimiter := NewRateLimiter(
			redis.NewClient(&redis.Options{Addr: settings.RedisAddress}),
			int64(intEnv("RATE_LIMIT_MAX_REQUESTS", 600)),
			time.Duration(intEnv("RATE_LIMIT_WINDOW_SECONDS", 60))*time.Second,
		)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	registerRoutes(r)
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !settings.SkipMigrations {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS set; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func registerRoutes(r *gin.Engine) {

	// read-only surface
	r.GET("/me", whoAmIHandler())
	r.GET("/year-weeks", handleList(models.GetYearWeeks))
	r.GET("/mpcs", handleList(models.GetMpcs))
	r.GET("/mpcs/:id", handleGet(models.GetMpc))
	r.GET("/persons", handleList(models.GetPersons))
	r.GET("/persons/:id", handleGet(models.GetPerson))
	r.GET("/persons/slug/:slug", bySlugHandler(models.GetPersonBySlug))
	r.GET("/persons/:id/changes", handleListFor(models.GetPersonChanges))
	r.GET("/persons/:id/capacity", personCapacityHandler())
	r.GET("/persons/:id/work-assignments", handleListFor(models.GetWorkAssignmentsForPerson))
	r.GET("/persons/:id/week-report", personWeekReportHandler())
	r.GET("/projects", handleList(models.GetProjects))
	r.GET("/projects/:id", handleGet(models.GetProject))
	r.GET("/projects/slug/:slug", bySlugHandler(models.GetProjectBySlug))
	r.GET("/projects/:id/work-assignments", handleListFor(models.GetWorkAssignmentsForProject))
	r.GET("/projects/:id/week-budget", projectWeekBudgetHandler())
	r.GET("/projects/:id/tariffs/:personId", projectTariffHandler())
	r.GET("/projects/:id/budget-assignments", handleListFor(models.GetBudgetAssignmentsForProject))
	r.GET("/projects/:id/third-party-estimates", handleListFor(models.GetThirdPartyEstimatesForProject))
	r.GET("/projects/:id/payables", handleListFor(models.GetPayablesForProject))
	r.GET("/projects/:id/budget-report", projectBudgetReportHandler())
	r.GET("/person-changes/:id", handleGet(models.GetPersonChange))
	r.GET("/work-assignments/:id", handleGet(models.GetWorkAssignment))
	r.GET("/budget-assignments/:id", handleGet(models.GetBudgetAssignment))
	r.GET("/bookings/:id", handleGet(models.GetBooking))
	r.GET("/third-party-estimates/:id", handleGet(models.GetThirdPartyEstimate))
	r.GET("/payables/:id", handleGet(models.GetPayable))
	r.GET("/reports/organisation-budget", organisationBudgetReportHandler())
	r.GET("/reports/organisation-budget/excel", organisationBudgetExcelHandler())

	// mutations need a resolved identity
	signedIn := r.Group("", requireSignIn())
	signedIn.POST("/projects", handleCreate(models.CreateProject))
	signedIn.PUT("/projects/:id", handleUpdate(models.UpdateProject))
	signedIn.DELETE("/projects/:id", handleDelete(models.DeleteProject))
	signedIn.POST("/projects/:id/accept", projectAcceptanceHandler(models.AcceptProject))
	signedIn.POST("/projects/:id/unaccept", projectAcceptanceHandler(models.UnacceptProject))
	signedIn.POST("/person-changes", handleCreate(models.CreatePersonChange))
	signedIn.PUT("/person-changes/:id", handleUpdate(models.UpdatePersonChange))
	signedIn.DELETE("/person-changes/:id", handleDelete(models.DeletePersonChange))
	signedIn.PUT("/work-assignments", handleCreate(models.UpsertWorkAssignment))
	signedIn.DELETE("/work-assignments/:id", handleDelete(models.DeleteWorkAssignment))
	signedIn.POST("/budget-assignments", handleCreate(models.CreateBudgetAssignment))
	signedIn.PUT("/budget-assignments/:id", handleUpdate(models.UpdateBudgetAssignment))
	signedIn.DELETE("/budget-assignments/:id", handleDelete(models.DeleteBudgetAssignment))
	signedIn.POST("/bookings", handleCreate(models.CreateBooking))
	signedIn.PUT("/bookings/:id", handleUpdate(models.UpdateBooking))
	signedIn.DELETE("/bookings/:id", handleDelete(models.DeleteBooking))
	signedIn.POST("/third-party-estimates", handleCreate(models.CreateThirdPartyEstimate))
	signedIn.PUT("/third-party-estimates/:id", handleUpdate(models.UpdateThirdPartyEstimate))
	signedIn.DELETE("/third-party-estimates/:id", handleDelete(models.DeleteThirdPartyEstimate))
	signedIn.POST("/payables", handleCreate(models.CreatePayable))
	signedIn.PUT("/payables/:id", handleUpdate(models.UpdatePayable))
	signedIn.DELETE("/payables/:id", handleDelete(models.DeletePayable))

	// administrative surface (office management)
	admin := r.Group("", requireSignIn(), requireAdmin())
	admin.POST("/year-weeks/generate", generateYearWeeksHandler())
	admin.POST("/mpcs", handleCreate(models.CreateMpc))
	admin.PUT("/mpcs/:id", handleUpdate(models.UpdateMpc))
	admin.DELETE("/mpcs/:id", handleDelete(models.DeleteMpc))
	admin.POST("/persons", handleCreate(models.CreatePerson))
	admin.PUT("/persons/:id", handleUpdate(models.UpdatePerson))
	admin.DELETE("/persons/:id", handleDelete(models.DeletePerson))
	admin.POST("/persons/:id/activate", togglePersonHandler(true))
	admin.POST("/persons/:id/deactivate", togglePersonHandler(false))
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			login, _ := utils.GetLoginNameFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"correlation_id": cid,
				"login_name":     login,
				"path":           c.Request.URL.Path,
			}).Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP()

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func boolEnv(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func intEnv(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
