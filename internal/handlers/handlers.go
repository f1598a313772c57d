package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/devinsights/internal/apperr"
	"github.com/example/devinsights/internal/auth"
	"github.com/example/devinsights/internal/cache"
	"github.com/example/devinsights/internal/health"
	"github.com/example/devinsights/internal/logging"
	"github.com/example/devinsights/internal/period"
	"github.com/example/devinsights/internal/ratelimit"
	"github.com/example/devinsights/internal/usecase"
	"github.com/example/devinsights/internal/warehouse"
)

// Dependencies is everything the HTTP layer needs, built once at startup.
type Dependencies struct {
	Productivity *usecase.ProductivityUseCase
	CodeHealth   *usecase.CodeHealthUseCase
	Cockpit      *usecase.CockpitUseCase
	Dashboard    *usecase.DashboardUseCase
	Health       *health.Checker
	Cache        cache.Store
	RateLimiter  *ratelimit.Limiter
	APIKey       string
	CockpitTTL   time.Duration
	AnalyticsTTL time.Duration
	Logger       *zap.Logger
}

var (
	productivityAPI = health.API{
		Name:     "productivity",
		Datasets: []warehouse.Dataset{warehouse.DatasetMongo},
		Endpoints: []string{
			"/api/productivity/charts/deploy-frequency",
			"/api/productivity/highlights/deploy-frequency",
			"/api/productivity/charts/lead-time-for-change",
			"/api/productivity/highlights/lead-time-for-change",
			"/api/productivity/highlights/pr-size",
			"/api/productivity/charts/pull-requests-by-developer",
			"/api/productivity/charts/pull-requests-opened-vs-closed",
			"/api/productivity/charts/lead-time-breakdown",
			"/api/productivity/charts/developer-activity",
			"/api/productivity/dashboard/company",
		},
	}
	codeHealthAPI = health.API{
		Name:     "code-health",
		Datasets: []warehouse.Dataset{warehouse.DatasetMongo, warehouse.DatasetCustom},
		Endpoints: []string{
			"/api/code-health/charts/suggestions-by-category",
			"/api/code-health/charts/suggestions-by-repository",
			"/api/code-health/charts/bug-ratio",
			"/api/code-health/highlights/bug-ratio",
			"/api/code-health/highlights/suggestions-implementation-rate",
		},
	}
	cockpitAPI = health.API{
		Name:      "cockpit",
		Datasets:  []warehouse.Dataset{warehouse.DatasetMongo},
		Endpoints: []string{"/api/cockpit/validate"},
	}
)

// RegisterRoutes wires the HTTP handlers to the Gin router. Health probes are public;
// every metric route requires the API key and is cached after authentication.
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("handlers")

	api := router.Group("/api", logging.RequestLogger(logger))
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Middleware())
	}

	if deps.Health != nil {
		registerHealth(api.Group("/health"), deps.Health)
	}

	requireKey := auth.APIKeyMiddleware(deps.APIKey)

	productivity := api.Group("/productivity", requireKey, cache.Middleware(deps.Cache, deps.AnalyticsTTL, logger))
	{
		uc := deps.Productivity
		productivity.GET("/charts/deploy-frequency", windowHandler(logger, uc.DeployFrequencyChart))
		productivity.GET("/highlights/deploy-frequency", windowHandler(logger, uc.DeployFrequencyHighlight))
		productivity.GET("/charts/lead-time-for-change", windowHandler(logger, uc.LeadTimeChart))
		productivity.GET("/highlights/lead-time-for-change", windowHandler(logger, uc.LeadTimeHighlight))
		productivity.GET("/highlights/pr-size", windowHandler(logger, uc.PRSizeHighlight))
		productivity.GET("/charts/pull-requests-by-developer", windowHandler(logger, uc.PullRequestsByDeveloper))
		productivity.GET("/charts/pull-requests-opened-vs-closed", windowHandler(logger, uc.PullRequestsOpenedVsClosed))
		productivity.GET("/charts/lead-time-breakdown", windowHandler(logger, uc.LeadTimeBreakdown))
		productivity.GET("/charts/developer-activity", windowHandler(logger, uc.DeveloperActivity))
		productivity.GET("/dashboard/company", companyDashboard(logger, deps.Dashboard))
	}

	codeHealth := api.Group("/code-health", requireKey, cache.Middleware(deps.Cache, deps.AnalyticsTTL, logger))
	{
		uc := deps.CodeHealth
		codeHealth.GET("/charts/suggestions-by-category", windowHandler(logger, uc.SuggestionsByCategory))
		codeHealth.GET("/charts/suggestions-by-repository", windowHandler(logger, uc.SuggestionsByRepository))
		codeHealth.GET("/charts/bug-ratio", windowHandler(logger, uc.BugRatioChart))
		codeHealth.GET("/highlights/bug-ratio", windowHandler(logger, uc.BugRatioHighlight))
		codeHealth.GET("/highlights/suggestions-implementation-rate", windowHandler(logger, uc.SuggestionsImplementationRate))
	}

	cockpit := api.Group("/cockpit", requireKey, cache.Middleware(deps.Cache, deps.CockpitTTL, logger))
	cockpit.GET("/validate", func(c *gin.Context) {
		result, err := deps.Cockpit.Validate(c.Request.Context(), c.Query("organizationId"))
		if err != nil {
			respondError(c, logger, err)
			return
		}
		respondOK(c, result)
	})
}

func registerHealth(group *gin.RouterGroup, checker *health.Checker) {
	group.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, checker.Basic())
	})
	group.GET("/ready", func(c *gin.Context) {
		respondHealth(c, checker.Ready(c.Request.Context()))
	})
	group.GET("/productivity", func(c *gin.Context) {
		respondHealth(c, checker.API(c.Request.Context(), productivityAPI))
	})
	group.GET("/code-health", func(c *gin.Context) {
		respondHealth(c, checker.API(c.Request.Context(), codeHealthAPI))
	})
	group.GET("/cockpit", func(c *gin.Context) {
		respondHealth(c, checker.API(c.Request.Context(), cockpitAPI))
	})
	group.GET("/bigquery", func(c *gin.Context) {
		check := checker.BigQuery(c.Request.Context())
		status := http.StatusOK
		if check.Status != health.StatusUp {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, check)
	})
}

func respondHealth(c *gin.Context, report health.Report) {
	status := http.StatusOK
	if report.Status != health.StatusUp {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// windowHandler parses the reporting window from the query string and renders fn's result.
func windowHandler[T any](logger *zap.Logger, fn func(context.Context, period.Window) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := windowFromQuery(c)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		result, err := fn(c.Request.Context(), w)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		respondOK(c, result)
	}
}

func companyDashboard(logger *zap.Logger, uc *usecase.DashboardUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := windowFromQuery(c)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		complete := false
		if raw := c.Query("complete"); raw != "" {
			complete, err = strconv.ParseBool(raw)
			if err != nil {
				respondError(c, logger, apperr.Validation("complete must be true or false"))
				return
			}
		}

		var dashboard usecase.CompanyDashboard
		if complete {
			dashboard, err = uc.CompleteDashboard(c.Request.Context(), w)
		} else {
			dashboard, err = uc.CompanyDashboard(c.Request.Context(), w)
		}
		if err != nil {
			respondError(c, logger, err)
			return
		}
		respondOK(c, dashboard)
	}
}

func windowFromQuery(c *gin.Context) (period.Window, error) {
	return period.ParseWindow(c.Query("organizationId"), c.Query("startDate"), c.Query("endDate"), c.Query("repository"))
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
}

// respondError renders err with its public message. Server-side failures are logged with their cause.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	if apperr.KindOf(err) == apperr.KindUnknown {
		err = apperr.Unknown(err)
	}
	status := apperr.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context(), logger, c.FullPath()).Error("request failed",
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"status": "error", "error": apperr.PublicMessage(err)})
}
