package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod"
	"github.com/zeppelin-bot/zeppelin/automod/modstore"
	"github.com/zeppelin-bot/zeppelin/models"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	slogecho "github.com/samber/slog-echo"
)

const defaultCaseLimit = 50

const maxCaseLimit = 500

type GuildReloader interface {
	Reload(guildID string) error
}

// Small HTTP API for health checks and operating on guild automod state.
type API struct {
	logger *slog.Logger
	engine *automod.Engine
	loader GuildReloader
	cases  modstore.CaseStore
	echo   *echo.Echo
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
	Version string `json:"version,omitempty"`
}

type QueueStatus struct {
	GuildID string `json:"guild_id"`
	Depth   int    `json:"depth"`
	Loaded  bool   `json:"config_loaded"`
}

type CaseView struct {
	CaseNumber  int       `json:"case_number"`
	Type        string    `json:"type"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name,omitempty"`
	ModeratorID string    `json:"moderator_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Automatic   bool      `json:"automatic"`
	CreatedAt   time.Time `json:"created_at"`
}

type AntiraidRequest struct {
	// empty (or null) turns antiraid off
	Level string `json:"level"`
}

// Builds the API. Mutating endpoints require the admin token as a bearer token, and are disabled entirely when no token is configured. HTTP metrics are registered with reg.
func NewAPI(logger *slog.Logger, eng *automod.Engine, loader GuildReloader, cases modstore.CaseStore, adminToken string, reg prometheus.Registerer) *API {
	e := echo.New()
	api := &API{
		logger: logger,
		engine: eng,
		loader: loader,
		cases:  cases,
		echo:   e,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "zeppelin_api",
		Registerer: reg,
	}))
	e.HTTPErrorHandler = api.errorHandler

	e.GET("/_health", api.HandleHealthCheck)
	e.GET("/guilds", api.HandleListGuilds)
	e.GET("/guilds/:guildID/queue", api.HandleQueueStatus)
	e.GET("/guilds/:guildID/cases", api.HandleListCases)

	adminAuth := middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Validator: func(key string, c echo.Context) (bool, error) {
			if adminToken == "" {
				return false, nil
			}
			return subtle.ConstantTimeCompare([]byte(key), []byte(adminToken)) == 1, nil
		},
	})
	e.POST("/guilds/:guildID/reload", api.HandleReload, adminAuth)
	e.POST("/guilds/:guildID/antiraid", api.HandleSetAntiraid, adminAuth)

	return api
}

func (api *API) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	api.echo.ServeHTTP(rw, req)
}

// Serves the API until ctx is cancelled, then shuts down gracefully.
func (api *API) Run(ctx context.Context, bind string) error {
	httpd := &http.Server{
		Handler:        api,
		Addr:           bind,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1024 * 1024,
	}
	errc := make(chan error, 1)
	go func() {
		api.logger.Info("starting API server", "bind", bind)
		if err := httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("API server: %w", err)
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpd.Shutdown(sctx)
}

func (api *API) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		api.logger.Warn("zeppelin-http-internal-error", "err", err)
	}
	if err := c.JSON(code, GenericStatus{Status: "error", Daemon: "zeppelin", Message: errorMessage}); err != nil {
		api.logger.Error("failed to write error response", "err", err)
	}
}

func (api *API) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "zeppelin", Version: versioninfo.Short()})
}

func (api *API) HandleListGuilds(c echo.Context) error {
	guilds := api.engine.Guilds()
	if guilds == nil {
		guilds = []string{}
	}
	return c.JSON(http.StatusOK, map[string][]string{"guilds": guilds})
}

func (api *API) HandleQueueStatus(c echo.Context) error {
	guildID := c.Param("guildID")
	_, loaded := api.engine.GuildConfig(guildID)
	return c.JSON(http.StatusOK, QueueStatus{
		GuildID: guildID,
		Depth:   api.engine.Queue.Depth(guildID),
		Loaded:  loaded,
	})
}

func (api *API) HandleListCases(c echo.Context) error {
	limit := defaultCaseLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxCaseLimit {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxCaseLimit))
		}
		limit = n
	}
	cases, err := api.cases.ListCases(c.Request().Context(), c.Param("guildID"), limit)
	if err != nil {
		return fmt.Errorf("listing cases: %w", err)
	}
	out := make([]CaseView, 0, len(cases))
	for _, cs := range cases {
		out = append(out, caseView(cs))
	}
	return c.JSON(http.StatusOK, map[string][]CaseView{"cases": out})
}

func caseView(cs models.Case) CaseView {
	return CaseView{
		CaseNumber:  cs.CaseNumber,
		Type:        cs.Type,
		UserID:      cs.UserID,
		UserName:    cs.UserName,
		ModeratorID: cs.ModeratorID,
		Reason:      cs.Reason,
		Automatic:   cs.Automatic,
		CreatedAt:   cs.CreatedAt,
	}
}

func (api *API) HandleReload(c echo.Context) error {
	guildID := c.Param("guildID")
	if err := api.loader.Reload(guildID); err != nil {
		api.logger.Warn("guild config reload failed", "guild", guildID, "err", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	configsLoaded.Set(float64(len(api.engine.Guilds())))
	gc, _ := api.engine.GuildConfig(guildID)
	return c.JSON(http.StatusOK, GenericStatus{
		Status:  "ok",
		Daemon:  "zeppelin",
		Message: fmt.Sprintf("loaded %d rules", len(gc.Rules)),
	})
}

func (api *API) HandleSetAntiraid(c echo.Context) error {
	var req AntiraidRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	guildID := c.Param("guildID")
	err := api.engine.SetAntiraidLevel(guildID, req.Level)
	if errors.Is(err, automod.ErrQueueFull) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "guild queue is full")
	} else if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, GenericStatus{Status: "ok", Daemon: "zeppelin"})
}
