package main

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/ninjabot/ninjaguard/automod/consumer"
	"github.com/ninjabot/ninjaguard/automod/engine"
	"github.com/ninjabot/ninjaguard/automod/helpers"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// Operator endpoints: health, inspection of tracked authors, and manual reset.
//
// Message text never leaves the process through this API; only a fingerprint of the last text is shown.
type adminAPI struct {
	engine *engine.Engine
	source consumer.Source
	// optional
	lastEvent func() time.Time
}

func newAdminEcho(api *adminAPI, logger *slog.Logger, reg prometheus.Registerer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "ninjaguard",
		Registerer: reg,
	}))
	e.Use(otelecho.Middleware("ninjaguard"))
	e.HTTPErrorHandler = httpError

	e.GET("/_health", api.HandleHealthCheck)
	e.GET("/policy", api.HandlePolicy)
	e.GET("/authors", api.HandleListAuthors)
	e.GET("/authors/:id", api.HandleGetAuthor)
	e.DELETE("/authors/:id", api.HandleResetAuthor)
	return e
}

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func httpError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if c.Response().Committed {
		return
	}
	_ = c.JSON(code, GenericError{
		Error:   strings.ReplaceAll(strings.ToLower(http.StatusText(code)), " ", "-"),
		Message: msg,
	})
}

type HealthStatus struct {
	Status      string     `json:"status"`
	Version     string     `json:"version"`
	Ready       bool       `json:"ready"`
	Authors     int        `json:"authors"`
	LastEventAt *time.Time `json:"lastEventAt,omitempty"`
}

func (api *adminAPI) ready() bool {
	if api.source == nil {
		return false
	}
	select {
	case <-api.source.Ready():
		return true
	default:
		return false
	}
}

func (api *adminAPI) HandleHealthCheck(c echo.Context) error {
	hs := HealthStatus{
		Status:  "ok",
		Version: versioninfo.Short(),
		Ready:   api.ready(),
		Authors: api.engine.Store.Len(),
	}
	if api.lastEvent != nil {
		if t := api.lastEvent(); !t.IsZero() {
			hs.LastEventAt = &t
		}
	}
	if !hs.Ready {
		hs.Status = "starting"
		return c.JSON(http.StatusServiceUnavailable, hs)
	}
	return c.JSON(http.StatusOK, hs)
}

func (api *adminAPI) HandlePolicy(c echo.Context) error {
	return c.JSON(http.StatusOK, api.engine.Config())
}

type AuthorSummary struct {
	ID         string    `json:"id"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

type AuthorList struct {
	Count   int             `json:"count"`
	Authors []AuthorSummary `json:"authors"`
}

func (api *adminAPI) HandleListAuthors(c echo.Context) error {
	snap := api.engine.Store.Snapshot()
	out := AuthorList{Count: len(snap), Authors: make([]AuthorSummary, 0, len(snap))}
	for _, ent := range snap {
		out.Authors = append(out.Authors, AuthorSummary{ID: ent.ID, LastSeenAt: ent.LastSeenAt})
	}
	// most recently active first
	slices.SortFunc(out.Authors, func(a, b AuthorSummary) int {
		return b.LastSeenAt.Compare(a.LastSeenAt)
	})
	return c.JSON(http.StatusOK, out)
}

type AuthorDetail struct {
	ID                  string    `json:"id"`
	AbuseScore          float64   `json:"abuseScore"`
	LastSeenAt          time.Time `json:"lastSeenAt"`
	TrackedMessages     int       `json:"trackedMessages"`
	TextChannels        []string  `json:"textChannels"`
	ImageChannels       []string  `json:"imageChannels"`
	LastTextFingerprint string    `json:"lastTextFingerprint,omitempty"`
}

func (api *adminAPI) HandleGetAuthor(c echo.Context) error {
	id := c.Param("id")
	st, ok := api.engine.Store.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "author not tracked")
	}
	out := AuthorDetail{
		ID:              id,
		AbuseScore:      st.AbuseScore,
		LastSeenAt:      st.LastSeenAt,
		TrackedMessages: len(st.Tracked),
		TextChannels:    sortedKeys(st.TextChannels),
		ImageChannels:   sortedKeys(st.ImageChannels),
	}
	if st.LastText != "" {
		out.LastTextFingerprint = helpers.Fingerprint(st.LastText)
	}
	return c.JSON(http.StatusOK, out)
}

func (api *adminAPI) HandleResetAuthor(c echo.Context) error {
	id := c.Param("id")
	if !api.engine.ResetAuthor(id) {
		return echo.NewHTTPError(http.StatusNotFound, "author not tracked")
	}
	slog.Info("author state reset by operator", "author", id, "remote", c.RealIP())
	return c.NoContent(http.StatusNoContent)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
