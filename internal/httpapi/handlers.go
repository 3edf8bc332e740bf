package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/syncagent"
)

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version,omitempty"`
	CatalogVersion  uint64 `json:"catalog_version"`
	Entries         int    `json:"entries"`
	DiagnosticCount int    `json:"diagnostics"`
}

type entriesResponse struct {
	CatalogVersion uint64          `json:"catalog_version"`
	Entries        []catalog.Entry `json:"entries"`
}

type diagnosticsResponse struct {
	CatalogVersion uint64    `json:"catalog_version"`
	Diagnostics    diag.List `json:"diagnostics"`
}

type rebuildResponse struct {
	CatalogVersion uint64    `json:"catalog_version"`
	Entries        int       `json:"entries"`
	Errors         int       `json:"errors"`
	Warnings       int       `json:"warnings"`
	Persisted      bool      `json:"persisted"`
	Diagnostics    diag.List `json:"diagnostics"`
}

type notificationsResponse struct {
	Report         syncagent.Report `json:"report"`
	Rebuilt        bool             `json:"rebuilt"`
	CatalogVersion uint64           `json:"catalog_version"`
}

func (s *Server) health(ctx echo.Context) error {
	snap := s.catalog.Current()
	return ctx.JSON(http.StatusOK, healthResponse{
		Status:          "ok",
		Version:         s.version,
		CatalogVersion:  snap.Version(),
		Entries:         snap.Len(),
		DiagnosticCount: len(snap.Diagnostics()),
	})
}

func (s *Server) getEntry(ctx echo.Context) error {
	raw := ctx.Param("guid")
	id, err := guid.Parse(raw)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid guid format"})
	}
	e, ok := s.catalog.Current().Lookup(id)
	if !ok {
		return ctx.JSON(http.StatusNotFound, errorResponse{Error: "entry not found"})
	}
	return ctx.JSON(http.StatusOK, e)
}

// listEntries returns one entry when ?path= is given, otherwise all of
// them ordered by logical path.
func (s *Server) listEntries(ctx echo.Context) error {
	snap := s.catalog.Current()
	if p := ctx.QueryParam("path"); p != "" {
		e, ok := snap.LookupByPath(p)
		if !ok {
			return ctx.JSON(http.StatusNotFound, errorResponse{Error: "entry not found"})
		}
		return ctx.JSON(http.StatusOK, e)
	}
	return ctx.JSON(http.StatusOK, entriesResponse{
		CatalogVersion: snap.Version(),
		Entries:        snap.Entries(),
	})
}

// export writes the text export, or the records as JSON with
// ?format=json.
func (s *Server) export(ctx echo.Context) error {
	snap := s.catalog.Current()
	switch ctx.QueryParam("format") {
	case "", "text":
		ctx.Response().Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
		ctx.Response().WriteHeader(http.StatusOK)
		return catalog.Export(ctx.Response(), snap)
	case "json":
		return ctx.JSON(http.StatusOK, catalog.ExportRecords(snap))
	default:
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "unknown format"})
	}
}

// diagnostics lists the current snapshot's diagnostics, optionally
// filtered by ?severity= and ?code=.
func (s *Server) diagnostics(ctx echo.Context) error {
	snap := s.catalog.Current()
	list := snap.Diagnostics()
	if code := ctx.QueryParam("code"); code != "" {
		list = list.WithCode(code)
	}
	if raw := ctx.QueryParam("severity"); raw != "" {
		sev, ok := diag.ParseSeverity(raw)
		if !ok {
			return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "unknown severity"})
		}
		filtered := diag.List{}
		for _, d := range list {
			if d.Severity == sev {
				filtered = append(filtered, d)
			}
		}
		list = filtered
	}
	if list == nil {
		list = diag.List{}
	}
	return ctx.JSON(http.StatusOK, diagnosticsResponse{CatalogVersion: snap.Version(), Diagnostics: list})
}

func (s *Server) rebuild(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	res, err := s.catalog.Rebuild(reqCtx)
	if err != nil {
		s.log.Error().Err(err).Msg("rebuild failed")
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "rebuild failed: " + err.Error()})
	}

	persisted := false
	if s.store != nil {
		if err := s.store.SaveSnapshot(reqCtx, res.Snapshot, res.Diagnostics); err != nil {
			s.log.Error().Err(err).Msg("failed to persist snapshot")
			return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "persist snapshot: " + err.Error()})
		}
		persisted = true
	}

	diags := res.Diagnostics
	if diags == nil {
		diags = diag.List{}
	}
	return ctx.JSON(http.StatusOK, rebuildResponse{
		CatalogVersion: res.Snapshot.Version(),
		Entries:        res.Snapshot.Len(),
		Errors:         diags.Count(diag.SeverityError),
		Warnings:       diags.Count(diag.SeverityWarning),
		Persisted:      persisted,
		Diagnostics:    diags,
	})
}

// notifications accepts a JSON array of change notifications, processes
// them in order and refreshes the catalog.
func (s *Server) notifications(ctx echo.Context) error {
	if s.agent == nil {
		return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: "sync is not enabled"})
	}
	var batch []syncagent.Notification
	if err := (&echo.DefaultBinder{}).BindBody(ctx, &batch); err != nil {
		var he *echo.HTTPError
		msg := err.Error()
		if errors.As(err, &he) {
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		}
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid notifications: " + strings.TrimSpace(msg)})
	}
	for _, n := range batch {
		if n.Kind == 0 {
			return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "notification kind is required"})
		}
	}

	reqCtx := ctx.Request().Context()
	rep := s.agent.Process(reqCtx, batch)
	if rep.Err != nil {
		return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: rep.Err.Error()})
	}
	_, rebuilt, err := s.catalog.Refresh(reqCtx)
	if err != nil {
		s.log.Error().Err(err).Msg("refresh after notifications failed")
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "refresh failed: " + err.Error()})
	}
	if rep.Results == nil {
		rep.Results = []syncagent.Result{}
	}
	if rep.Diagnostics == nil {
		rep.Diagnostics = diag.List{}
	}
	return ctx.JSON(http.StatusOK, notificationsResponse{
		Report:         rep,
		Rebuilt:        rebuilt,
		CatalogVersion: s.catalog.Current().Version(),
	})
}
