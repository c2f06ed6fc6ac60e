package echo

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ewamal/bulk-data-import-export/internal/application/exporting"
	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
)

type ExportHandler struct {
	create   *exporting.CreateExportJob
	get      *exporting.GetExportJob
	exporter *exporting.Exporter
	fileDir  string
}

type createExportRequest struct {
	Format         string         `json:"format"`
	Filters        map[string]any `json:"filters"`
	Fields         []string       `json:"fields"`
	IdempotencyKey string         `json:"idempotency_key"`
}

func NewExportHandler(create *exporting.CreateExportJob, get *exporting.GetExportJob, exporter *exporting.Exporter, fileDir string) *ExportHandler {
	return &ExportHandler{create: create, get: get, exporter: exporter, fileDir: fileDir}
}

func (h *ExportHandler) CreateExport(c echo.Context) error {
	var req createExportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_request",
			Message: "invalid request body",
		}})
	}

	out, err := h.create.Execute(c.Request().Context(), exporting.CreateExportJobInput{
		Resource:       c.Param("resource"),
		Format:         req.Format,
		Filters:        req.Filters,
		Fields:         req.Fields,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, exporting.ErrInvalidResource):
			return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
				Code:    "invalid_resource",
				Message: "resource must be one of users, articles, comments",
			}})
		case errors.Is(err, exporting.ErrInvalidFormat):
			return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
				Code:    "invalid_format",
				Message: "format must be ndjson or json",
			}})
		default:
			return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
				Code:    "internal_error",
				Message: "failed to enqueue export job",
			}})
		}
	}

	return c.JSON(http.StatusAccepted, apiResponse{Data: out})
}

func (h *ExportHandler) GetExport(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_request",
			Message: "job id must be an integer",
		}})
	}

	status, err := h.get.Execute(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, exporting.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, apiResponse{Error: &errorBody{
				Code:    "not_found",
				Message: "export job not found",
			}})
		}
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to load export job",
		}})
	}

	return c.JSON(http.StatusOK, apiResponse{Data: status})
}

// StreamExport writes the full resource to the response body without
// creating a job.
func (h *ExportHandler) StreamExport(c echo.Context) error {
	resource, err := record.ParseResource(c.Param("resource"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "invalid_resource",
			Message: "resource must be one of users, articles, comments",
		}})
	}

	format, err := exporting.ParseExportFormat(c.QueryParam("format"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "invalid_format",
			Message: "format must be ndjson or json",
		}})
	}

	contentType := "application/x-ndjson"
	if format == job.FormatJSONArray {
		contentType = "application/json"
	}
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	c.Response().WriteHeader(http.StatusOK)

	if _, err := h.exporter.Stream(c.Request().Context(), c.Response(), resource, format); err != nil {
		// Headers are already sent; all we can do is stop the stream.
		return err
	}
	return nil
}

func (h *ExportHandler) Download(c echo.Context) error {
	name := c.Param("file")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_request",
			Message: "invalid file name",
		}})
	}
	return c.File(filepath.Join(h.fileDir, name))
}
