package echo

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ewamal/bulk-data-import-export/internal/application/importing"
)

type ImportHandler struct {
	create *importing.CreateImportJob
	get    *importing.GetImportJob
}

type createImportRequest struct {
	Source         string `json:"source"`
	IdempotencyKey string `json:"idempotency_key"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

func NewImportHandler(create *importing.CreateImportJob, get *importing.GetImportJob) *ImportHandler {
	return &ImportHandler{create: create, get: get}
}

func (h *ImportHandler) CreateImport(c echo.Context) error {
	var req createImportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_request",
			Message: "invalid request body",
		}})
	}

	out, err := h.create.Execute(c.Request().Context(), importing.CreateImportJobInput{
		Resource:       c.Param("resource"),
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, importing.ErrInvalidResource):
			return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
				Code:    "invalid_resource",
				Message: "resource must be one of users, articles, comments",
			}})
		case errors.Is(err, importing.ErrInvalidSource):
			return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
				Code:    "invalid_source",
				Message: "source must be a file path or URL",
			}})
		default:
			return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
				Code:    "internal_error",
				Message: "failed to enqueue import job",
			}})
		}
	}

	return c.JSON(http.StatusAccepted, apiResponse{Data: out})
}

func (h *ImportHandler) GetImport(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_request",
			Message: "job id must be an integer",
		}})
	}

	status, err := h.get.Execute(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, importing.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, apiResponse{Error: &errorBody{
				Code:    "not_found",
				Message: "import job not found",
			}})
		}
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to load import job",
		}})
	}

	return c.JSON(http.StatusOK, apiResponse{Data: status})
}
