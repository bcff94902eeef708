package llmquery

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onset-project/onset/pkg/apperror"
)

// Handler handles HTTP requests for the query pipeline
type Handler struct {
	svc *Service
}

// NewHandler creates a new llmquery handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// SubmitQuery handles POST /api/query
// @Summary Submit a natural-language query
// @Description Starts the query pipeline and returns the initial progress record
// @Tags query
// @Accept json
// @Produce json
// @Param body body QueryRequest true "Query request"
// @Success 202 {object} QueryProgress
// @Failure 400 {object} apperror.Error
// @Router /query [post]
func (h *Handler) SubmitQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if len(req.Q) > 800 {
		return apperror.ErrBadRequest.WithMessage("q must be 800 characters or less")
	}

	progress, err := h.svc.StartQuery(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, progress)
}

// GetQuery handles GET /api/query/:id
// @Summary Poll query progress
// @Description Returns the current progress record, including stage snapshots
// @Tags query
// @Produce json
// @Param id path string true "Query id"
// @Success 200 {object} QueryProgress
// @Failure 404 {object} apperror.Error
// @Router /query/{id} [get]
func (h *Handler) GetQuery(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return apperror.ErrBadRequest.WithMessage("query id required")
	}

	progress, err := h.svc.Progress(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, progress)
}
