package guidance

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/onset-project/onset/pkg/apperror"
)

// Handler handles HTTP requests for fuzzy retrieval
type Handler struct {
	svc *Service
}

// NewHandler creates a new guidance handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// SearchFuzzy handles POST /api/search/fuzzy
// @Summary Fuzzy semantic search
// @Description Similarity-ranked search over ontology subjects and links
// @Tags search
// @Accept json
// @Produce json
// @Param body body FuzzyQuery true "Search request"
// @Success 200 {object} FuzzySearchResponse
// @Failure 400 {object} apperror.Error
// @Router /search/fuzzy [post]
func (h *Handler) SearchFuzzy(c echo.Context) error {
	var q FuzzyQuery
	if err := c.Bind(&q); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if len(q.Q) > 800 {
		return apperror.ErrBadRequest.WithMessage("q must be 800 characters or less")
	}

	response, err := h.svc.SearchFuzzy(c.Request().Context(), &q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response)
}

// Topics handles GET /api/topics
// @Summary Topic tree
// @Description Hierarchical topic clustering for the current ontology snapshot
// @Tags search
// @Produce json
// @Success 200 {array} TopicNode
// @Router /topics [get]
func (h *Handler) Topics(c echo.Context) error {
	tree, err := h.svc.TopicTree(c.Request().Context())
	if err != nil {
		return err
	}
	if tree == nil {
		tree = []*TopicNode{}
	}
	return c.JSON(http.StatusOK, tree)
}

// Links handles GET /api/links
// @Summary List subject links
// @Description Plain filtered link lookup without vector ranking
// @Tags search
// @Produce json
// @Param from query string false "Comma-separated source subject ids"
// @Param to query string false "Comma-separated target subject ids"
// @Success 200 {array} catalog.SubjectLinkRow
// @Router /links [get]
func (h *Handler) Links(c echo.Context) error {
	req := LinkListRequest{
		FromIDs: splitParam(c.QueryParam("from")),
		ToIDs:   splitParam(c.QueryParam("to")),
	}
	if err := echo.QueryParamsBinder(c).Int("limit", &req.Limit).BindError(); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid limit")
	}

	links, err := h.svc.SearchLinks(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, links)
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
