package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coach-change-api/internal/dto"
	"github.com/noah-isme/coach-change-api/internal/middleware"
	"github.com/noah-isme/coach-change-api/internal/models"
	"github.com/noah-isme/coach-change-api/internal/service"
	appErrors "github.com/noah-isme/coach-change-api/pkg/errors"
	"github.com/noah-isme/coach-change-api/pkg/response"
)

// CoachChangeHandler exposes the coach change workflow.
type CoachChangeHandler struct {
	svc *service.CoachChangeService
}

// NewCoachChangeHandler constructs the handler.
func NewCoachChangeHandler(svc *service.CoachChangeService) *CoachChangeHandler {
	return &CoachChangeHandler{svc: svc}
}

// Create godoc
// @Summary Request a coach change
// @Tags CoachChanges
// @Accept json
// @Produce json
// @Param payload body dto.CreateCoachChangeRequest true "Coach change payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /coach-changes [post]
func (h *CoachChangeHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateCoachChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid coach change payload"))
		return
	}
	created, err := h.svc.CreateRequest(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List coach change requests visible to the caller
// @Tags CoachChanges
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param studentId query string false "Student ID (admins only)"
// @Param coachId query string false "Coach ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /coach-changes [get]
func (h *CoachChangeHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.CoachChangeQuery{
		StudentID: c.Query("studentId"),
		CoachID:   c.Query("coachId"),
		Page:      atoiOr(c.Query("page"), 1),
		PageSize:  atoiOr(c.Query("pageSize"), 20),
	}
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				query.Status = append(query.Status, models.CoachChangeStatus(strings.ToUpper(part)))
			}
		}
	}

	items, pagination, err := h.svc.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// PendingApprovals godoc
// @Summary Requests awaiting the caller's decision
// @Tags CoachChanges
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /coach-changes/pending-approvals [get]
func (h *CoachChangeHandler) PendingApprovals(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.svc.PendingApprovals(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get a coach change request
// @Tags CoachChanges
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /coach-changes/{id} [get]
func (h *CoachChangeHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := h.svc.View(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// Decide godoc
// @Summary Approve or reject one approval stage
// @Tags CoachChanges
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecideCoachChangeRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /coach-changes/{id}/decisions [post]
func (h *CoachChangeHandler) Decide(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DecideCoachChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	result, err := h.svc.Decide(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Mutation(c, result.Request, result.Replayed)
}

// Cancel godoc
// @Summary Cancel a request before any stage is decided
// @Tags CoachChanges
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /coach-changes/{id}/cancel [post]
func (h *CoachChangeHandler) Cancel(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Mutation(c, result.Request, result.Replayed)
}

// AuditPDF godoc
// @Summary Download the audit trail of a request
// @Tags CoachChanges
// @Produce application/pdf
// @Param id path string true "Request ID"
// @Success 200 {file} binary
// @Router /coach-changes/{id}/audit.pdf [get]
func (h *CoachChangeHandler) AuditPDF(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id := c.Param("id")
	body, err := h.svc.AuditTrailPDF(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.PDF(c, "coach-change-"+id+".pdf", body)
}

func atoiOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// Register mounts the workflow routes on rg. rg must already verify JWTs.
func (h *CoachChangeHandler) Register(rg *gin.RouterGroup) {
	approvers := middleware.RequireRoles(models.RoleCoach, models.RoleCampusAdmin, models.RoleSuperAdmin)

	group := rg.Group("/coach-changes")
	group.POST("", middleware.RequireRoles(models.RoleStudent), h.Create)
	group.GET("", h.List)
	group.GET("/pending-approvals", approvers, h.PendingApprovals)
	group.GET("/:id", h.Get)
	group.POST("/:id/decisions", approvers, h.Decide)
	group.POST("/:id/cancel", middleware.RequireRoles(models.RoleStudent, models.RoleCampusAdmin, models.RoleSuperAdmin), h.Cancel)
	group.GET("/:id/audit.pdf", h.AuditPDF)
}
