package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sd-cohort-api/internal/models"
	"github.com/noah-isme/sd-cohort-api/internal/service"
	"github.com/noah-isme/sd-cohort-api/pkg/response"
)

type enrollmentService interface {
	Submit(ctx context.Context, actor models.Actor, req service.SubmitEnrollmentRequest) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Approve(ctx context.Context, actor models.Actor, id string, req service.ApproveEnrollmentRequest) (*models.EnrollmentDetail, error)
	Reject(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error)
	RemoveFromSection(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error)
	Reassign(ctx context.Context, actor models.Actor, id string, req service.ReassignEnrollmentRequest) (*models.Enrollment, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Submit godoc
// @Summary Submit an enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.SubmitEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Submit(c *gin.Context) {
	var req service.SubmitEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enrollment, err := h.enrollments.Submit(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param grade query string false "Filter by grade level"
// @Param section query int false "Filter by section"
// @Param status query string false "pending, approved or rejected"
// @Param search query string false "Student name contains"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter := models.EnrollmentFilter{
		GradeLevel: c.Query("grade"),
		Status:     models.EnrollmentStatus(strings.ToLower(c.Query("status"))),
		Search:     c.Query("search"),
		SortBy:     c.Query("sort"),
		SortOrder:  c.Query("order"),
	}
	section, err := optionalIntQuery(c, "section")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.Section = section
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Get godoc
// @Summary Get an enrollment with its subject enrollments
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	detail, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Approve godoc
// @Summary Approve an enrollment into a section
// @Description Bindings may be omitted to use the section's current instructors.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.ApproveEnrollmentRequest true "Approval payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/approve [post]
func (h *EnrollmentHandler) Approve(c *gin.Context) {
	var req service.ApproveEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	detail, err := h.enrollments.Approve(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Reject godoc
// @Summary Reject an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/reject [post]
func (h *EnrollmentHandler) Reject(c *gin.Context) {
	enrollment, err := h.enrollments.Reject(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// RemoveFromSection godoc
// @Summary Return an approved enrollment to pending
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/remove-section [post]
func (h *EnrollmentHandler) RemoveFromSection(c *gin.Context) {
	enrollment, err := h.enrollments.RemoveFromSection(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Reassign godoc
// @Summary Move an enrollment to another section
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.ReassignEnrollmentRequest true "Target section"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/reassign [post]
func (h *EnrollmentHandler) Reassign(c *gin.Context) {
	var req service.ReassignEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enrollment, err := h.enrollments.Reassign(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}
