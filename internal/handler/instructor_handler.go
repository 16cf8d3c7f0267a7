package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sd-cohort-api/internal/models"
	"github.com/noah-isme/sd-cohort-api/internal/service"
	"github.com/noah-isme/sd-cohort-api/pkg/response"
)

type assignmentService interface {
	ListByInstructor(ctx context.Context, instructorID string) ([]models.Binding, error)
	SetPrimary(ctx context.Context, actor models.Actor, instructorID string, req service.PrimaryBindingRequest) (*models.Binding, error)
	ClearPrimary(ctx context.Context, actor models.Actor, instructorID string) error
	AddSecondary(ctx context.Context, actor models.Actor, instructorID string, req service.SectionAssignmentRequest) (*models.SectionAssignment, error)
	UpdateSecondary(ctx context.Context, actor models.Actor, instructorID, assignmentID string, req service.SectionAssignmentRequest) (*models.SectionAssignment, error)
	RemoveSecondary(ctx context.Context, actor models.Actor, instructorID, assignmentID string) error
	DeleteInstructor(ctx context.Context, actor models.Actor, instructorID string) error
}

// InstructorHandler manages instructor bindings.
type InstructorHandler struct {
	assignments assignmentService
}

// NewInstructorHandler constructs InstructorHandler.
func NewInstructorHandler(assignments assignmentService) *InstructorHandler {
	return &InstructorHandler{assignments: assignments}
}

// Bindings godoc
// @Summary List an instructor's bindings
// @Tags Instructors
// @Produce json
// @Param id path string true "Instructor ID"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/bindings [get]
func (h *InstructorHandler) Bindings(c *gin.Context) {
	bindings, err := h.assignments.ListByInstructor(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bindings, nil)
}

// SetPrimary godoc
// @Summary Set or edit the primary binding
// @Tags Instructors
// @Accept json
// @Produce json
// @Param id path string true "Instructor ID"
// @Param payload body service.PrimaryBindingRequest true "Primary binding"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /instructors/{id}/primary [put]
func (h *InstructorHandler) SetPrimary(c *gin.Context) {
	var req service.PrimaryBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	binding, err := h.assignments.SetPrimary(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, binding, nil)
}

// ClearPrimary godoc
// @Summary Clear the primary binding
// @Tags Instructors
// @Param id path string true "Instructor ID"
// @Success 204
// @Router /instructors/{id}/primary [delete]
func (h *InstructorHandler) ClearPrimary(c *gin.Context) {
	if err := h.assignments.ClearPrimary(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddAssignment godoc
// @Summary Add a section assignment
// @Tags Instructors
// @Accept json
// @Produce json
// @Param id path string true "Instructor ID"
// @Param payload body service.SectionAssignmentRequest true "Section assignment"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /instructors/{id}/assignments [post]
func (h *InstructorHandler) AddAssignment(c *gin.Context) {
	var req service.SectionAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	assignment, err := h.assignments.AddSecondary(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// UpdateAssignment godoc
// @Summary Edit a section assignment
// @Tags Instructors
// @Accept json
// @Produce json
// @Param id path string true "Instructor ID"
// @Param assignmentId path string true "Assignment ID"
// @Param payload body service.SectionAssignmentRequest true "Section assignment"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /instructors/{id}/assignments/{assignmentId} [put]
func (h *InstructorHandler) UpdateAssignment(c *gin.Context) {
	var req service.SectionAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	assignment, err := h.assignments.UpdateSecondary(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("assignmentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// RemoveAssignment godoc
// @Summary Remove a section assignment
// @Tags Instructors
// @Param id path string true "Instructor ID"
// @Param assignmentId path string true "Assignment ID"
// @Success 204
// @Router /instructors/{id}/assignments/{assignmentId} [delete]
func (h *InstructorHandler) RemoveAssignment(c *gin.Context) {
	if err := h.assignments.RemoveSecondary(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("assignmentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete an instructor and their section assignments
// @Tags Instructors
// @Param id path string true "Instructor ID"
// @Success 204
// @Router /instructors/{id} [delete]
func (h *InstructorHandler) Delete(c *gin.Context) {
	if err := h.assignments.DeleteInstructor(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
