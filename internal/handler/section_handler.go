package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sd-cohort-api/internal/models"
	"github.com/noah-isme/sd-cohort-api/internal/service"
	"github.com/noah-isme/sd-cohort-api/pkg/response"
)

type sectionService interface {
	AvailableSections(ctx context.Context, grade string) (*service.SectionAvailability, error)
}

type gradeBindingLister interface {
	ListByGrade(ctx context.Context, grade string, section *int) ([]models.Binding, error)
}

type rosterExporter interface {
	Roster(ctx context.Context, grade string, section int, format string) (*service.ExportResult, error)
}

// SectionHandler serves per-grade section views: availability, bindings and rosters.
type SectionHandler struct {
	sections sectionService
	bindings gradeBindingLister
	rosters  rosterExporter
}

// NewSectionHandler constructs SectionHandler.
func NewSectionHandler(sections sectionService, bindings gradeBindingLister, rosters rosterExporter) *SectionHandler {
	return &SectionHandler{sections: sections, bindings: bindings, rosters: rosters}
}

// Available godoc
// @Summary List sections of a grade that can still admit students
// @Tags Sections
// @Produce json
// @Param grade path string true "Grade level 1-6"
// @Success 200 {object} response.Envelope
// @Router /grades/{grade}/sections [get]
func (h *SectionHandler) Available(c *gin.Context) {
	out, err := h.sections.AvailableSections(c.Request.Context(), c.Param("grade"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// Bindings godoc
// @Summary List instructor bindings on a grade
// @Tags Sections
// @Produce json
// @Param grade path string true "Grade level 1-6"
// @Param section query int false "Restrict to one section"
// @Success 200 {object} response.Envelope
// @Router /grades/{grade}/bindings [get]
func (h *SectionHandler) Bindings(c *gin.Context) {
	section, err := optionalIntQuery(c, "section")
	if err != nil {
		response.Error(c, err)
		return
	}
	bindings, err := h.bindings.ListByGrade(c.Request.Context(), c.Param("grade"), section)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bindings, nil)
}

// Roster godoc
// @Summary Download a section roster
// @Tags Sections
// @Produce text/csv
// @Produce application/pdf
// @Param grade path string true "Grade level 1-6"
// @Param section path int true "Section 1-8"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /sections/{grade}/{section}/roster [get]
func (h *SectionHandler) Roster(c *gin.Context) {
	section, err := intParam(c, "section")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.rosters.Roster(c.Request.Context(), c.Param("grade"), section, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}
