package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sd-cohort-api/internal/models"
	"github.com/noah-isme/sd-cohort-api/internal/service"
	appErrors "github.com/noah-isme/sd-cohort-api/pkg/errors"
)

type sectionServiceMock struct {
	availability *service.SectionAvailability
	err          error
	lastGrade    string
}

func (m *sectionServiceMock) AvailableSections(ctx context.Context, grade string) (*service.SectionAvailability, error) {
	m.lastGrade = grade
	return m.availability, m.err
}

type gradeBindingMock struct {
	bindings    []models.Binding
	lastGrade   string
	lastSection *int
}

func (m *gradeBindingMock) ListByGrade(ctx context.Context, grade string, section *int) ([]models.Binding, error) {
	m.lastGrade, m.lastSection = grade, section
	return m.bindings, nil
}

type rosterMock struct {
	result      *service.ExportResult
	err         error
	lastSection int
	lastFormat  string
}

func (m *rosterMock) Roster(ctx context.Context, grade string, section int, format string) (*service.ExportResult, error) {
	m.lastSection, m.lastFormat = section, format
	return m.result, m.err
}

func TestSectionHandlerAvailable(t *testing.T) {
	sections := &sectionServiceMock{availability: &service.SectionAvailability{
		Grade: 4, Shift: "Afternoon", TimeWindow: "12:30 PM - 5:30 PM", Capacity: 40,
		Sections: []models.SectionOccupancy{{Section: 1, Occupancy: 12, Capacity: 40, Available: true}},
	}}
	handler := NewSectionHandler(sections, &gradeBindingMock{}, &rosterMock{})

	c, w := newTestContext(http.MethodGet, "/grades/4/sections", "", adminClaims())
	c.Params = gin.Params{{Key: "grade", Value: "4"}}
	handler.Available(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4", sections.lastGrade)
	assert.Contains(t, w.Body.String(), `"occupancy":12`)
}

func TestSectionHandlerAvailableInvalidGrade(t *testing.T) {
	sections := &sectionServiceMock{err: appErrors.Clone(appErrors.ErrValidation, "grade level must be between 1 and 6")}
	handler := NewSectionHandler(sections, &gradeBindingMock{}, &rosterMock{})

	c, w := newTestContext(http.MethodGet, "/grades/9/sections", "", adminClaims())
	c.Params = gin.Params{{Key: "grade", Value: "9"}}
	handler.Available(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSectionHandlerBindingsSectionFilter(t *testing.T) {
	bindings := &gradeBindingMock{}
	handler := NewSectionHandler(&sectionServiceMock{}, bindings, &rosterMock{})

	c, w := newTestContext(http.MethodGet, "/grades/5/bindings?section=3", "", adminClaims())
	c.Params = gin.Params{{Key: "grade", Value: "5"}}
	handler.Bindings(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", bindings.lastGrade)
	require.NotNil(t, bindings.lastSection)
	assert.Equal(t, 3, *bindings.lastSection)
}

func TestSectionHandlerRosterAttachment(t *testing.T) {
	rosters := &rosterMock{result: &service.ExportResult{
		Filename:    "grade-4-section-2-roster.csv",
		ContentType: "text/csv",
		Data:        []byte("No,Student\n1,Ana\n"),
	}}
	handler := NewSectionHandler(&sectionServiceMock{}, &gradeBindingMock{}, rosters)

	c, w := newTestContext(http.MethodGet, "/sections/4/2/roster?format=csv", "", adminClaims())
	c.Params = gin.Params{{Key: "grade", Value: "4"}, {Key: "section", Value: "2"}}
	handler.Roster(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, rosters.lastSection)
	assert.Equal(t, "csv", rosters.lastFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "grade-4-section-2-roster.csv")
	assert.Equal(t, "No,Student\n1,Ana\n", w.Body.String())
}

func TestSectionHandlerRosterBadSection(t *testing.T) {
	rosters := &rosterMock{}
	handler := NewSectionHandler(&sectionServiceMock{}, &gradeBindingMock{}, rosters)

	c, w := newTestContext(http.MethodGet, "/sections/4/x/roster", "", adminClaims())
	c.Params = gin.Params{{Key: "grade", Value: "4"}, {Key: "section", Value: "x"}}
	handler.Roster(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rosters.lastFormat)
	assert.Zero(t, rosters.lastSection)
}
