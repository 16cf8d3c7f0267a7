package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/sd-cohort-api/internal/engine"
	"github.com/noah-isme/sd-cohort-api/internal/models"
	"github.com/noah-isme/sd-cohort-api/internal/repository"
	appErrors "github.com/noah-isme/sd-cohort-api/pkg/errors"
	"github.com/noah-isme/sd-cohort-api/pkg/export"
)

// ExportResult is a rendered document ready to stream.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders section rosters.
type ExportService struct {
	store  atomicStore
	logger *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(store atomicStore, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{store: store, logger: logger}
}

// Roster renders the approved enrollments of one section as csv or pdf.
func (s *ExportService) Roster(ctx context.Context, gradeRaw string, section int, format string) (*ExportResult, error) {
	grade, err := engine.ParseGrade(gradeRaw)
	if err != nil {
		return nil, err
	}
	if err := engine.ValidateSection(section); err != nil {
		return nil, err
	}
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	dataset, err := s.buildRosterDataset(ctx, grade, section)
	if err != nil {
		return nil, err
	}
	data, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	s.logger.Debug("roster exported", zap.Int("grade", int(grade)), zap.Int("section", section), zap.Int("students", len(dataset.Rows)))
	return &ExportResult{
		Filename:    fmt.Sprintf("grade-%d-section-%d-roster.%s", grade, section, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func (s *ExportService) buildRosterDataset(ctx context.Context, grade engine.Grade, section int) (export.Dataset, error) {
	q := s.store.Read()
	students, err := q.ListRoster(ctx, grade.String(), section)
	if err != nil {
		return export.Dataset{}, translate(err, "roster", "load roster")
	}

	g := int(grade)
	filter := repository.BindingFilter{Grade: &g}
	if grade.Tier() == engine.TierDepartmentalized {
		filter.Section = &section
	}
	bindings, err := q.ListBindings(ctx, filter)
	if err != nil {
		return export.Dataset{}, translate(err, "binding", "load section bindings")
	}

	rows := make([]map[string]string, 0, len(students))
	for i, e := range students {
		rows = append(rows, map[string]string{
			"No.":           strconv.Itoa(i + 1),
			"Student":       e.StudentName,
			"Parent":        e.ParentName,
			"Contact Email": e.ContactEmail,
			"Contact Phone": e.ContactPhone,
			"Approved At":   e.UpdatedAt.Format("2006-01-02"),
		})
	}

	shift := grade.Shift()
	return export.Dataset{
		Title:   fmt.Sprintf("Grade %d Section %d | %s | %s %s | %s", grade, section, engine.RoomFor(grade, &section), shift, shift.TimeWindow(), rosterStaff(bindings)),
		Headers: []string{"No.", "Student", "Parent", "Contact Email", "Contact Phone", "Approved At"},
		Rows:    rows,
	}, nil
}

func rosterStaff(bindings []models.Binding) string {
	if len(bindings) == 0 {
		return "no instructors bound"
	}
	staff := ""
	for i, b := range bindings {
		if i > 0 {
			staff += ", "
		}
		if subject := b.SubjectName(); subject != "" {
			staff += subject + ": "
		}
		staff += b.InstructorName
	}
	return staff
}
