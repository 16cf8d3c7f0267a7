package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sd-cohort-api/internal/engine"
	"github.com/noah-isme/sd-cohort-api/internal/models"
	"github.com/noah-isme/sd-cohort-api/internal/repository"
	appErrors "github.com/noah-isme/sd-cohort-api/pkg/errors"
)

// PrimaryBindingRequest sets the binding held on the instructor profile.
// Grades 1-3 take no section or subject.
type PrimaryBindingRequest struct {
	Grade   int     `json:"grade" validate:"required,min=1,max=6"`
	Section *int    `json:"section"`
	Subject *string `json:"subject"`
}

// SectionAssignmentRequest describes a secondary binding with an optional weekly slot.
type SectionAssignmentRequest struct {
	Grade     int      `json:"grade" validate:"required,min=1,max=6"`
	Section   int      `json:"section" validate:"required"`
	Subject   string   `json:"subject" validate:"required"`
	Days      []string `json:"days"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
}

func (r SectionAssignmentRequest) schedule() engine.Schedule {
	return engine.Schedule{Days: r.Days, Start: r.StartTime, End: r.EndTime}
}

// AssignmentService admits instructor bindings through the validator and
// commits them under the instructor and scope locks.
type AssignmentService struct {
	store     atomicStore
	rules     engine.AssignmentValidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs the service.
func NewAssignmentService(store atomicStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		store:     store,
		rules:     engine.NewAssignmentValidator(),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// ListByInstructor returns every binding the instructor holds, primary first.
func (s *AssignmentService) ListByInstructor(ctx context.Context, instructorID string) ([]models.Binding, error) {
	q := s.store.Read()
	if _, err := q.GetInstructor(ctx, instructorID); err != nil {
		return nil, translate(err, "instructor", "load instructor")
	}
	bindings, err := q.ListBindings(ctx, repository.BindingFilter{InstructorID: instructorID})
	if err != nil {
		return nil, translate(err, "binding", "list bindings")
	}
	return bindings, nil
}

// ListByGrade returns the bindings on a grade, or on one section of it.
func (s *AssignmentService) ListByGrade(ctx context.Context, gradeRaw string, section *int) ([]models.Binding, error) {
	grade, err := engine.ParseGrade(gradeRaw)
	if err != nil {
		return nil, err
	}
	if section != nil {
		if err := engine.ValidateSection(*section); err != nil {
			return nil, err
		}
	}
	g := int(grade)
	bindings, err := s.store.Read().ListBindings(ctx, repository.BindingFilter{Grade: &g, Section: section})
	if err != nil {
		return nil, translate(err, "binding", "list bindings")
	}
	return bindings, nil
}

// SetPrimary creates or replaces the instructor's primary binding.
func (s *AssignmentService) SetPrimary(ctx context.Context, actor models.Actor, instructorID string, req PrimaryBindingRequest) (*models.Binding, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid primary binding payload")
	}
	grade := engine.Grade(req.Grade)

	var out models.Binding
	err := s.store.Atomically(ctx, scopeKeys(instructorID, grade, req.Section), func(q repository.Queries) error {
		instructor, err := q.GetInstructor(ctx, instructorID)
		if err != nil {
			return translate(err, "instructor", "load instructor")
		}
		state, err := loadAssignmentState(ctx, q, instructorID, grade, req.Section)
		if err != nil {
			return err
		}
		editing := ""
		if instructor.HasPrimaryBinding() {
			editing = instructor.ID
		}
		decision, err := s.rules.Validate(engine.AssignmentRequest{
			InstructorID: instructorID,
			Kind:         engine.KindPrimary,
			Grade:        grade,
			Section:      req.Section,
			Subject:      req.Subject,
			EditingID:    editing,
		}, state)
		if err != nil {
			return err
		}

		g := int(decision.Grade)
		room := decision.Room
		instructor.AssignedGrade = &g
		instructor.AssignedSection = decision.Section
		instructor.AssignedSubject = decision.Subject
		instructor.AssignedRoom = &room
		if err := q.UpdatePrimaryBinding(ctx, instructor); err != nil {
			return translate(err, "instructor", "update primary binding")
		}
		out, _ = models.PrimaryBinding(instructor)
		return nil
	})
	s.metrics.RecordAdmission(AdmissionBinding, err)
	if err != nil {
		return nil, translate(err, "binding", "set primary binding")
	}

	s.logger.Info("primary binding set",
		zap.String("instructor_id", instructorID),
		zap.Int("grade", out.Grade),
		zap.Intp("section", out.Section),
		zap.Stringp("subject", out.Subject),
	)
	return &out, nil
}

// ClearPrimary removes the primary binding from the instructor profile.
func (s *AssignmentService) ClearPrimary(ctx context.Context, actor models.Actor, instructorID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	err := s.store.Atomically(ctx, []string{repository.InstructorLockKey(instructorID)}, func(q repository.Queries) error {
		instructor, err := q.GetInstructor(ctx, instructorID)
		if err != nil {
			return translate(err, "instructor", "load instructor")
		}
		if !instructor.HasPrimaryBinding() {
			return nil
		}
		instructor.AssignedGrade = nil
		instructor.AssignedSection = nil
		instructor.AssignedSubject = nil
		instructor.AssignedRoom = nil
		return q.UpdatePrimaryBinding(ctx, instructor)
	})
	if err != nil {
		return translate(err, "instructor", "clear primary binding")
	}
	s.logger.Info("primary binding cleared", zap.String("instructor_id", instructorID))
	return nil
}

// AddSecondary admits a new SectionAssignment for a departmentalized section.
func (s *AssignmentService) AddSecondary(ctx context.Context, actor models.Actor, instructorID string, req SectionAssignmentRequest) (*models.SectionAssignment, error) {
	return s.saveSecondary(ctx, actor, instructorID, "", req)
}

// UpdateSecondary re-validates and rewrites an existing SectionAssignment.
func (s *AssignmentService) UpdateSecondary(ctx context.Context, actor models.Actor, instructorID, assignmentID string, req SectionAssignmentRequest) (*models.SectionAssignment, error) {
	return s.saveSecondary(ctx, actor, instructorID, assignmentID, req)
}

func (s *AssignmentService) saveSecondary(ctx context.Context, actor models.Actor, instructorID, assignmentID string, req SectionAssignmentRequest) (*models.SectionAssignment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section assignment payload")
	}
	grade := engine.Grade(req.Grade)
	section := req.Section
	subject := req.Subject

	var out *models.SectionAssignment
	err := s.store.Atomically(ctx, scopeKeys(instructorID, grade, &section), func(q repository.Queries) error {
		if _, err := q.GetInstructor(ctx, instructorID); err != nil {
			return translate(err, "instructor", "load instructor")
		}
		assignment := &models.SectionAssignment{InstructorID: instructorID}
		if assignmentID != "" {
			existing, err := q.GetSectionAssignment(ctx, assignmentID)
			if err != nil {
				return translate(err, "section assignment", "load section assignment")
			}
			if existing.InstructorID != instructorID {
				return appErrors.Clone(appErrors.ErrNotFound, "section assignment not found")
			}
			assignment = existing
		}

		state, err := loadAssignmentState(ctx, q, instructorID, grade, &section)
		if err != nil {
			return err
		}
		decision, err := s.rules.Validate(engine.AssignmentRequest{
			InstructorID: instructorID,
			Kind:         engine.KindSecondary,
			Grade:        grade,
			Section:      &section,
			Subject:      &subject,
			Schedule:     req.schedule(),
			EditingID:    assignmentID,
		}, state)
		if err != nil {
			return err
		}

		applyDecision(assignment, decision)
		if assignmentID == "" {
			err = q.CreateSectionAssignment(ctx, assignment)
		} else {
			err = q.UpdateSectionAssignment(ctx, assignment)
		}
		if err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return appErrors.Clone(appErrors.ErrConflict, "subject already taken in this section")
			}
			return translate(err, "section assignment", "save section assignment")
		}
		out = assignment
		return nil
	})
	s.metrics.RecordAdmission(AdmissionBinding, err)
	if err != nil {
		return nil, translate(err, "section assignment", "save section assignment")
	}

	s.logger.Info("section assignment saved",
		zap.String("instructor_id", instructorID),
		zap.String("assignment_id", out.ID),
		zap.Int("grade", out.Grade),
		zap.Int("section", out.Section),
		zap.String("subject", out.Subject),
	)
	return out, nil
}

// RemoveSecondary deletes a SectionAssignment owned by the instructor.
func (s *AssignmentService) RemoveSecondary(ctx context.Context, actor models.Actor, instructorID, assignmentID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	err := s.store.Atomically(ctx, []string{repository.InstructorLockKey(instructorID)}, func(q repository.Queries) error {
		return q.DeleteSectionAssignment(ctx, instructorID, assignmentID)
	})
	if err != nil {
		return translate(err, "section assignment", "delete section assignment")
	}
	s.logger.Info("section assignment removed", zap.String("instructor_id", instructorID), zap.String("assignment_id", assignmentID))
	return nil
}

// DeleteInstructor removes the instructor and every SectionAssignment they hold.
func (s *AssignmentService) DeleteInstructor(ctx context.Context, actor models.Actor, instructorID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	err := s.store.Atomically(ctx, []string{repository.InstructorLockKey(instructorID)}, func(q repository.Queries) error {
		return q.DeleteInstructor(ctx, instructorID)
	})
	if err != nil {
		return translate(err, "instructor", "delete instructor")
	}
	s.logger.Info("instructor deleted", zap.String("instructor_id", instructorID))
	return nil
}

// scopeKeys locks the instructor plus the grade (grades 1-3) or the section (grades 4-6).
func scopeKeys(instructorID string, grade engine.Grade, section *int) []string {
	keys := []string{repository.InstructorLockKey(instructorID)}
	if grade.Tier() == engine.TierPrimary || section == nil {
		return append(keys, repository.GradeLockKey(int(grade)))
	}
	return append(keys, repository.SectionLockKey(int(grade), *section))
}

func loadAssignmentState(ctx context.Context, q repository.Queries, instructorID string, grade engine.Grade, section *int) (engine.AssignmentState, error) {
	own, err := q.ListBindings(ctx, repository.BindingFilter{InstructorID: instructorID})
	if err != nil {
		return engine.AssignmentState{}, translate(err, "binding", "load instructor bindings")
	}
	g := int(grade)
	filter := repository.BindingFilter{Grade: &g}
	if grade.Tier() == engine.TierDepartmentalized {
		filter.Section = section
	}
	scope, err := q.ListBindings(ctx, filter)
	if err != nil {
		return engine.AssignmentState{}, translate(err, "binding", "load section bindings")
	}
	return engine.AssignmentState{Instructor: own, Scope: scope}, nil
}

func applyDecision(a *models.SectionAssignment, d *engine.AssignmentDecision) {
	a.Grade = int(d.Grade)
	a.Section = *d.Section
	a.Subject = *d.Subject
	a.Room = d.Room
	a.Days = pq.StringArray(d.Schedule.Days)
	a.StartTime = optionalString(d.Schedule.Start)
	a.EndTime = optionalString(d.Schedule.End)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
