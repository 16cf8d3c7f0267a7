package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sd-cohort-api/internal/engine"
	"github.com/noah-isme/sd-cohort-api/internal/models"
	"github.com/noah-isme/sd-cohort-api/internal/repository"
	"github.com/noah-isme/sd-cohort-api/pkg/cache"
	appErrors "github.com/noah-isme/sd-cohort-api/pkg/errors"
)

// SubmitEnrollmentRequest is the intake payload that creates a pending enrollment.
type SubmitEnrollmentRequest struct {
	StudentName  string `json:"student_name" validate:"required"`
	GradeLevel   string `json:"grade_level" validate:"required"`
	ParentName   string `json:"parent_name" validate:"required"`
	ContactEmail string `json:"contact_email" validate:"required,email"`
	ContactPhone string `json:"contact_phone"`
}

// ApproveEnrollmentRequest places an enrollment. Empty Bindings are resolved
// from the section's current instructor bindings.
type ApproveEnrollmentRequest struct {
	Section  int                     `json:"section" validate:"required"`
	Bindings []engine.SubjectBinding `json:"bindings" validate:"dive"`
}

// ReassignEnrollmentRequest moves an enrollment to another section of its grade.
type ReassignEnrollmentRequest struct {
	Section int `json:"section" validate:"required"`
}

// SectionAvailability lists the sections of a grade that can still admit.
type SectionAvailability struct {
	Grade      int                       `json:"grade"`
	Shift      string                    `json:"shift"`
	TimeWindow string                    `json:"time_window"`
	Capacity   int                       `json:"capacity"`
	Sections   []models.SectionOccupancy `json:"sections"`
}

// EnrollmentService runs enrollment transitions through the state machine and
// commits each one, with its capacity check, under the section lock.
type EnrollmentService struct {
	store     atomicStore
	capacity  engine.CapacityManager
	machine   *engine.EnrollmentStateMachine
	cache     *CacheService
	publisher noticePublisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// EnrollmentConfig carries the tunable admission policy.
type EnrollmentConfig struct {
	Capacity     int
	StrictReject bool
}

// NewEnrollmentService constructs the service. publisher may be nil.
func NewEnrollmentService(store atomicStore, cfg EnrollmentConfig, cacheSvc *CacheService, publisher noticePublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := engine.RejectOpen
	if cfg.StrictReject {
		policy = engine.RejectPendingOnly
	}
	capacity := engine.NewCapacityManager(cfg.Capacity)
	return &EnrollmentService{
		store:     store,
		capacity:  capacity,
		machine:   engine.NewEnrollmentStateMachine(capacity, policy),
		cache:     cacheSvc,
		publisher: publisher,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Submit records a pending enrollment. A parent submitting for themselves owns the record.
func (s *EnrollmentService) Submit(ctx context.Context, actor models.Actor, req SubmitEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	grade, err := engine.ParseGrade(req.GradeLevel)
	if err != nil {
		return nil, err
	}
	enrollment := &models.Enrollment{
		StudentName:  strings.TrimSpace(req.StudentName),
		GradeLevel:   grade.String(),
		Status:       models.EnrollmentStatusPending,
		ParentName:   strings.TrimSpace(req.ParentName),
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		ContactPhone: strings.TrimSpace(req.ContactPhone),
	}
	if actor.Role == models.RoleParent && actor.UserID != "" {
		owner := actor.UserID
		enrollment.AccountID = &owner
	}
	if err := s.store.Read().CreateEnrollment(ctx, enrollment); err != nil {
		return nil, translate(err, "enrollment", "create enrollment")
	}
	s.logger.Info("enrollment submitted", zap.String("enrollment_id", enrollment.ID), zap.String("grade", enrollment.GradeLevel))
	return enrollment, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	if filter.GradeLevel != "" {
		grade, err := engine.ParseGrade(filter.GradeLevel)
		if err != nil {
			return nil, nil, err
		}
		filter.GradeLevel = grade.String()
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment status")
	}
	enrollments, total, err := s.store.Read().ListEnrollments(ctx, filter)
	if err != nil {
		return nil, nil, translate(err, "enrollment", "list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an enrollment with its subject enrollment history.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	q := s.store.Read()
	enrollment, err := q.GetEnrollment(ctx, id)
	if err != nil {
		return nil, translate(err, "enrollment", "load enrollment")
	}
	subjects, err := q.ListSubjectEnrollments(ctx, id)
	if err != nil {
		return nil, translate(err, "subject enrollment", "load subject enrollments")
	}
	return &models.EnrollmentDetail{Enrollment: *enrollment, Subjects: subjects}, nil
}

// Approve places a pending enrollment in a section and records its subject
// enrollments. The occupancy count and the write share one atomic unit.
func (s *EnrollmentService) Approve(ctx context.Context, actor models.Actor, id string, req ApproveEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}
	grade, err := s.gradeOf(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *engine.ApprovalResult
	keys := []string{repository.EnrollmentLockKey(id), repository.SectionLockKey(int(grade), req.Section)}
	err = s.store.Atomically(ctx, keys, func(q repository.Queries) error {
		enrollment, err := q.GetEnrollment(ctx, id)
		if err != nil {
			return translate(err, "enrollment", "load enrollment")
		}
		if _, err := s.machine.CheckApprovable(*enrollment, req.Section); err != nil {
			return err
		}
		bindings, err := s.resolveBindings(ctx, q, grade, req.Section, req.Bindings)
		if err != nil {
			return err
		}
		occupancy, err := q.CountApproved(ctx, enrollment.GradeLevel, req.Section, enrollment.ID)
		if err != nil {
			return translate(err, "enrollment", "count section occupancy")
		}
		result, err = s.machine.Approve(*enrollment, req.Section, bindings, occupancy)
		if err != nil {
			return err
		}
		if err := q.UpdateEnrollmentPlacement(ctx, &result.Enrollment); err != nil {
			return translate(err, "enrollment", "update enrollment")
		}
		if err := q.CreateSubjectEnrollments(ctx, result.Subjects); err != nil {
			return translate(err, "subject enrollment", "record subject enrollments")
		}
		return nil
	})
	s.metrics.RecordAdmission(AdmissionEnrollment, err)
	if err != nil {
		return nil, translate(err, "enrollment", "approve enrollment")
	}

	s.logger.Info("enrollment approved",
		zap.String("enrollment_id", id),
		zap.String("grade", result.Enrollment.GradeLevel),
		zap.Int("section", req.Section),
		zap.Int("subjects", len(result.Subjects)),
	)
	s.invalidateSections(ctx, grade)
	if s.publisher != nil {
		s.publisher.PublishApproval(ctx, result.Notice)
	}
	return &models.EnrollmentDetail{Enrollment: result.Enrollment, Subjects: result.Subjects}, nil
}

// Reject marks an enrollment rejected and clears its section.
func (s *EnrollmentService) Reject(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var (
		rejected    models.Enrollment
		notice      models.RejectionNotice
		wasApproved bool
	)
	err := s.store.Atomically(ctx, []string{repository.EnrollmentLockKey(id)}, func(q repository.Queries) error {
		enrollment, err := q.GetEnrollment(ctx, id)
		if err != nil {
			return translate(err, "enrollment", "load enrollment")
		}
		wasApproved = enrollment.Status == models.EnrollmentStatusApproved
		rejected, notice, err = s.machine.Reject(*enrollment)
		if err != nil {
			return err
		}
		return q.UpdateEnrollmentPlacement(ctx, &rejected)
	})
	if err != nil {
		return nil, translate(err, "enrollment", "reject enrollment")
	}

	s.logger.Info("enrollment rejected", zap.String("enrollment_id", id), zap.Bool("was_approved", wasApproved))
	if wasApproved {
		if grade, err := engine.ParseGrade(rejected.GradeLevel); err == nil {
			s.invalidateSections(ctx, grade)
		}
	}
	if s.publisher != nil {
		s.publisher.PublishRejection(ctx, notice)
	}
	return &rejected, nil
}

// RemoveFromSection returns an approved enrollment to pending. Its subject
// enrollment history is kept.
func (s *EnrollmentService) RemoveFromSection(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var out models.Enrollment
	err := s.store.Atomically(ctx, []string{repository.EnrollmentLockKey(id)}, func(q repository.Queries) error {
		enrollment, err := q.GetEnrollment(ctx, id)
		if err != nil {
			return translate(err, "enrollment", "load enrollment")
		}
		out, err = s.machine.RemoveFromSection(*enrollment)
		if err != nil {
			return err
		}
		return q.UpdateEnrollmentPlacement(ctx, &out)
	})
	if err != nil {
		return nil, translate(err, "enrollment", "remove enrollment from section")
	}

	s.logger.Info("enrollment removed from section", zap.String("enrollment_id", id))
	if grade, err := engine.ParseGrade(out.GradeLevel); err == nil {
		s.invalidateSections(ctx, grade)
	}
	return &out, nil
}

// Reassign moves an enrollment to another section of its grade and forces it
// to approved. A pending enrollment qualifies only when it was approved
// before and still carries subject enrollments.
func (s *EnrollmentService) Reassign(ctx context.Context, actor models.Actor, id string, req ReassignEnrollmentRequest) (*models.Enrollment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reassign payload")
	}
	grade, err := s.gradeOf(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		out     models.Enrollment
		changed bool
	)
	keys := []string{repository.EnrollmentLockKey(id), repository.SectionLockKey(int(grade), req.Section)}
	err = s.store.Atomically(ctx, keys, func(q repository.Queries) error {
		enrollment, err := q.GetEnrollment(ctx, id)
		if err != nil {
			return translate(err, "enrollment", "load enrollment")
		}
		if enrollment.Status == models.EnrollmentStatusPending {
			history, err := q.ListSubjectEnrollments(ctx, id)
			if err != nil {
				return translate(err, "subject enrollment", "load subject enrollments")
			}
			if len(history) == 0 {
				return appErrors.Clone(appErrors.ErrInvalidState, "enrollment has never been approved; approve it instead")
			}
		}
		occupancy, err := q.CountApproved(ctx, enrollment.GradeLevel, req.Section, enrollment.ID)
		if err != nil {
			return translate(err, "enrollment", "count section occupancy")
		}
		out, changed, err = s.machine.Reassign(*enrollment, req.Section, occupancy)
		if err != nil || !changed {
			return err
		}
		return q.UpdateEnrollmentPlacement(ctx, &out)
	})
	s.metrics.RecordAdmission(AdmissionEnrollment, err)
	if err != nil {
		return nil, translate(err, "enrollment", "reassign enrollment")
	}

	if changed {
		s.logger.Info("enrollment reassigned", zap.String("enrollment_id", id), zap.String("grade", out.GradeLevel), zap.Int("section", req.Section))
		s.invalidateSections(ctx, grade)
	}
	return &out, nil
}

// AvailableSections lists the sections of a grade below capacity. Results are
// cached for display only; admissions always recount inside their atomic unit.
func (s *EnrollmentService) AvailableSections(ctx context.Context, gradeRaw string) (*SectionAvailability, error) {
	grade, err := engine.ParseGrade(gradeRaw)
	if err != nil {
		return nil, err
	}
	key := sectionsCacheKey(grade)
	var cached SectionAvailability
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	counts, err := s.store.Read().CountApprovedBySection(ctx, grade.String())
	if err != nil {
		return nil, translate(err, "section", "count section occupancy")
	}
	shift := grade.Shift()
	out := &SectionAvailability{
		Grade:      int(grade),
		Shift:      string(shift),
		TimeWindow: shift.TimeWindow(),
		Capacity:   s.capacity.Ceiling(),
		Sections:   s.capacity.AvailableSections(counts),
	}
	s.cache.Set(ctx, key, out, 0)
	return out, nil
}

func (s *EnrollmentService) gradeOf(ctx context.Context, id string) (engine.Grade, error) {
	enrollment, err := s.store.Read().GetEnrollment(ctx, id)
	if err != nil {
		return 0, translate(err, "enrollment", "load enrollment")
	}
	return engine.ParseGrade(enrollment.GradeLevel)
}

// resolveBindings fills bindings from the section registry when none are given,
// and otherwise requires each requested instructor to hold the matching registry
// binding. Completeness is left to the state machine.
func (s *EnrollmentService) resolveBindings(ctx context.Context, q repository.Queries, grade engine.Grade, section int, requested []engine.SubjectBinding) ([]engine.SubjectBinding, error) {
	g := int(grade)
	filter := repository.BindingFilter{Grade: &g}
	if grade.Tier() == engine.TierDepartmentalized {
		filter.Section = &section
	}
	registry, err := q.ListBindings(ctx, filter)
	if err != nil {
		return nil, translate(err, "binding", "load section bindings")
	}

	if len(requested) == 0 {
		return bindingsFromRegistry(grade, registry), nil
	}
	return engine.VerifyBindings(grade, section, requested, registry)
}

func bindingsFromRegistry(grade engine.Grade, registry []models.Binding) []engine.SubjectBinding {
	if grade.Tier() == engine.TierPrimary {
		if len(registry) == 0 {
			return nil
		}
		b := registry[0]
		return []engine.SubjectBinding{{Subject: engine.AllSubjects, InstructorID: b.InstructorID, InstructorName: b.InstructorName}}
	}
	seen := make(map[string]struct{}, len(registry))
	out := make([]engine.SubjectBinding, 0, len(registry))
	for _, b := range registry {
		subject := b.SubjectName()
		if subject == "" {
			continue
		}
		if _, dup := seen[subject]; dup {
			continue
		}
		seen[subject] = struct{}{}
		out = append(out, engine.SubjectBinding{Subject: subject, InstructorID: b.InstructorID, InstructorName: b.InstructorName})
	}
	return out
}

func (s *EnrollmentService) invalidateSections(ctx context.Context, grade engine.Grade) {
	s.cache.Invalidate(ctx, sectionsCacheKey(grade))
}

func sectionsCacheKey(grade engine.Grade) string {
	return cache.Key("sections", grade.String())
}
