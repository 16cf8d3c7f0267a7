package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltmpl "html/template"
	"net/mail"
	texttmpl "text/template"

	"go.uber.org/zap"

	"github.com/noah-isme/sd-cohort-api/internal/models"
	"github.com/noah-isme/sd-cohort-api/pkg/jobs"
	"github.com/noah-isme/sd-cohort-api/pkg/notify"
)

// Notice job types, also the template names.
const (
	NoticeApproval  = "approval"
	NoticeRejection = "rejection"
)

var noticeSubjects = map[string]string{
	NoticeApproval:  "Enrollment approved",
	NoticeRejection: "Enrollment update",
}

//go:embed templates/*
var noticeTemplates embed.FS

// NotificationService renders approval and rejection notices and delivers
// them from a worker queue. Publishing never fails the caller.
type NotificationService struct {
	notifier notify.Notifier
	queue    *jobs.Queue
	text     *texttmpl.Template
	html     *htmltmpl.Template
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService parses the embedded templates and builds the delivery queue.
func NewNotificationService(notifier notify.Notifier, cfg jobs.QueueConfig, metrics *MetricsService, logger *zap.Logger) (*NotificationService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	text, err := texttmpl.New("notices").Option("missingkey=error").ParseFS(noticeTemplates, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	html, err := htmltmpl.New("notices").Option("missingkey=error").ParseFS(noticeTemplates, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	s := &NotificationService{
		notifier: notifier,
		text:     text,
		html:     html,
		metrics:  metrics,
		logger:   logger,
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	s.queue = jobs.NewQueue("notifications", s.handle, cfg)
	return s, nil
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop halts the workers. Undelivered notices are dropped.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// PublishApproval queues an approval notice.
func (s *NotificationService) PublishApproval(ctx context.Context, notice models.ApprovalNotice) {
	s.publish(NoticeApproval, notice.EnrollmentID, notice.ToAddress, notice)
}

// PublishRejection queues a rejection notice.
func (s *NotificationService) PublishRejection(ctx context.Context, notice models.RejectionNotice) {
	s.publish(NoticeRejection, notice.EnrollmentID, notice.ToAddress, notice)
}

func (s *NotificationService) publish(kind, enrollmentID, to string, payload interface{}) {
	if to == "" {
		s.logger.Info("notice skipped: no contact email", zap.String("type", kind), zap.String("enrollment_id", enrollmentID))
		return
	}
	if err := s.queue.Enqueue(jobs.Job{Type: kind, Payload: payload}); err != nil {
		s.metrics.RecordNotification(kind, err)
		s.logger.Warn("notice not queued", zap.String("type", kind), zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	msg, err := s.render(job)
	if err != nil {
		s.metrics.RecordNotification(job.Type, err)
		s.logger.Error("notice render failed", zap.String("type", job.Type), zap.Error(err))
		return nil
	}
	err = s.notifier.Send(ctx, msg)
	s.metrics.RecordNotification(job.Type, err)
	return err
}

func (s *NotificationService) render(job jobs.Job) (notify.Message, error) {
	var to mail.Address
	switch notice := job.Payload.(type) {
	case models.ApprovalNotice:
		to = mail.Address{Name: notice.ToName, Address: notice.ToAddress}
	case models.RejectionNotice:
		to = mail.Address{Name: notice.ToName, Address: notice.ToAddress}
	default:
		return notify.Message{}, fmt.Errorf("unsupported notice payload %T", job.Payload)
	}

	var text, html bytes.Buffer
	if err := s.text.ExecuteTemplate(&text, job.Type+".txt", job.Payload); err != nil {
		return notify.Message{}, fmt.Errorf("render %s text: %w", job.Type, err)
	}
	if err := s.html.ExecuteTemplate(&html, job.Type+".gohtml", job.Payload); err != nil {
		return notify.Message{}, fmt.Errorf("render %s html: %w", job.Type, err)
	}
	return notify.Message{
		To:      to,
		Subject: noticeSubjects[job.Type],
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
