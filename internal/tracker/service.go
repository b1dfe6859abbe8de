// Package tracker is the access layer over the application store and its
// status and outreach logs. It validates requests before any write, tags each
// operation with an id for the logs and records operation metrics.
package tracker

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rossigee/jobtracker/internal/metrics"
	pkgerrors "github.com/rossigee/jobtracker/pkg/errors"
	"github.com/rossigee/jobtracker/pkg/types"
	"github.com/sirupsen/logrus"
)

// Operation names used in logs and metric labels
const (
	OpCreateApplication  = "create_application"
	OpGetApplication     = "get_application"
	OpListApplications   = "list_applications"
	OpCountApplications  = "count_applications"
	OpDeleteApplication  = "delete_application"
	OpAppendStatus       = "append_status"
	OpGetStatusHistory   = "get_status_history"
	OpLatestStatus       = "latest_status"
	OpRecordOutreach     = "record_outreach"
	OpGetOutreachHistory = "get_outreach_history"
)

// Store is the persistence the service delegates to
type Store interface {
	CreateApplication(ctx context.Context, company, role, link string) (*types.Application, error)
	GetApplication(ctx context.Context, id int64) (*types.Application, error)
	ListApplications(ctx context.Context, filter types.ListApplicationsFilter) ([]*types.Application, error)
	CountApplications(ctx context.Context) (int, error)
	DeleteApplication(ctx context.Context, id int64) error
	AppendStatus(ctx context.Context, applicationID int64, status string) (*types.StatusHistoryEntry, error)
	GetStatusHistory(ctx context.Context, applicationID int64) ([]*types.StatusHistoryEntry, error)
	LatestStatus(ctx context.Context, applicationID int64) (*types.StatusHistoryEntry, bool, error)
	RecordOutreach(
		ctx context.Context,
		applicationID int64,
		channel string,
		outreachType types.OutreachType,
	) (*types.OutreachEvent, error)
	GetOutreachHistory(ctx context.Context, applicationID int64) ([]*types.OutreachEvent, error)
}

// Service exposes the tracker operations
type Service struct {
	store    Store
	metrics  *metrics.OperationMetrics
	validate *validator.Validate
}

// NewService creates a tracker service. m may be nil.
func NewService(store Store, m *metrics.OperationMetrics) *Service {
	return &Service{
		store:    store,
		metrics:  m,
		validate: newValidator(),
	}
}

// CreateApplication validates and stores a new application
func (s *Service) CreateApplication(ctx context.Context, req types.CreateApplicationRequest) (*types.Application, error) {
	var app *types.Application
	err := s.run(OpCreateApplication, 0, func() error {
		req.Normalize()
		if err := s.validateRequest(req); err != nil {
			return err
		}
		var err error
		app, err = s.store.CreateApplication(ctx, req.Company, req.Role, req.ApplicationLink)
		return err
	})
	return app, err
}

// GetApplication returns one application
func (s *Service) GetApplication(ctx context.Context, id int64) (*types.Application, error) {
	var app *types.Application
	err := s.run(OpGetApplication, id, func() error {
		var err error
		app, err = s.store.GetApplication(ctx, id)
		return err
	})
	return app, err
}

// ListApplications returns applications oldest first
func (s *Service) ListApplications(ctx context.Context, filter types.ListApplicationsFilter) ([]*types.Application, error) {
	var apps []*types.Application
	err := s.run(OpListApplications, 0, func() error {
		var err error
		apps, err = s.store.ListApplications(ctx, filter)
		return err
	})
	return apps, err
}

// CountApplications returns the number of applications
func (s *Service) CountApplications(ctx context.Context) (int, error) {
	var count int
	err := s.run(OpCountApplications, 0, func() error {
		var err error
		count, err = s.store.CountApplications(ctx)
		return err
	})
	return count, err
}

// DeleteApplication removes an application without history
func (s *Service) DeleteApplication(ctx context.Context, id int64) error {
	return s.run(OpDeleteApplication, id, func() error {
		return s.store.DeleteApplication(ctx, id)
	})
}

// AppendStatus records a status transition
func (s *Service) AppendStatus(ctx context.Context, req types.AppendStatusRequest) (*types.StatusHistoryEntry, error) {
	var entry *types.StatusHistoryEntry
	err := s.run(OpAppendStatus, req.ApplicationID, func() error {
		req.Normalize()
		if err := s.validateRequest(req); err != nil {
			return err
		}
		var err error
		entry, err = s.store.AppendStatus(ctx, req.ApplicationID, req.Status)
		return err
	})
	return entry, err
}

// GetStatusHistory returns the status entries of an application, oldest first
func (s *Service) GetStatusHistory(ctx context.Context, applicationID int64) ([]*types.StatusHistoryEntry, error) {
	var entries []*types.StatusHistoryEntry
	err := s.run(OpGetStatusHistory, applicationID, func() error {
		var err error
		entries, err = s.store.GetStatusHistory(ctx, applicationID)
		return err
	})
	return entries, err
}

// LatestStatus returns the newest status entry, if any
func (s *Service) LatestStatus(ctx context.Context, applicationID int64) (*types.StatusHistoryEntry, bool, error) {
	var entry *types.StatusHistoryEntry
	var ok bool
	err := s.run(OpLatestStatus, applicationID, func() error {
		var err error
		entry, ok, err = s.store.LatestStatus(ctx, applicationID)
		return err
	})
	return entry, ok, err
}

// RecordOutreach records an outreach attempt
func (s *Service) RecordOutreach(ctx context.Context, req types.RecordOutreachRequest) (*types.OutreachEvent, error) {
	var event *types.OutreachEvent
	err := s.run(OpRecordOutreach, req.ApplicationID, func() error {
		req.Normalize()
		if err := s.validateRequest(req); err != nil {
			return err
		}
		var err error
		event, err = s.store.RecordOutreach(ctx, req.ApplicationID, req.Channel, req.OutreachType)
		return err
	})
	return event, err
}

// GetOutreachHistory returns the outreach events of an application, oldest first
func (s *Service) GetOutreachHistory(ctx context.Context, applicationID int64) ([]*types.OutreachEvent, error) {
	var events []*types.OutreachEvent
	err := s.run(OpGetOutreachHistory, applicationID, func() error {
		var err error
		events, err = s.store.GetOutreachHistory(ctx, applicationID)
		return err
	})
	return events, err
}

// run executes one operation, logging and measuring it. Errors that do not
// carry a code are reported as storage failures.
func (s *Service) run(op string, applicationID int64, fn func() error) error {
	opID := uuid.NewString()
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	entry := logrus.WithFields(logrus.Fields{
		"op":       op,
		"op_id":    opID,
		"duration": elapsed,
	})
	if applicationID != 0 {
		entry = entry.WithField("application_id", applicationID)
	}

	if err == nil {
		entry.Debug("Tracker operation completed")
		s.metrics.Observe(op, metrics.ResultSuccess, elapsed)
		return nil
	}

	code := pkgerrors.CodeOf(err)
	if code == "" {
		code = pkgerrors.CodeStorage
		err = pkgerrors.Wrap(code, err, op+" failed")
	}

	entry = entry.WithError(err).WithField("code", code)
	if pkgerrors.MetadataFor(code).Retryable {
		entry.Error("Tracker operation failed")
	} else {
		entry.Warn("Tracker operation rejected")
	}
	s.metrics.Observe(op, string(code), elapsed)

	return err
}
