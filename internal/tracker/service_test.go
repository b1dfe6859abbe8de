package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rossigee/jobtracker/internal/metrics"
	"github.com/rossigee/jobtracker/internal/storage"
	pkgerrors "github.com/rossigee/jobtracker/pkg/errors"
	"github.com/rossigee/jobtracker/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockStore records calls and returns canned results
type MockStore struct {
	calls   []string
	failErr error

	lastCompany string
	lastRole    string
	lastLink    string
	lastStatus  string
	lastChannel string
	lastType    types.OutreachType
}

func (m *MockStore) record(call string) error {
	m.calls = append(m.calls, call)
	return m.failErr
}

func (m *MockStore) CreateApplication(_ context.Context, company, role, link string) (*types.Application, error) {
	m.lastCompany, m.lastRole, m.lastLink = company, role, link
	if err := m.record("CreateApplication"); err != nil {
		return nil, err
	}
	return &types.Application{ID: 1, Company: company, Role: role, CreatedAt: time.Now()}, nil
}

func (m *MockStore) GetApplication(_ context.Context, id int64) (*types.Application, error) {
	if err := m.record("GetApplication"); err != nil {
		return nil, err
	}
	return &types.Application{ID: id}, nil
}

func (m *MockStore) ListApplications(_ context.Context, _ types.ListApplicationsFilter) ([]*types.Application, error) {
	if err := m.record("ListApplications"); err != nil {
		return nil, err
	}
	return []*types.Application{}, nil
}

func (m *MockStore) CountApplications(_ context.Context) (int, error) {
	if err := m.record("CountApplications"); err != nil {
		return 0, err
	}
	return 0, nil
}

func (m *MockStore) DeleteApplication(_ context.Context, _ int64) error {
	return m.record("DeleteApplication")
}

func (m *MockStore) AppendStatus(_ context.Context, applicationID int64, status string) (*types.StatusHistoryEntry, error) {
	m.lastStatus = status
	if err := m.record("AppendStatus"); err != nil {
		return nil, err
	}
	return &types.StatusHistoryEntry{ID: 1, ApplicationID: applicationID, Status: status}, nil
}

func (m *MockStore) GetStatusHistory(_ context.Context, _ int64) ([]*types.StatusHistoryEntry, error) {
	if err := m.record("GetStatusHistory"); err != nil {
		return nil, err
	}
	return []*types.StatusHistoryEntry{}, nil
}

func (m *MockStore) LatestStatus(_ context.Context, _ int64) (*types.StatusHistoryEntry, bool, error) {
	if err := m.record("LatestStatus"); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

func (m *MockStore) RecordOutreach(
	_ context.Context,
	applicationID int64,
	channel string,
	outreachType types.OutreachType,
) (*types.OutreachEvent, error) {
	m.lastChannel, m.lastType = channel, outreachType
	if err := m.record("RecordOutreach"); err != nil {
		return nil, err
	}
	return &types.OutreachEvent{ID: 1, ApplicationID: applicationID, Channel: channel, OutreachType: outreachType}, nil
}

func (m *MockStore) GetOutreachHistory(_ context.Context, _ int64) ([]*types.OutreachEvent, error) {
	if err := m.record("GetOutreachHistory"); err != nil {
		return nil, err
	}
	return []*types.OutreachEvent{}, nil
}

func newMetrics(t *testing.T) *metrics.OperationMetrics {
	t.Helper()
	return metrics.NewOperationMetrics(prometheus.NewRegistry())
}

func TestCreateApplication_NormalizesAndDelegates(t *testing.T) {
	store := &MockStore{}
	svc := NewService(store, nil)

	app, err := svc.CreateApplication(context.Background(), types.CreateApplicationRequest{
		Company:         " Acme ",
		Role:            "Engineer\n",
		ApplicationLink: "  ",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), app.ID)
	assert.Equal(t, []string{"CreateApplication"}, store.calls)
	assert.Equal(t, "Acme", store.lastCompany)
	assert.Equal(t, "Engineer", store.lastRole)
	assert.Equal(t, "", store.lastLink)
}

func TestCreateApplication_ValidationBeforeStore(t *testing.T) {
	store := &MockStore{}
	svc := NewService(store, nil)

	_, err := svc.CreateApplication(context.Background(), types.CreateApplicationRequest{
		Company: "",
		Role:    "  ",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Empty(t, store.calls)

	details := pkgerrors.As(err).Details()
	assert.Equal(t, "is required", details["company"])
	assert.Equal(t, "is required", details["role"])
}

func TestAppendStatus_ValidationBeforeStore(t *testing.T) {
	store := &MockStore{}
	svc := NewService(store, nil)

	_, err := svc.AppendStatus(context.Background(), types.AppendStatusRequest{ApplicationID: 1, Status: " "})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Empty(t, store.calls)
}

func TestRecordOutreach_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     types.RecordOutreachRequest
		field   string
		message string
	}{
		{
			name:    "unknown type",
			req:     types.RecordOutreachRequest{ApplicationID: 1, Channel: "email", OutreachType: "cold_call"},
			field:   "outreach_type",
			message: "must be one of initial follow_up",
		},
		{
			name:    "missing type",
			req:     types.RecordOutreachRequest{ApplicationID: 1, Channel: "email"},
			field:   "outreach_type",
			message: "is required",
		},
		{
			name:    "missing channel",
			req:     types.RecordOutreachRequest{ApplicationID: 1, OutreachType: types.OutreachInitial},
			field:   "channel",
			message: "is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockStore{}
			svc := NewService(store, nil)

			_, err := svc.RecordOutreach(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
			assert.Equal(t, tt.message, pkgerrors.As(err).Details()[tt.field])
			assert.Empty(t, store.calls)
		})
	}
}

func TestRecordOutreach_Delegates(t *testing.T) {
	store := &MockStore{}
	svc := NewService(store, nil)

	event, err := svc.RecordOutreach(context.Background(), types.RecordOutreachRequest{
		ApplicationID: 3,
		Channel:       " LinkedIn ",
		OutreachType:  " follow_up ",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), event.ApplicationID)
	assert.Equal(t, "LinkedIn", store.lastChannel)
	assert.Equal(t, types.OutreachFollowUp, store.lastType)
}

func TestStoreErrorsKeepTheirCode(t *testing.T) {
	store := &MockStore{failErr: pkgerrors.New(pkgerrors.CodeNotFound, "application not found: 9")}
	svc := NewService(store, nil)

	_, err := svc.GetStatusHistory(context.Background(), 9)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestUntypedStoreErrorsBecomeStorageErrors(t *testing.T) {
	cause := errors.New("disk I/O error")
	store := &MockStore{failErr: cause}
	svc := NewService(store, nil)

	_, err := svc.GetApplication(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsStorage(err))
	assert.ErrorIs(t, err, cause)
}

func TestOperationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := &MockStore{}
	svc := NewService(store, metrics.NewOperationMetrics(reg))
	ctx := context.Background()

	_, err := svc.AppendStatus(ctx, types.AppendStatusRequest{ApplicationID: 1, Status: "applied"})
	require.NoError(t, err)
	_, err = svc.AppendStatus(ctx, types.AppendStatusRequest{ApplicationID: 1})
	require.Error(t, err)

	store.failErr = pkgerrors.New(pkgerrors.CodeNotFound, "application not found: 1")
	_, err = svc.AppendStatus(ctx, types.AppendStatusRequest{ApplicationID: 1, Status: "applied"})
	require.Error(t, err)

	expected := `
# HELP tracker_operations_total Tracker operations by outcome.
# TYPE tracker_operations_total counter
tracker_operations_total{operation="append_status",result="NOT_FOUND"} 1
tracker_operations_total{operation="append_status",result="VALIDATION_ERROR"} 1
tracker_operations_total{operation="append_status",result="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tracker_operations_total"))
}

func TestServiceOverSQLiteStore(t *testing.T) {
	st, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	defer func() {
		_ = st.Close() // Ignore error in test
	}()

	svc := NewService(st, newMetrics(t))
	ctx := context.Background()

	_, err = svc.CreateApplication(ctx, types.CreateApplicationRequest{Company: "", Role: "X"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))

	count, err := svc.CountApplications(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	app, err := svc.CreateApplication(ctx, types.CreateApplicationRequest{Company: "Acme", Role: "Engineer"})
	require.NoError(t, err)

	_, err = svc.AppendStatus(ctx, types.AppendStatusRequest{ApplicationID: app.ID, Status: "applied"})
	require.NoError(t, err)
	_, err = svc.RecordOutreach(ctx, types.RecordOutreachRequest{
		ApplicationID: app.ID,
		Channel:       "email",
		OutreachType:  types.OutreachInitial,
	})
	require.NoError(t, err)

	latest, ok, err := svc.LatestStatus(ctx, app.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "applied", latest.Status)

	events, err := svc.GetOutreachHistory(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	err = svc.DeleteApplication(ctx, app.ID)
	assert.True(t, pkgerrors.IsConflict(err))

	_, err = svc.AppendStatus(ctx, types.AppendStatusRequest{ApplicationID: 999, Status: "applied"})
	assert.True(t, pkgerrors.IsNotFound(err))
}
