package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	pkgerrors "github.com/rossigee/jobtracker/pkg/errors"
	"github.com/rossigee/jobtracker/pkg/types"
	"github.com/sirupsen/logrus"
)

const (
	defaultListLimit = 100
	maxListLimit     = 10000
)

const applicationColumns = "application_id, company, role, application_link, created_at"

// CreateApplication validates and persists a new application. An empty link is stored as NULL.
func (s *Store) CreateApplication(ctx context.Context, company, role, link string) (*types.Application, error) {
	company, err := requireText("company", company)
	if err != nil {
		return nil, err
	}
	role, err = requireText("role", role)
	if err != nil {
		return nil, err
	}

	var linkValue *string
	if trimmed := strings.TrimSpace(link); trimmed != "" {
		linkValue = &trimmed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	app := &types.Application{
		Company:         company,
		Role:            role,
		ApplicationLink: linkValue,
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		createdAt, err := s.nextTimestamp(ctx, tx, "SELECT MAX(created_at) FROM applications")
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO applications (company, role, application_link, created_at)
			 VALUES (?, ?, ?, ?)`,
			company,
			role,
			linkValue,
			createdAt,
		)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to insert application")
		}

		id, err := res.LastInsertId()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to read application id")
		}

		app.ID = id
		app.CreatedAt = fromUnixMilli(createdAt)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"application_id": app.ID,
		"company":        app.Company,
	}).Debug("Created application")

	return app, nil
}

// GetApplication retrieves an application by ID
func (s *Store) GetApplication(ctx context.Context, id int64) (*types.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, err := scanApplication(s.db.QueryRowContext(ctx,
		"SELECT "+applicationColumns+" FROM applications WHERE application_id = ?",
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, applicationNotFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to query application")
	}

	return app, nil
}

// ListApplications retrieves applications ordered by creation time, oldest first
func (s *Store) ListApplications(ctx context.Context, filter types.ListApplicationsFilter) ([]*types.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit // Cap limit to prevent excessive queries
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	query := "SELECT " + applicationColumns + " FROM applications"
	args := []any{}

	if company := strings.TrimSpace(filter.Company); company != "" {
		query += " WHERE company = ? COLLATE NOCASE"
		args = append(args, company)
	}

	query += " ORDER BY created_at ASC, application_id ASC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to query applications")
	}
	defer closeRows(rows)

	apps := []*types.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to scan application")
		}
		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "error iterating applications")
	}

	return apps, nil
}

// CountApplications returns the number of stored applications
func (s *Store) CountApplications(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM applications").Scan(&count); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to count applications")
	}

	return count, nil
}

// DeleteApplication removes an application that has no status or outreach rows.
// The schema restricts the delete, so applications with history are rejected with CONFLICT.
func (s *Store) DeleteApplication(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM applications WHERE application_id = ?", id)
		if err != nil {
			if isForeignKeyViolation(err) {
				return pkgerrors.Newf(pkgerrors.CodeConflict,
					"application %d has status or outreach history", id)
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to delete application")
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to read deleted rows")
		}
		if affected == 0 {
			return applicationNotFound(id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logrus.WithField("application_id", id).Debug("Deleted application")
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (*types.Application, error) {
	app := &types.Application{}
	var link sql.NullString
	var createdAtMs int64

	if err := row.Scan(
		&app.ID,
		&app.Company,
		&app.Role,
		&link,
		&createdAtMs,
	); err != nil {
		return nil, err
	}

	if link.Valid {
		value := link.String
		app.ApplicationLink = &value
	}
	app.CreatedAt = fromUnixMilli(createdAtMs)

	return app, nil
}
