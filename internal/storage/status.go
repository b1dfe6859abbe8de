package storage

import (
	"context"
	"database/sql"
	"errors"

	pkgerrors "github.com/rossigee/jobtracker/pkg/errors"
	"github.com/rossigee/jobtracker/pkg/types"
	"github.com/sirupsen/logrus"
)

const statusColumns = "status_id, application_id, status, timestamp"

// AppendStatus appends one status entry for an existing application.
// Earlier entries are never modified.
func (s *Store) AppendStatus(ctx context.Context, applicationID int64, status string) (*types.StatusHistoryEntry, error) {
	status, err := requireText("status", status)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &types.StatusHistoryEntry{
		ApplicationID: applicationID,
		Status:        status,
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireApplication(ctx, tx, applicationID); err != nil {
			return err
		}

		ts, err := s.nextTimestamp(ctx, tx,
			"SELECT MAX(timestamp) FROM status_history WHERE application_id = ?", applicationID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO status_history (application_id, status, timestamp) VALUES (?, ?, ?)",
			applicationID,
			status,
			ts,
		)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to insert status entry")
		}

		id, err := res.LastInsertId()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to read status id")
		}

		entry.ID = id
		entry.Timestamp = fromUnixMilli(ts)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"application_id": applicationID,
		"status_id":      entry.ID,
		"status":         entry.Status,
	}).Debug("Appended status entry")

	return entry, nil
}

// GetStatusHistory returns the status entries of an application, oldest first
func (s *Store) GetStatusHistory(ctx context.Context, applicationID int64) ([]*types.StatusHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := []*types.StatusHistoryEntry{}

	err := s.withReadTx(ctx, func(conn *sql.Conn) error {
		if err := requireApplication(ctx, conn, applicationID); err != nil {
			return err
		}

		rows, err := conn.QueryContext(ctx,
			"SELECT "+statusColumns+" FROM status_history WHERE application_id = ? "+
				"ORDER BY timestamp ASC, status_id ASC",
			applicationID,
		)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to query status history")
		}
		defer closeRows(rows)

		for rows.Next() {
			entry, err := scanStatusEntry(rows)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to scan status entry")
			}
			entries = append(entries, entry)
		}

		if err := rows.Err(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "error iterating status history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// LatestStatus returns the most recent status entry of an application.
// The boolean is false when the application has no entries yet.
func (s *Store) LatestStatus(ctx context.Context, applicationID int64) (*types.StatusHistoryEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entry *types.StatusHistoryEntry

	err := s.withReadTx(ctx, func(conn *sql.Conn) error {
		if err := requireApplication(ctx, conn, applicationID); err != nil {
			return err
		}

		latest, err := scanStatusEntry(conn.QueryRowContext(ctx,
			"SELECT "+statusColumns+" FROM status_history WHERE application_id = ? "+
				"ORDER BY timestamp DESC, status_id DESC LIMIT 1",
			applicationID,
		))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to query latest status")
		}
		entry = latest
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return entry, entry != nil, nil
}

func scanStatusEntry(row scanner) (*types.StatusHistoryEntry, error) {
	entry := &types.StatusHistoryEntry{}
	var tsMs int64

	if err := row.Scan(
		&entry.ID,
		&entry.ApplicationID,
		&entry.Status,
		&tsMs,
	); err != nil {
		return nil, err
	}

	entry.Timestamp = fromUnixMilli(tsMs)
	return entry, nil
}
