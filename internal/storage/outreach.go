package storage

import (
	"context"
	"database/sql"

	pkgerrors "github.com/rossigee/jobtracker/pkg/errors"
	"github.com/rossigee/jobtracker/pkg/types"
	"github.com/sirupsen/logrus"
)

const outreachColumns = "outreach_id, application_id, channel, outreach_type, timestamp"

// RecordOutreach appends one outreach event for an existing application
func (s *Store) RecordOutreach(
	ctx context.Context,
	applicationID int64,
	channel string,
	outreachType types.OutreachType,
) (*types.OutreachEvent, error) {
	channel, err := requireText("channel", channel)
	if err != nil {
		return nil, err
	}
	if !outreachType.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid outreach type %q", outreachType).
			WithDetails(map[string]string{"outreach_type": "must be one of initial follow_up"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event := &types.OutreachEvent{
		ApplicationID: applicationID,
		Channel:       channel,
		OutreachType:  outreachType,
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireApplication(ctx, tx, applicationID); err != nil {
			return err
		}

		ts, err := s.nextTimestamp(ctx, tx,
			"SELECT MAX(timestamp) FROM outreach_events WHERE application_id = ?", applicationID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO outreach_events (application_id, channel, outreach_type, timestamp)
			 VALUES (?, ?, ?, ?)`,
			applicationID,
			channel,
			string(outreachType),
			ts,
		)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to insert outreach event")
		}

		id, err := res.LastInsertId()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to read outreach id")
		}

		event.ID = id
		event.Timestamp = fromUnixMilli(ts)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"application_id": applicationID,
		"outreach_id":    event.ID,
		"channel":        event.Channel,
		"outreach_type":  event.OutreachType,
	}).Debug("Recorded outreach event")

	return event, nil
}

// GetOutreachHistory returns the outreach events of an application, oldest first
func (s *Store) GetOutreachHistory(ctx context.Context, applicationID int64) ([]*types.OutreachEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := []*types.OutreachEvent{}

	err := s.withReadTx(ctx, func(conn *sql.Conn) error {
		if err := requireApplication(ctx, conn, applicationID); err != nil {
			return err
		}

		rows, err := conn.QueryContext(ctx,
			"SELECT "+outreachColumns+" FROM outreach_events WHERE application_id = ? "+
				"ORDER BY timestamp ASC, outreach_id ASC",
			applicationID,
		)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to query outreach history")
		}
		defer closeRows(rows)

		for rows.Next() {
			event := &types.OutreachEvent{}
			var outreachType string
			var tsMs int64

			if err := rows.Scan(
				&event.ID,
				&event.ApplicationID,
				&event.Channel,
				&outreachType,
				&tsMs,
			); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to scan outreach event")
			}

			parsed, err := types.ParseOutreachType(outreachType)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "corrupt outreach row")
			}
			event.OutreachType = parsed
			event.Timestamp = fromUnixMilli(tsMs)
			events = append(events, event)
		}

		if err := rows.Err(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "error iterating outreach history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}
