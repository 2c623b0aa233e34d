package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"athensenergy/server/internal/models"
	"athensenergy/server/internal/pipeline"
)

// SaveRun persists a run with its group summaries and rejection log in one
// transaction.
func (d *Database) SaveRun(result pipeline.Result) error {
	settings, err := json.Marshal(result.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal run settings: %w", err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs
		(id, started_at, duration_ms, strategy, settings, input_count, clean_count,
		 rejected_count, warned_count, group_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.RunID,
		result.StartedAt.UTC().Format(startedAtLayout),
		result.Duration.Milliseconds(),
		result.Strategy,
		string(settings),
		result.InputCount,
		result.CleanCount,
		result.RejectedCount,
		result.WarnedCount,
		len(result.Groups),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	groupStmt, err := tx.Prepare(`
		INSERT INTO run_groups
		(run_id, position, group_id, base_key, member_count, status, weighted_median, summary, members)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer groupStmt.Close()

	for i, summary := range result.Summaries {
		summaryJSON, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to marshal group summary: %w", err)
		}
		var members []models.PropertyRecord
		if i < len(result.Groups) {
			members = result.Groups[i].Members
		}
		membersJSON, err := json.Marshal(members)
		if err != nil {
			return fmt.Errorf("failed to marshal group members: %w", err)
		}
		var median sql.NullString
		if summary.WeightedMedianEnergyClass != nil {
			median = sql.NullString{String: summary.WeightedMedianEnergyClass.String(), Valid: true}
		}

		if _, err := groupStmt.Exec(
			result.RunID,
			i,
			summary.GroupID,
			summary.BaseKey,
			summary.MemberCount,
			summary.Status,
			median,
			string(summaryJSON),
			string(membersJSON),
		); err != nil {
			return fmt.Errorf("failed to insert run group: %w", err)
		}
	}

	rejectionStmt, err := tx.Prepare(`
		INSERT INTO run_rejections (run_id, position, record_id, flags, record)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer rejectionStmt.Close()

	for i, rej := range result.Rejections {
		recordJSON, err := json.Marshal(rej.Record)
		if err != nil {
			return fmt.Errorf("failed to marshal rejected record: %w", err)
		}
		flags := make([]string, len(rej.Result.Flags))
		for j, f := range rej.Result.Flags {
			flags[j] = string(f)
		}
		if _, err := rejectionStmt.Exec(
			result.RunID,
			i,
			rej.Record.ID,
			strings.Join(flags, ","),
			string(recordJSON),
		); err != nil {
			return fmt.Errorf("failed to insert rejection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// startedAtLayout is fixed width so that started_at sorts chronologically as
// text.
const startedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, started_at, duration_ms, strategy, settings, input_count,
	clean_count, rejected_count, warned_count, group_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (models.RunSummary, error) {
	var run models.RunSummary
	var startedAt, settings string
	if err := row.Scan(
		&run.ID,
		&startedAt,
		&run.DurationMs,
		&run.Strategy,
		&settings,
		&run.InputCount,
		&run.CleanCount,
		&run.RejectedCount,
		&run.WarnedCount,
		&run.GroupCount,
	); err != nil {
		return run, err
	}

	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return run, fmt.Errorf("failed to parse run start time: %w", err)
	}
	run.StartedAt = t
	run.Settings = json.RawMessage(settings)
	return run, nil
}

// GetRun returns one run header or ErrRunNotFound.
func (d *Database) GetRun(id string) (models.RunSummary, error) {
	run, err := scanRun(d.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return run, ErrRunNotFound
	}
	if err != nil {
		return run, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns all.
func (d *Database) ListRuns(limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRunGroups returns the stored groups of a run in their original order.
func (d *Database) GetRunGroups(runID string) ([]models.StoredGroup, error) {
	if _, err := d.GetRun(runID); err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT summary, members FROM run_groups
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run groups: %w", err)
	}
	defer rows.Close()

	groups := []models.StoredGroup{}
	for rows.Next() {
		var summaryJSON, membersJSON string
		if err := rows.Scan(&summaryJSON, &membersJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run group: %w", err)
		}
		var g models.StoredGroup
		if err := json.Unmarshal([]byte(summaryJSON), &g.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode group summary: %w", err)
		}
		if err := json.Unmarshal([]byte(membersJSON), &g.Members); err != nil {
			return nil, fmt.Errorf("failed to decode group members: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GetRunRejections returns the rejection log of a run in input order.
func (d *Database) GetRunRejections(runID string) ([]models.Rejection, error) {
	if _, err := d.GetRun(runID); err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT record_id, flags, record FROM run_rejections
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejections: %w", err)
	}
	defer rows.Close()

	rejections := []models.Rejection{}
	for rows.Next() {
		var id, flags, recordJSON string
		if err := rows.Scan(&id, &flags, &recordJSON); err != nil {
			return nil, fmt.Errorf("failed to scan rejection: %w", err)
		}

		var rej models.Rejection
		if err := json.Unmarshal([]byte(recordJSON), &rej.Record); err != nil {
			return nil, fmt.Errorf("failed to decode rejected record: %w", err)
		}
		rej.Result.RecordID = id
		for _, f := range strings.Split(flags, ",") {
			if f != "" {
				rej.Result.Flags = append(rej.Result.Flags, models.Flag(f))
			}
		}
		rejections = append(rejections, rej)
	}
	return rejections, rows.Err()
}
