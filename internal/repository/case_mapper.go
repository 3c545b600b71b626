package repository

import (
	"database/sql"
	"strings"
	"time"

	"github.com/noah-isme/convivencia-api/internal/models"
)

// DeadlineFunc derives a fatal deadline from the opening date and severity.
type DeadlineFunc func(start time.Time, severity models.Severity) time.Time

// CaseRow is the loosely typed shape of a row in the cases table. Every column
// except id and folio may be NULL in rows imported from the legacy spreadsheet
// workflow, so each one is scanned into a nullable type.
//
//	id                    uuid        NOT NULL
//	folio                 text        NOT NULL
//	student_id            text        NULL
//	student_name          text        NULL -> ""
//	student_course        text        NULL -> ""
//	description           text        NULL -> ""
//	stage                 text        NULL -> OPENED (legacy values mapped, see legacyStages)
//	severity              text        NULL -> RELEVANT
//	opened_at             timestamptz NULL -> created_at
//	fatal_deadline        timestamptz NULL -> recomputed from opened_at and severity
//	prior_actions_on_file boolean     NULL -> false
//	milestones            jsonb       NULL -> []
//	version               integer     NULL -> 1
//	created_by            text        NULL -> ""
//	created_at            timestamptz NULL -> opened_at, else updated_at
//	updated_at            timestamptz NULL -> created_at
//	stage_changed_at      timestamptz NULL -> updated_at
type CaseRow struct {
	ID                 string            `db:"id"`
	Folio              string            `db:"folio"`
	StudentID          sql.NullString    `db:"student_id"`
	StudentName        sql.NullString    `db:"student_name"`
	StudentCourse      sql.NullString    `db:"student_course"`
	Description        sql.NullString    `db:"description"`
	Stage              sql.NullString    `db:"stage"`
	Severity           sql.NullString    `db:"severity"`
	OpenedAt           sql.NullTime      `db:"opened_at"`
	FatalDeadline      sql.NullTime      `db:"fatal_deadline"`
	PriorActionsOnFile sql.NullBool      `db:"prior_actions_on_file"`
	Milestones         models.Milestones `db:"milestones"`
	Version            sql.NullInt64     `db:"version"`
	CreatedBy          sql.NullString    `db:"created_by"`
	CreatedAt          sql.NullTime      `db:"created_at"`
	UpdatedAt          sql.NullTime      `db:"updated_at"`
	StageChangedAt     sql.NullTime      `db:"stage_changed_at"`
}

// legacyStages maps the generic status vocabulary of the old tracking sheet onto
// the canonical lifecycle.
var legacyStages = map[string]models.CaseStage{
	"IDENTIFICADO": models.StageOpened,
	"EN_TRAMITE":   models.StageInvestigation,
	"DERIVADO":     models.StageClosedMediation,
	"CERRADO":      models.StageClosedSanction,
	"ARCHIVADO":    models.StageClosedSanction,
}

// ParseStage normalises a stored stage value. Unknown values fall back to OPENED.
func ParseStage(raw string) models.CaseStage {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	if stage := models.CaseStage(key); stage.Valid() {
		return stage
	}
	if stage, ok := legacyStages[key]; ok {
		return stage
	}
	return models.StageOpened
}

// ParseSeverity normalises a stored severity. Unknown values fall back to RELEVANT,
// the severity that carries the standard 45 business day deadline.
func ParseSeverity(raw string) models.Severity {
	severity := models.Severity(strings.ToUpper(strings.TrimSpace(raw)))
	switch severity {
	case models.SeverityLow, models.SeveritySevereExpulsion:
		return severity
	case "LEVE":
		return models.SeverityLow
	case "GRAVISIMA", "GRAVÍSIMA", "EXPULSION":
		return models.SeveritySevereExpulsion
	default:
		return models.SeverityRelevant
	}
}

// MapCaseRow converts a stored row into the case model applying the documented
// fallbacks. It is pure; deadline may be nil, in which case a missing or
// inconsistent deadline is left as stored.
func MapCaseRow(row CaseRow, deadline DeadlineFunc) models.Case {
	c := models.Case{
		ID:                 row.ID,
		Folio:              strings.TrimSpace(row.Folio),
		StudentName:        strings.TrimSpace(row.StudentName.String),
		StudentCourse:      strings.TrimSpace(row.StudentCourse.String),
		Description:        row.Description.String,
		Stage:              ParseStage(row.Stage.String),
		Severity:           ParseSeverity(row.Severity.String),
		PriorActionsOnFile: row.PriorActionsOnFile.Valid && row.PriorActionsOnFile.Bool,
		Milestones:         row.Milestones.Clone(),
		Version:            1,
		CreatedBy:          row.CreatedBy.String,
	}
	if c.Milestones == nil {
		c.Milestones = models.Milestones{}
	}
	if row.StudentID.Valid && row.StudentID.String != "" {
		id := row.StudentID.String
		c.StudentID = &id
	}
	if row.Version.Valid && row.Version.Int64 > 0 {
		c.Version = int(row.Version.Int64)
	}

	c.CreatedAt = firstTime(row.CreatedAt, row.OpenedAt, row.UpdatedAt)
	c.OpenedAt = firstTime(row.OpenedAt, row.CreatedAt, row.UpdatedAt)
	c.UpdatedAt = firstTime(row.UpdatedAt, row.CreatedAt, row.OpenedAt)
	c.StageChangedAt = firstTime(row.StageChangedAt, row.UpdatedAt, row.CreatedAt, row.OpenedAt)

	if row.FatalDeadline.Valid {
		c.FatalDeadline = row.FatalDeadline.Time
	}
	if deadline != nil && !c.FatalDeadline.After(c.OpenedAt) {
		c.FatalDeadline = deadline(c.OpenedAt, c.Severity)
	}
	return c
}

func firstTime(candidates ...sql.NullTime) time.Time {
	for _, candidate := range candidates {
		if candidate.Valid && !candidate.Time.IsZero() {
			return candidate.Time
		}
	}
	return time.Time{}
}
