package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/convivencia-api/internal/models"
	"github.com/noah-isme/convivencia-api/internal/repository"
	"github.com/noah-isme/convivencia-api/pkg/export"
	"github.com/noah-isme/convivencia-api/pkg/storage"
)

const auditLoadConcurrency = 8

type reportCaseSource interface {
	List(ctx context.Context, filter models.CaseFilter) ([]models.Case, error)
}

type reportAuditSource interface {
	ListByCase(ctx context.Context, caseID string) ([]models.CaseAuditEntry, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	Rows         int
	ExpiresAt    time.Time
}

// ExportService builds compliance datasets and persists rendered files.
type ExportService struct {
	cases     reportCaseSource
	audit     reportAuditSource
	storage   fileStorage
	renderers map[models.ReportFormat]datasetRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService with CSV, PDF and XLSX renderers.
func NewExportService(cases reportCaseSource, audit reportAuditSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		cases:   cases,
		audit:   audit,
		storage: store,
		renderers: map[models.ReportFormat]datasetRenderer{
			models.ReportFormatCSV:  export.NewCSVExporter(),
			models.ReportFormatPDF:  export.NewPDFExporter(),
			models.ReportFormatXLSX: export.NewXLSXExporter(),
		},
		signer: signer,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Supports reports whether a renderer exists for format.
func (s *ExportService) Supports(format models.ReportFormat) bool {
	_, ok := s.renderers[format]
	return ok
}

// Generate builds the dataset for job, renders it and stores the file behind a signed URL.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	renderer, ok := s.renderers[job.Params.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	dataset, err := s.BuildDataset(ctx, job.Type, job.Params)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Debug("compliance report rendered", zap.String("job_id", job.ID), zap.String("path", relPath), zap.Int("rows", len(dataset.Rows)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/compliance/reports/download/%s", prefix, token),
		Format:       job.Params.Format,
		Rows:         len(dataset.Rows),
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, defaulting to the configured result TTL.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	id := job.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s_%s.%s", job.Type, s.now().Format("20060102_150405"), id, job.Params.Format)
}

// BuildDataset evaluates the case set and lays it out for the requested report type.
func (s *ExportService) BuildDataset(ctx context.Context, reportType models.ReportType, params models.ReportJobParams) (export.Dataset, error) {
	now := s.now()
	filter := params.CaseFilter()
	if reportType == models.ReportTypeDeadlines {
		filter.OpenOnly = true
	}
	cases, err := s.loadCases(ctx, filter, params.StudentCourse)
	if err != nil {
		return export.Dataset{}, err
	}

	switch reportType {
	case models.ReportTypeComplianceAudit:
		return s.complianceAuditDataset(ctx, cases, now)
	case models.ReportTypeNullityRisk:
		return s.nullityRiskDataset(ctx, cases, now)
	case models.ReportTypeDeadlines:
		return deadlinesDataset(cases, now), nil
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report type %s", reportType)
	}
}

// loadCases pages through the repository, which caps each page.
func (s *ExportService) loadCases(ctx context.Context, filter models.CaseFilter, course string) ([]models.Case, error) {
	course = strings.TrimSpace(course)
	filter.Limit = repository.MaxCaseListSize
	out := make([]models.Case, 0)
	for {
		page, err := s.cases.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("load cases for report: %w", err)
		}
		for _, c := range page {
			if course == "" || strings.EqualFold(c.StudentCourse, course) {
				out = append(out, c)
			}
		}
		if len(page) < filter.Limit {
			return out, nil
		}
		filter.Offset += len(page)
	}
}

// lastCriticalActions loads every case's audit log concurrently and returns the
// most recent critical action per case id.
func (s *ExportService) lastCriticalActions(ctx context.Context, cases []models.Case) (map[string]string, error) {
	actions := make([]string, len(cases))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(auditLoadConcurrency)
	for i := range cases {
		if cases[i].ID == "" {
			continue
		}
		g.Go(func() error {
			entries, err := s.audit.ListByCase(ctx, cases[i].ID)
			if err != nil {
				return fmt.Errorf("load audit log for %s: %w", cases[i].Folio, err)
			}
			var latest *models.CaseAuditEntry
			for j := range entries {
				if !entries[j].Critical {
					continue
				}
				if latest == nil || entries[j].CreatedAt.After(latest.CreatedAt) {
					latest = &entries[j]
				}
			}
			if latest != nil {
				actions[i] = fmt.Sprintf("%s %s", latest.Action, latest.CreatedAt.UTC().Format("2006-01-02"))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(cases))
	for i, c := range cases {
		out[c.Folio] = actions[i]
	}
	return out, nil
}

func (s *ExportService) complianceAuditDataset(ctx context.Context, cases []models.Case, now time.Time) (export.Dataset, error) {
	actions, err := s.lastCriticalActions(ctx, cases)
	if err != nil {
		return export.Dataset{}, err
	}
	results := make([]models.ComplianceResult, 0, len(cases))
	courses := make(map[string]string, len(cases))
	for _, c := range cases {
		results = append(results, EvaluateCompliance(c, now))
		courses[c.Folio] = c.StudentCourse
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].DaysRemaining < results[j].DaysRemaining })

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.Folio,
			r.StudentName,
			courses[r.Folio],
			string(r.Stage),
			string(r.Severity),
			fmt.Sprintf("%.0f", r.Score*100),
			string(r.Status),
			fmt.Sprintf("%d", r.DaysRemaining),
			string(r.Urgency),
			actions[r.Folio],
		})
	}
	return export.Dataset{
		Title:       "Auditoría de cumplimiento normativo",
		Headers:     []string{"Folio", "Estudiante", "Curso", "Etapa", "Gravedad", "Puntaje (%)", "Estado", "Días restantes", "Urgencia", "Última acción crítica"},
		Rows:        rows,
		GeneratedAt: now,
	}, nil
}

func (s *ExportService) nullityRiskDataset(ctx context.Context, cases []models.Case, now time.Time) (export.Dataset, error) {
	risky := make([]models.Case, 0)
	for _, c := range cases {
		if c.Severity.IsExpulsion() && !c.PriorActionsOnFile {
			risky = append(risky, c)
		}
	}
	actions, err := s.lastCriticalActions(ctx, risky)
	if err != nil {
		return export.Dataset{}, err
	}
	rows := make([][]string, 0, len(risky))
	for _, c := range risky {
		rows = append(rows, []string{
			c.Folio,
			c.StudentName,
			c.StudentCourse,
			string(c.Stage),
			formatReportDate(c.FatalDeadline),
			fmt.Sprintf("%d", DaysRemaining(c.FatalDeadline, now)),
			actions[c.Folio],
		})
	}
	return export.Dataset{
		Title:       "Expedientes con riesgo de nulidad",
		Headers:     []string{"Folio", "Estudiante", "Curso", "Etapa", "Plazo fatal", "Días restantes", "Última acción crítica"},
		Rows:        rows,
		GeneratedAt: now,
	}, nil
}

func deadlinesDataset(cases []models.Case, now time.Time) export.Dataset {
	ordered := append([]models.Case(nil), cases...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].FatalDeadline.Before(ordered[j].FatalDeadline) })
	rows := make([][]string, 0, len(ordered))
	for _, c := range ordered {
		days := DaysRemaining(c.FatalDeadline, now)
		rows = append(rows, []string{
			c.Folio,
			c.StudentName,
			c.StudentCourse,
			string(c.Stage),
			string(c.Severity),
			formatReportDate(c.FatalDeadline),
			fmt.Sprintf("%d", days),
			string(ClassifyUrgency(days)),
		})
	}
	return export.Dataset{
		Title:       "Plazos fatales de expedientes abiertos",
		Headers:     []string{"Folio", "Estudiante", "Curso", "Etapa", "Gravedad", "Plazo fatal", "Días restantes", "Urgencia"},
		Rows:        rows,
		GeneratedAt: now,
	}
}

func formatReportDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
