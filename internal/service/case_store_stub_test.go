package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/noah-isme/convivencia-api/internal/models"
	"github.com/noah-isme/convivencia-api/internal/repository"
)

// caseStoreStub is an in-memory case and audit log store with version guards.
type caseStoreStub struct {
	mu       sync.Mutex
	cases    map[string]*models.Case
	entries  []models.CaseAuditEntry
	sequence int64

	listErr  error
	applyErr error
	getErr   error
	applied  int
}

func newCaseStoreStub(cases ...*models.Case) *caseStoreStub {
	stub := &caseStoreStub{cases: make(map[string]*models.Case)}
	for _, c := range cases {
		stub.cases[c.Folio] = c.Clone()
	}
	return stub
}

func (s *caseStoreStub) List(ctx context.Context, filter models.CaseFilter) ([]models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.Case, 0, len(s.cases))
	for _, c := range s.cases {
		if filter.Severity != "" && c.Severity != filter.Severity {
			continue
		}
		if filter.OpenOnly && c.IsClosed() {
			continue
		}
		out = append(out, *c.Clone())
	}
	return out, nil
}

func (s *caseStoreStub) Count(ctx context.Context, filter models.CaseFilter) (int, error) {
	cases, err := s.List(ctx, filter)
	return len(cases), err
}

func (s *caseStoreStub) GetByFolio(ctx context.Context, folio string) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	c, ok := s.cases[folio]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c.Clone(), nil
}

func (s *caseStoreStub) NextFolioSequence(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return s.sequence, nil
}

func (s *caseStoreStub) Create(ctx context.Context, c *models.Case, entry *models.CaseAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = "case-" + c.Folio
	}
	if c.Version == 0 {
		c.Version = 1
	}
	s.cases[c.Folio] = c.Clone()
	if entry != nil {
		entry.CaseID = c.ID
		entry.CaseFolio = c.Folio
		s.entries = append(s.entries, *entry)
	}
	return nil
}

func (s *caseStoreStub) guard(caseID string, expectedVersion int) (*models.Case, error) {
	for _, c := range s.cases {
		if c.ID == caseID {
			if c.Version != expectedVersion {
				return nil, repository.ErrVersionConflict
			}
			return c, nil
		}
	}
	return nil, repository.ErrVersionConflict
}

func (s *caseStoreStub) record(c *models.Case, entry *models.CaseAuditEntry) {
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	if entry != nil {
		if entry.CaseID == "" {
			entry.CaseID = c.ID
		}
		s.entries = append(s.entries, *entry)
	}
}

func (s *caseStoreStub) ApplyTransition(ctx context.Context, caseID string, expectedVersion int, newStage models.CaseStage, entry *models.CaseAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	c, err := s.guard(caseID, expectedVersion)
	if err != nil {
		return err
	}
	c.Stage = newStage
	s.record(c, entry)
	s.applied++
	return nil
}

func (s *caseStoreStub) UpdateSeverity(ctx context.Context, caseID string, expectedVersion int, severity models.Severity, deadline time.Time, milestones models.Milestones, entry *models.CaseAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	c, err := s.guard(caseID, expectedVersion)
	if err != nil {
		return err
	}
	c.Severity = severity
	c.FatalDeadline = deadline
	c.Milestones = milestones.Clone()
	s.record(c, entry)
	return nil
}

func (s *caseStoreStub) UpdateMilestones(ctx context.Context, caseID string, expectedVersion int, milestones models.Milestones, entry *models.CaseAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	c, err := s.guard(caseID, expectedVersion)
	if err != nil {
		return err
	}
	c.Milestones = milestones.Clone()
	s.record(c, entry)
	return nil
}

func (s *caseStoreStub) ListByCase(ctx context.Context, caseID string) ([]models.CaseAuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CaseAuditEntry, 0)
	for _, entry := range s.entries {
		if entry.CaseID == caseID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *caseStoreStub) Append(ctx context.Context, entry *models.CaseAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *caseStoreStub) stored(folio string) *models.Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cases[folio].Clone()
}

func (s *caseStoreStub) criticalEntries(caseID string) []models.CaseAuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CaseAuditEntry, 0)
	for _, entry := range s.entries {
		if entry.CaseID == caseID && entry.Critical {
			out = append(out, entry)
		}
	}
	return out
}

type invalidatorStub struct {
	calls int
}

func (i *invalidatorStub) InvalidateSummary(ctx context.Context) {
	i.calls++
}

type mirrorStub struct {
	data   map[string][]models.Case
	getErr error
	sets   int
}

func newMirrorStub() *mirrorStub {
	return &mirrorStub{data: make(map[string][]models.Case)}
}

func (m *mirrorStub) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	cases, ok := m.data[key]
	if !ok {
		return sql.ErrNoRows
	}
	ptr := dest.(*[]models.Case)
	*ptr = append([]models.Case(nil), cases...)
	return nil
}

func (m *mirrorStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.sets++
	m.data[key] = value.([]models.Case)
	return nil
}

func caseInStage(folio string, stage models.CaseStage, severity models.Severity) *models.Case {
	opened := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	return &models.Case{
		ID:            "case-" + folio,
		Folio:         folio,
		StudentName:   "Ana Pérez",
		StudentCourse: "1° Medio A",
		Stage:         stage,
		Severity:      severity,
		OpenedAt:      opened,
		FatalDeadline: ComputeLegalDeadline(opened, severity),
		Milestones:    BuildMilestones(severity),
		Version:       1,
		CreatedAt:     opened,
		UpdatedAt:     opened,
	}
}
