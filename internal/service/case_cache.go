package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/convivencia-api/internal/models"
)

// Case cache sources.
const (
	CaseSourceRepository = "repository"
	CaseSourceMirror     = "mirror"
	CaseSourceSeed       = "seed"
)

// DefaultCaseCacheKey is the Redis key mirroring the local case list.
const DefaultCaseCacheKey = "convivencia:expedientes"

type caseMirror interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type caseLister interface {
	List(ctx context.Context, filter models.CaseFilter) ([]models.Case, error)
}

// CaseCache keeps the last known case list in memory so reads keep working while
// the database is unreachable. It is mirrored to Redis on every write.
type CaseCache struct {
	mu     sync.RWMutex
	cases  map[string]*models.Case
	source string
	mirror caseMirror
	key    string
	logger *zap.Logger
	now    func() time.Time
	loaded bool
}

// NewCaseCache constructs an empty cache. mirror may be nil.
func NewCaseCache(mirror caseMirror, key string, logger *zap.Logger) *CaseCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(key) == "" {
		key = DefaultCaseCacheKey
	}
	return &CaseCache{
		cases:  make(map[string]*models.Case),
		mirror: mirror,
		key:    key,
		logger: logger,
		now:    time.Now,
	}
}

// Load fills the cache on start. The repository wins; when it fails the Redis
// mirror is used, and when both fail the cache is seeded with illustrative cases.
func (c *CaseCache) Load(ctx context.Context, repo caseLister) string {
	if repo != nil {
		cases, err := repo.List(ctx, models.CaseFilter{Limit: 200})
		if err == nil {
			c.replace(cases, CaseSourceRepository)
			c.writeMirror(ctx)
			return CaseSourceRepository
		}
		c.logger.Warn("case cache: repository load failed", zap.Error(err))
	}
	if c.mirror != nil {
		var cases []models.Case
		err := c.mirror.Get(ctx, c.key, &cases)
		if err == nil {
			c.replace(cases, CaseSourceMirror)
			return CaseSourceMirror
		}
		c.logger.Warn("case cache: mirror load failed", zap.String("key", c.key), zap.Error(err))
	}
	c.replace(SeedCases(c.now()), CaseSourceSeed)
	return CaseSourceSeed
}

func (c *CaseCache) replace(cases []models.Case, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cases = make(map[string]*models.Case, len(cases))
	for i := range cases {
		item := cases[i].Clone()
		c.cases[item.Folio] = item
	}
	c.source = source
	c.loaded = true
}

// Put stores a copy of the case and writes the list through to the mirror.
func (c *CaseCache) Put(ctx context.Context, item *models.Case) {
	if item == nil || item.Folio == "" {
		return
	}
	c.mu.Lock()
	c.cases[item.Folio] = item.Clone()
	c.mu.Unlock()
	c.writeMirror(ctx)
}

// Get returns a copy of the cached case.
func (c *CaseCache) Get(folio string) (*models.Case, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.cases[strings.TrimSpace(folio)]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// Snapshot returns copies of every cached case, most recently updated first.
func (c *CaseCache) Snapshot() []models.Case {
	c.mu.RLock()
	out := make([]models.Case, 0, len(c.cases))
	for _, item := range c.cases {
		out = append(out, *item.Clone())
	}
	c.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Folio < out[j].Folio
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Loaded reports whether Load ran at least once.
func (c *CaseCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *CaseCache) writeMirror(ctx context.Context) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.Set(ctx, c.key, c.Snapshot(), 0); err != nil {
		c.logger.Warn("case cache: mirror write failed", zap.String("key", c.key), zap.Error(err))
	}
}

// SeedCases returns the two illustrative cases used when no storage is reachable.
func SeedCases(now time.Time) []models.Case {
	relevantOpened := now.AddDate(0, 0, -12)
	expulsionOpened := now.AddDate(0, 0, -3)

	relevant := models.Case{
		Folio:         "EXP-DEMO-0001",
		StudentName:   "Estudiante de ejemplo A",
		StudentCourse: "7° Básico A",
		Description:   "Agresión verbal reiterada a compañero durante el recreo.",
		Stage:         models.StageInvestigation,
		Severity:      models.SeverityRelevant,
		OpenedAt:      relevantOpened,
		FatalDeadline: ComputeLegalDeadline(relevantOpened, models.SeverityRelevant),
		Milestones:    BuildMilestones(models.SeverityRelevant),
		Version:       1,
		CreatedBy:     models.SystemActor.ID,
		CreatedAt:     relevantOpened,
		UpdatedAt:     now.Add(-2 * time.Hour),
	}
	for i := 0; i < 2; i++ {
		completed := relevantOpened.AddDate(0, 0, i+1)
		relevant.Milestones[i].Completed = true
		relevant.Milestones[i].CompletedAt = &completed
	}

	expulsion := models.Case{
		Folio:         "EXP-DEMO-0002",
		StudentName:   "Estudiante de ejemplo B",
		StudentCourse: "2° Medio B",
		Description:   "Agresión física con lesiones a funcionario del establecimiento.",
		Stage:         models.StageNotified,
		Severity:      models.SeveritySevereExpulsion,
		OpenedAt:      expulsionOpened,
		FatalDeadline: ComputeLegalDeadline(expulsionOpened, models.SeveritySevereExpulsion),
		Milestones:    BuildMilestones(models.SeveritySevereExpulsion),
		Version:       1,
		CreatedBy:     models.SystemActor.ID,
		CreatedAt:     expulsionOpened,
		UpdatedAt:     now.Add(-1 * time.Hour),
	}
	return []models.Case{relevant, expulsion}
}
