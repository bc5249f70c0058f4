package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/ops-audit-api/internal/dto"
	"github.com/noah-isme/ops-audit-api/pkg/audittrail"
	appErrors "github.com/noah-isme/ops-audit-api/pkg/errors"
	"github.com/noah-isme/ops-audit-api/pkg/jobs"
)

// Refresh outcomes reported by ReferenceService.Refresh.
const (
	RefreshRebuilt   = "rebuilt"
	RefreshUnchanged = "unchanged"
	RefreshFailed    = "failed"
)

// RefreshJobType tags reference refresh jobs on the queue.
const RefreshJobType = "reference-refresh"

type referenceStore interface {
	List(ctx context.Context, domain audittrail.Domain) ([]audittrail.ReferenceItem, error)
}

// RefreshRequest is the payload of a reference refresh job.
type RefreshRequest struct {
	// Force drops cached lists and republishes even when nothing changed.
	Force bool
	// RequestedBy is the user who asked for the refresh; zero for the ticker.
	RequestedBy int64
}

// NewRefreshJob builds a queue job asking for a reference refresh.
func NewRefreshJob(force bool) jobs.Job {
	return jobs.Job{ID: uuid.NewString(), Type: RefreshJobType, Payload: RefreshRequest{Force: force}}
}

// ReferenceServiceConfig tunes list caching.
type ReferenceServiceConfig struct {
	CacheTTL    time.Duration
	CachePrefix string
}

// ReferenceService keeps the published reference directory in sync with the
// user, client, hub and zone tables.
type ReferenceService struct {
	refs      referenceStore
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ReferenceServiceConfig
	directory *audittrail.DirectoryHolder

	refreshMu sync.Mutex

	stateMu     sync.RWMutex
	fingerprint uint64
	refreshedAt time.Time
	lastErr     string
}

// NewReferenceService constructs the service with an empty directory.
func NewReferenceService(refs referenceStore, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg ReferenceServiceConfig) *ReferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.CachePrefix == "" {
		cfg.CachePrefix = "audit:refs"
	}
	return &ReferenceService{
		refs:      refs,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		directory: audittrail.NewDirectoryHolder(),
	}
}

// Directory returns the currently published directory snapshot.
func (s *ReferenceService) Directory() *audittrail.Directory {
	return s.directory.Current()
}

// Refresh reloads every reference list and republishes the directory when the
// lists changed. On failure the previously published directory stays in place.
func (s *ReferenceService) Refresh(ctx context.Context, force bool) (string, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if force {
		_ = s.cache.Invalidate(ctx, s.cfg.CachePrefix+":*")
	}

	lists, err := s.load(ctx)
	if err != nil {
		s.stateMu.Lock()
		s.lastErr = err.Error()
		s.stateMu.Unlock()
		s.metrics.ObserveDirectory(RefreshFailed, nil)
		s.logger.Warn("reference refresh failed", zap.Error(err))
		return RefreshFailed, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "reference lists unavailable")
	}

	sum := fingerprint(lists)

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.lastErr = ""
	if !force && !s.refreshedAt.IsZero() && sum == s.fingerprint {
		s.metrics.ObserveDirectory(RefreshUnchanged, nil)
		return RefreshUnchanged, nil
	}

	dir := s.directory.Rebuild(lists)
	s.fingerprint = sum
	s.refreshedAt = time.Now().UTC()
	sizes := dir.Sizes()
	s.metrics.ObserveDirectory(RefreshRebuilt, sizes)
	s.logger.Info("reference directory published",
		zap.Int("users", sizes[audittrail.DomainUser]),
		zap.Int("clients", sizes[audittrail.DomainClient]),
		zap.Int("hubs", sizes[audittrail.DomainHub]),
		zap.Int("zones", sizes[audittrail.DomainZone]),
		zap.Bool("forced", force))
	return RefreshRebuilt, nil
}

// HandleRefreshJob is the queue handler for RefreshJobType jobs.
func (s *ReferenceService) HandleRefreshJob(ctx context.Context, job jobs.Job) error {
	if job.Type != RefreshJobType {
		return fmt.Errorf("reference refresh: unexpected job type %q", job.Type)
	}
	req, _ := job.Payload.(RefreshRequest)
	outcome, err := s.Refresh(ctx, req.Force)
	if err != nil {
		return err
	}
	s.logger.Debug("reference refresh job done",
		zap.String("job_id", job.ID),
		zap.String("outcome", outcome),
		zap.Int64("requested_by", req.RequestedBy))
	return nil
}

// Summary describes the published directory.
func (s *ReferenceService) Summary() dto.ReferenceSummary {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	summary := dto.ReferenceSummary{
		Sizes:     s.directory.Current().Sizes(),
		LastError: s.lastErr,
	}
	if !s.refreshedAt.IsZero() {
		refreshed := s.refreshedAt
		summary.RefreshedAt = &refreshed
		summary.Fingerprint = strconv.FormatUint(s.fingerprint, 16)
	}
	return summary
}

// RefreshedAt reports when the directory was last published.
func (s *ReferenceService) RefreshedAt() (time.Time, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.refreshedAt, !s.refreshedAt.IsZero()
}

func (s *ReferenceService) load(ctx context.Context) (map[audittrail.Domain][]audittrail.ReferenceItem, error) {
	results := make([][]audittrail.ReferenceItem, len(audittrail.Domains))
	g, gctx := errgroup.WithContext(ctx)
	for i, domain := range audittrail.Domains {
		i, domain := i, domain
		g.Go(func() error {
			items, hit, err := Remember(gctx, s.cache, s.cacheKey(domain), s.cfg.CacheTTL, func(ctx context.Context) ([]audittrail.ReferenceItem, error) {
				start := time.Now()
				items, err := s.refs.List(ctx, domain)
				s.metrics.ObserveDBQuery("references_"+string(domain), time.Since(start))
				return items, err
			})
			if err != nil {
				return err
			}
			if hit {
				s.logger.Debug("reference list served from cache", zap.String("domain", string(domain)))
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lists := make(map[audittrail.Domain][]audittrail.ReferenceItem, len(results))
	for i, domain := range audittrail.Domains {
		lists[domain] = results[i]
	}
	return lists, nil
}

func (s *ReferenceService) cacheKey(domain audittrail.Domain) string {
	return s.cfg.CachePrefix + ":" + string(domain)
}

// fingerprint hashes the lists in domain order; nil and empty strings hash
// differently because they label differently.
func fingerprint(lists map[audittrail.Domain][]audittrail.ReferenceItem) uint64 {
	d := xxhash.New()
	writeOpt := func(s *string) {
		if s == nil {
			_, _ = d.WriteString("\x00")
			return
		}
		_, _ = d.WriteString("\x01")
		_, _ = d.WriteString(*s)
		_, _ = d.WriteString("\x1f")
	}
	for _, domain := range audittrail.Domains {
		_, _ = d.WriteString(string(domain))
		_, _ = d.WriteString("\x1e")
		for _, item := range lists[domain] {
			if item.ID == nil {
				_, _ = d.WriteString("\x00")
			} else {
				_, _ = d.WriteString(strconv.FormatInt(*item.ID, 10))
			}
			writeOpt(item.Name)
			writeOpt(item.FullName)
			_, _ = d.WriteString("\x1d")
		}
	}
	return d.Sum64()
}
