// Package intel sequences the company intelligence sources and persists the
// merged evidence snapshot.
package intel

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/axia-cli/internal/fetcher"
	"github.com/sells-group/axia-cli/internal/model"
	"github.com/sells-group/axia-cli/internal/sources"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	UpdateCompanyWebsite(ctx context.Context, companyID int64, website string) error
	UpsertProfile(ctx context.Context, p *model.CompanyProfile) error
}

// Sources holds the per-source outcomes of one run. Website is nil when no
// website was known or discovered.
type Sources struct {
	Website  *sources.WebsiteResult  `json:"website,omitempty"`
	LinkedIn *sources.LinkedInResult `json:"linkedin"`
	Kununu   *sources.KununuResult   `json:"kununu"`
}

// Summary is what a fetch run reports back to the caller.
type Summary struct {
	CompanyID   int64     `json:"company_id"`
	CompanyName string    `json:"company_name"`
	FetchedAt   time.Time `json:"fetched_at"`
	Sources     Sources   `json:"sources"`
}

// Orchestrator runs the sources for one company at a time. It holds no
// per-run state, so one instance may serve concurrent runs for different
// companies.
type Orchestrator struct {
	discover *sources.Discoverer
	website  *sources.Website
	linkedin *sources.LinkedIn
	kununu   *sources.Kununu
	store    Store
	now      func() time.Time
	log      *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(search sources.Searcher, fetch fetcher.Fetcher, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		discover: sources.NewDiscoverer(search),
		website:  sources.NewWebsite(fetch),
		linkedin: sources.NewLinkedIn(search, fetch),
		kununu:   sources.NewKununu(search, fetch),
		store:    store,
		now:      time.Now,
		log:      zap.L().With(zap.String("component", "intel")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FindWebsite looks up a company website by name without touching any
// stored company.
func (o *Orchestrator) FindWebsite(ctx context.Context, companyName string) (string, bool) {
	return o.discover.FindWebsite(ctx, companyName)
}

// FetchAll fetches every source for company and upserts the snapshot.
// Source failures are reported in the summary; only persistence errors are
// returned. A newly discovered website is stored on company (and persisted)
// before any page is fetched. Discovery only runs when company has no
// website, whatever forceRefresh says.
func (o *Orchestrator) FetchAll(ctx context.Context, company *model.Company, forceRefresh bool) (*Summary, error) {
	if company == nil {
		return nil, eris.New("intel: company is required")
	}
	log := o.log.With(zap.Int64("company_id", company.ID), zap.String("company", company.Name))
	log.Info("fetching company intelligence", zap.Bool("force_refresh", forceRefresh))

	summary := &Summary{
		CompanyID:   company.ID,
		CompanyName: company.Name,
		FetchedAt:   o.now().UTC(),
	}

	if company.Website == "" {
		if site, ok := o.discover.FindWebsite(ctx, company.Name); ok {
			if err := o.store.UpdateCompanyWebsite(ctx, company.ID, site); err != nil {
				return nil, eris.Wrapf(err, "intel: save discovered website for company %d", company.ID)
			}
			company.Website = site
			log.Info("website discovered", zap.String("website", site))
		}
	}

	if company.Website != "" {
		summary.Sources.Website = o.website.Fetch(ctx, company.Website)
	}
	summary.Sources.LinkedIn = o.linkedin.Fetch(ctx, company.Name)
	summary.Sources.Kununu = o.kununu.Fetch(ctx, company.Name)

	facts, err := json.Marshal(buildFacts(summary))
	if err != nil {
		return nil, eris.Wrap(err, "intel: marshal extracted facts")
	}

	profile := &model.CompanyProfile{
		CompanyID:     company.ID,
		ProfileType:   model.ProfileTypeDomainExtract,
		SourceType:    model.SourceTypeAIFromDomain,
		RawText:       mergeRawText(summary.Sources),
		ExtractedJSON: facts,
	}
	if err := o.store.UpsertProfile(ctx, profile); err != nil {
		return nil, eris.Wrapf(err, "intel: upsert profile for company %d", company.ID)
	}

	log.Info("company intelligence stored",
		zap.String("website", statusOf(summary.Sources.Website)),
		zap.String("linkedin", string(summary.Sources.LinkedIn.Status)),
		zap.String("kununu", string(summary.Sources.Kununu.Status)),
		zap.Int("raw_text_len", len(profile.RawText)),
	)
	return summary, nil
}

func statusOf(w *sources.WebsiteResult) string {
	if w == nil {
		return "skipped"
	}
	return string(w.Status)
}

// mergeRawText joins every fetched text under a "=== section (url) ===" header,
// website pages first in their fixed order.
func mergeRawText(s Sources) string {
	var parts []string
	if s.Website != nil {
		for _, p := range s.Website.Pages {
			if p.Text != "" {
				parts = append(parts, "=== "+p.Name+" ("+p.URL+") ===\n"+p.Text)
			}
		}
	}
	if s.LinkedIn != nil && s.LinkedIn.Status == sources.StatusSuccess && s.LinkedIn.Text != "" {
		parts = append(parts, "=== LinkedIn ("+s.LinkedIn.URL+") ===\n"+s.LinkedIn.Text)
	}
	if s.Kununu != nil && s.Kununu.Status == sources.StatusSuccess && s.Kununu.Text != "" {
		parts = append(parts, "=== Kununu ("+s.Kununu.URL+") ===\n"+s.Kununu.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Facts is the extracted_json document of a snapshot.
type Facts struct {
	FetchedAt string            `json:"fetched_at"`
	Website   WebsiteFacts      `json:"website"`
	LinkedIn  map[string]string `json:"linkedin"`
	Kununu    map[string]string `json:"kununu"`
}

// WebsiteFacts is the website section of Facts.
type WebsiteFacts struct {
	URL       string            `json:"url,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Impressum map[string]string `json:"impressum,omitempty"`
}

func buildFacts(s *Summary) Facts {
	f := Facts{
		FetchedAt: s.FetchedAt.Format(time.RFC3339),
		LinkedIn:  map[string]string{},
		Kununu:    map[string]string{},
	}

	if w := s.Sources.Website; w != nil {
		f.Website.URL = w.BaseURL
		if len(w.Meta) > 0 {
			f.Website.Meta = w.Meta
		}
		if len(w.Impressum) > 0 {
			f.Website.Impressum = w.Impressum
		}
	}

	if li := s.Sources.LinkedIn; li != nil {
		setNonEmpty(f.LinkedIn, "url", li.URL)
		for k, v := range li.Facts {
			setNonEmpty(f.LinkedIn, k, v)
		}
	}

	if k := s.Sources.Kununu; k != nil {
		setNonEmpty(f.Kununu, "url", k.URL)
		setNonEmpty(f.Kununu, "rating", k.Rating)
	}
	return f
}

func setNonEmpty(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
