package sources

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/axia-cli/internal/model"
)

// ExcludedHosts are never accepted as a company's own website. A result is
// excluded when its host contains any entry.
var ExcludedHosts = []string{
	"linkedin.com",
	"kununu.com",
	"xing.com",
	"facebook.com",
	"twitter.com",
	"instagram.com",
	"youtube.com",
	"wikipedia.org",
	"bundesanzeiger.de",
}

// Discoverer finds a company's website by name.
type Discoverer struct {
	search Searcher
	log    *zap.Logger
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(search Searcher) *Discoverer {
	return &Discoverer{
		search: search,
		log:    zap.L().With(zap.String("component", "discover")),
	}
}

// FindWebsite searches for companyName and returns the first result that is
// not on an excluded host, normalized to scheme://host.
func (d *Discoverer) FindWebsite(ctx context.Context, companyName string) (string, bool) {
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		return "", false
	}

	for _, r := range d.search.Search(ctx, companyName, searchResults) {
		u, err := url.Parse(r.URL)
		if err != nil || u.Host == "" {
			continue
		}
		if isExcluded(strings.ToLower(u.Hostname())) {
			continue
		}
		if site := model.NormalizeWebsite(r.URL); site != "" {
			d.log.Debug("website discovered", zap.String("company", companyName), zap.String("website", site))
			return site, true
		}
	}

	d.log.Debug("no website found", zap.String("company", companyName))
	return "", false
}

func isExcluded(host string) bool {
	for _, ex := range ExcludedHosts {
		if strings.Contains(host, ex) {
			return true
		}
	}
	return false
}
