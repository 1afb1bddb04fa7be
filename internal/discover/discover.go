package discover

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jonesrussell/goingest/internal/domain"
	"github.com/jonesrussell/goingest/internal/logger"
)

// robotsDirective is the robots.txt line announcing a schema map.
const robotsDirective = "schemamap:"

// wellKnownPath is where sites conventionally publish their schema map.
const wellKnownPath = "/schema_map.xml"

// Discoverer locates a site's schema map URL and fetches its entries.
type Discoverer struct {
	fetcher HTTPFetcher
	logger  logger.Interface
}

// NewDiscoverer creates a schema map discoverer.
func NewDiscoverer(fetcher HTTPFetcher, log logger.Interface) *Discoverer {
	return &Discoverer{
		fetcher: fetcher,
		logger:  log.WithComponent("discover"),
	}
}

// SchemaMapURL resolves where a site publishes its schema map, trying
// in order: the URL stored on the site record, the site URL itself if
// it already points at a schema map, a robots.txt directive, and the
// well-known path.
func (d *Discoverer) SchemaMapURL(ctx context.Context, site *domain.Site) (string, error) {
	if site.SchemaMapURL != "" {
		return site.SchemaMapURL, nil
	}

	base := strings.TrimRight(site.SiteURL, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	if strings.HasSuffix(base, "schema_map.xml") {
		return base, nil
	}

	if fromRobots := d.fromRobots(ctx, base); fromRobots != "" {
		return fromRobots, nil
	}

	wellKnown := base + wellKnownPath
	if _, err := d.fetcher.Fetch(ctx, wellKnown); err == nil {
		return wellKnown, nil
	}

	return "", fmt.Errorf("no schema map found for site %s", site.SiteURL)
}

// fromRobots looks for a schemamap directive in the site's robots.txt.
// Any failure just means the directive is absent.
func (d *Discoverer) fromRobots(ctx context.Context, base string) string {
	body, err := d.fetcher.Fetch(ctx, base+"/robots.txt")
	if err != nil {
		d.logger.Debug("no robots.txt", "site", base, "error", err)
		return ""
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(strings.ToLower(line), robotsDirective) {
			return strings.TrimSpace(line[len(robotsDirective):])
		}
	}
	return ""
}

// Manifest fetches and parses the schema map at the given URL.
func (d *Discoverer) Manifest(ctx context.Context, schemaMapURL string) ([]domain.ManifestEntry, error) {
	body, err := d.fetcher.Fetch(ctx, schemaMapURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema map %s: %w", schemaMapURL, err)
	}
	return ParseManifest(body)
}
