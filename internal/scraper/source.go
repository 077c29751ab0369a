package scraper

import (
	"context"
	"fmt"
	"listing-tracker/internal/config"
	"listing-tracker/internal/models"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// AddressFilter decides whether a card's address belongs to the tracked area
type AddressFilter interface {
	Permits(address string) bool
}

// ListSource walks the paginated search results and turns each card into a
// raw snapshot
type ListSource struct {
	fetcher  PageFetcher
	cfg      config.ScraperConfig
	filter   AddressFilter
	now      func() time.Time
	logger   *slog.Logger
	selector []string
}

// NewListSource creates a ListSource. filter may be nil.
func NewListSource(fetcher PageFetcher, cfg config.ScraperConfig, filter AddressFilter, logger *slog.Logger) *ListSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if cfg.PageParam == "" {
		cfg.PageParam = "pagination"
	}
	return &ListSource{
		fetcher:  fetcher,
		cfg:      cfg,
		filter:   filter,
		now:      time.Now,
		logger:   logger.With("component", "list_source"),
		selector: splitSelectors(cfg.Selectors.Card),
	}
}

// FetchSnapshots collects the cards of every result page. An error on the
// first page is returned; a later page failing ends pagination with what
// was collected so far.
func (s *ListSource) FetchSnapshots(ctx context.Context) ([]models.RawSnapshot, error) {
	if s.cfg.SearchURL == "" {
		return nil, fmt.Errorf("search url is not configured")
	}

	seen := make(map[string]struct{})
	var results []models.RawSnapshot

	for page := 1; page <= s.cfg.MaxPages; page++ {
		pageURL := PageURL(s.cfg.SearchURL, s.cfg.PageParam, page)
		s.logger.Info("loading search page", "page", page, "url", pageURL)

		html, err := s.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("failed to fetch search page: %w", err)
			}
			s.logger.Warn("search page failed, ending pagination", "page", page, "error", err)
			break
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("failed to parse search page: %w", err)
			}
			break
		}

		observedAt := s.now()
		added := 0
		for _, snap := range s.ParseCards(doc, pageURL) {
			if _, dup := seen[snap.ID]; dup {
				continue
			}
			seen[snap.ID] = struct{}{}
			added++

			if s.filter != nil && !s.filter.Permits(snap.Address) {
				s.logger.Debug("skipping card outside tracked area", "id", snap.ID, "address", snap.Address)
				continue
			}
			snap.ObservedAt = observedAt
			results = append(results, snap)
		}

		s.logger.Info("parsed search page", "page", page, "new_ids", added)
		if added == 0 {
			break
		}
	}

	return results, nil
}

// ParseCards extracts snapshots from one search page. Cards without a
// listing link or with a "similar listings" heading are ignored.
func (s *ListSource) ParseCards(doc *goquery.Document, pageURL string) []models.RawSnapshot {
	base, _ := url.Parse(pageURL)

	var cards *goquery.Selection
	for _, sel := range s.selector {
		if found := doc.Find(sel); found.Length() > 0 {
			cards = found
			break
		}
	}
	if cards == nil {
		return nil
	}

	var out []models.RawSnapshot
	cards.Each(func(_ int, card *goquery.Selection) {
		snap, ok := s.parseCard(card, base)
		if ok {
			out = append(out, snap)
		}
	})
	return out
}

func (s *ListSource) parseCard(card *goquery.Selection, base *url.URL) (models.RawSnapshot, bool) {
	href, _ := card.Find("a[href]").First().Attr("href")
	link := resolveURL(base, href)
	if link == "" || (s.cfg.LinkContains != "" && !strings.Contains(link, s.cfg.LinkContains)) {
		return models.RawSnapshot{}, false
	}

	id := listingID(link)
	if id == "" {
		return models.RawSnapshot{}, false
	}

	badges := make(map[string]bool)
	openHouse := ""
	if s.cfg.Selectors.Badge != "" {
		card.Find(s.cfg.Selectors.Badge).Each(func(_ int, b *goquery.Selection) {
			text := collapseSpace(b.Text())
			badges[text] = true
			if openHouse == "" && strings.Contains(strings.ToLower(text), "esittely") {
				openHouse = text
			}
		})
	}

	lines := textLines(card)
	address := ""
	for _, line := range lines {
		if !badges[line] && !s.isSkipLabel(line) {
			address = line
			break
		}
	}
	if address == "" || strings.Contains(address, "Samankaltaisia") {
		return models.RawSnapshot{}, false
	}

	snap := models.RawSnapshot{
		ID:        id,
		Address:   address,
		Price:     models.NotAvailable,
		Size:      models.NotAvailable,
		URL:       link,
		OpenHouse: openHouse,
	}
	for _, line := range lines {
		if strings.Contains(line, "€") && !strings.Contains(line, "/m²") {
			snap.Price = line
			break
		}
	}
	for _, line := range lines {
		if strings.Contains(line, "m²") && !strings.Contains(line, "€/m²") {
			snap.Size = line
			break
		}
	}

	img := card.Find("picture img").First()
	if img.Length() == 0 {
		img = card.Find("img").First()
	}
	snap.Image = resolveURL(base, imageSource(img))

	return snap, true
}

func (s *ListSource) isSkipLabel(line string) bool {
	for _, label := range s.cfg.SkipLabels {
		if line == label {
			return true
		}
	}
	return strings.HasPrefix(line, "Samankaltaisia asuntoja")
}

// PageURL appends the pagination parameter to the search URL
func PageURL(searchURL, param string, page int) string {
	sep := "?"
	if strings.Contains(searchURL, "?") {
		sep = "&"
	}
	return searchURL + sep + param + "=" + strconv.Itoa(page)
}

func listingID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

func imageSource(img *goquery.Selection) string {
	if img.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"src", "data-src"} {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

func splitSelectors(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var inlineElements = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "em": true, "i": true,
	"label": true, "small": true, "span": true, "strong": true, "sub": true,
	"sup": true, "time": true, "u": true,
}

// textLines approximates the rendered text of sel, one entry per visual
// line: block elements and <br> break lines, inline elements do not.
func textLines(sel *goquery.Selection) []string {
	var lines []string
	var buf strings.Builder

	flush := func() {
		if line := collapseSpace(buf.String()); line != "" {
			lines = append(lines, line)
		}
		buf.Reset()
	}

	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			name := goquery.NodeName(c)
			switch {
			case name == "#text":
				buf.WriteString(c.Text())
			case name == "br":
				flush()
			case name == "script" || name == "style" || name == "#comment":
			case inlineElements[name]:
				walk(c)
			default:
				flush()
				walk(c)
				flush()
			}
		})
	}
	walk(sel)
	flush()
	return lines
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
