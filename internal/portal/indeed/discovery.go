package indeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/portal-scraper/internal/browser"
	"github.com/baxromumarov/portal-scraper/internal/extract"
	"github.com/baxromumarov/portal-scraper/internal/observability"
	"github.com/baxromumarov/portal-scraper/internal/portal"
	"github.com/baxromumarov/portal-scraper/internal/urlutil"
)

var mosaicMarker = regexp.MustCompile(`window\.mosaic\.providerData\["mosaic-provider-jobcards"\]\s*=\s*`)

// readResults loads one results page and returns its detail URLs in ranking
// order. Duplicates within the page are kept; the caller dedups.
func (a *Adapter) readResults(ctx context.Context, page browser.Page, serp string) ([]string, error) {
	if err := page.Navigate(ctx, serp, a.cfg.NavigationTimeout()); err != nil {
		return nil, err
	}
	observability.IncPagesNavigated(Name)

	_, doc, err := portal.Snapshot(ctx, page)
	if err != nil {
		return nil, err
	}
	if err := portal.DetectChallenge(serp, doc, cardsContainerSelector); err != nil {
		observability.IncBotDetection(Name)
		return nil, err
	}

	if err := portal.Scroll(ctx, page, a.cfg.ScrollPause()); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("scrolling results failed, using what loaded", "url", serp, "error", err)
	}

	html, doc, err := portal.Snapshot(ctx, page)
	if err != nil {
		return nil, err
	}

	keys := MosaicJobKeys(html)
	if len(keys) == 0 {
		slog.Debug("mosaic data not found, reading job cards", "url", serp)
		keys = cardJobKeys(doc, serp)
	}
	urls := make([]string, 0, len(keys))
	for _, k := range keys {
		urls = append(urls, ViewURL(a.baseURL, k))
	}
	return urls, nil
}

type mosaicPayload struct {
	MetaData struct {
		Model struct {
			Results []struct {
				JobKey string `json:"jobkey"`
			} `json:"results"`
		} `json:"mosaicProviderJobCardsModel"`
	} `json:"metaData"`
}

// MosaicJobKeys reads job keys from the job-cards provider blob embedded in
// a results page.
func MosaicJobKeys(html string) []string {
	loc := mosaicMarker.FindStringIndex(html)
	if loc == nil {
		return nil
	}
	raw := extract.DecodeLeadingJSON(html[loc[1]:])
	if raw == nil {
		return nil
	}
	var payload mosaicPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		slog.Warn("failed to decode mosaic data", "error", err)
		return nil
	}
	var keys []string
	for _, r := range payload.MetaData.Model.Results {
		if k := strings.TrimSpace(r.JobKey); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// cardJobKeys reads keys from rendered job cards. Cards without a data-jk
// attribute fall back to the jk parameter of their link.
func cardJobKeys(doc *goquery.Document, pageURL string) []string {
	var cards *goquery.Selection
	for _, sel := range cardSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			cards = found
			break
		}
	}
	if cards == nil {
		return nil
	}
	var keys []string
	cards.Each(func(_ int, card *goquery.Selection) {
		link := card.Find(jobLinkSelector).First()
		if k := strings.TrimSpace(link.AttrOr("data-jk", "")); k != "" {
			keys = append(keys, k)
			return
		}
		href, ok := card.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		if abs, err := urlutil.Resolve(pageURL, href); err == nil {
			if k := urlutil.QueryParam(abs, "jk"); k != "" {
				keys = append(keys, k)
			}
		}
	})
	return keys
}
