package portal

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/portal-scraper/internal/failure"
)

var captchaSelectors = []string{
	`iframe[src*="hcaptcha"]`,
	`iframe[src*="recaptcha"]`,
	`div[class*="captcha"]`,
	`div[id*="captcha"]`,
	`#px-captcha`,
	`.g-recaptcha`,
}

var challengeTitles = []string{"just a moment", "attention required"}

// Only trusted when the page lacks its normal content.
var blockingKeywords = []string{
	"security check",
	"verify you're human",
	"verify you are human",
	"access denied",
	"blocked",
}

var banKeywords = []string{
	"you have been blocked",
	"your ip has been banned",
	"has been permanently blocked",
}

// DetectChallenge reports a bot challenge as a failure.Error of kind
// bot_detected, or nil. contentSelector matches the element a normal page
// always renders; keyword checks only run when it is absent. Explicit bans
// are permanent.
func DetectChallenge(url string, doc *goquery.Document, contentSelector string) error {
	for _, sel := range captchaSelectors {
		if doc.Find(sel).Length() > 0 {
			return failure.BotDetected(url, "captcha element "+sel, false)
		}
	}

	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	for _, t := range challengeTitles {
		if strings.Contains(title, t) {
			return failure.BotDetected(url, "challenge page: "+title, false)
		}
	}

	if contentSelector != "" && doc.Find(contentSelector).Length() > 0 {
		return nil
	}
	text := strings.ToLower(doc.Find("body").Text())
	for _, k := range banKeywords {
		if strings.Contains(text, k) {
			return failure.BotDetected(url, "banned: "+k, true)
		}
	}
	for _, k := range blockingKeywords {
		if strings.Contains(text, k) {
			return failure.BotDetected(url, "blocking keyword: "+k, false)
		}
	}
	return nil
}
