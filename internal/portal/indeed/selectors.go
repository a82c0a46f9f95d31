package indeed

import "github.com/baxromumarov/portal-scraper/internal/extract"

const (
	cardsContainerSelector = "#mosaic-provider-jobcards"
	jobLinkSelector        = "a[data-jk]"
	detailContentSelector  = "#jobDescriptionText"
)

// Tried in order; the first that yields cards wins.
var cardSelectors = []string{
	"#mosaic-provider-jobcards ul li div.slider_item",
	"#mosaic-provider-jobcards ul li",
	"div.job_seen_beacon",
}

var detailReadySelectors = []string{
	detailContentSelector,
	`script[type="application/ld+json"]`,
	`h1[class*="jobsearch-JobInfoHeader-title"]`,
	`h2[data-testid*="jobsearch-JobInfoHeader-title"]`,
}

var detailSelectors = extract.Selectors{
	Title: []string{
		`h2[data-testid*="jobsearch-JobInfoHeader-title"] span`,
		`h1[class*="jobsearch-JobInfoHeader-title"]`,
		`h2.jobsearch-JobInfoHeader-title span`,
	},
	Company: []string{
		`div[data-company-name]`,
		`a[data-tn-element="companyName"]`,
		`span[class*="companyName"] a`,
		`div.jobsearch-InlineCompanyRating div`,
	},
	Location: []string{
		`div[data-testid*="location"]`,
		`div[class*="jobsearch-JobInfoHeader-subtitle"] div`,
		`div.jobsearch-JobInfoHeader-subtitle div`,
	},
	Description: []string{
		`div#jobDescriptionText`,
		`#jobDescriptionText`,
	},
	Salary: []string{
		`#salaryInfoAndJobType span`,
		`div[data-testid*="salary"]`,
	},
}

var statePaths = extract.StatePaths{
	JobID: []string{"jobKey"},
	Title: []string{
		"jobInfoWrapperModel.jobInfoModel.jobInfoHeaderModel.jobTitle",
		"jobTitle",
	},
	Company: []string{
		"jobInfoWrapperModel.jobInfoModel.jobInfoHeaderModel.companyName",
		"companyName",
	},
	Location: []string{
		"jobInfoWrapperModel.jobInfoModel.jobInfoHeaderModel.formattedLocation",
		"jobLocation",
	},
	Description: []string{
		"jobInfoWrapperModel.jobInfoModel.sanitizedJobDescription",
	},
	Salary: []string{
		"salaryInfoModel.salaryText",
		"jobInfoWrapperModel.jobInfoModel.jobInfoHeaderModel.salaryText",
	},
}
