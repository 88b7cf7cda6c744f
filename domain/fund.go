package domain

// Holding is one row of the Part C investment schedule. Balance and Value are
// nil when the source document carried a non-finite or unparseable number.
type Holding struct {
	Cusip   string   `json:"cusip"`
	Title   string   `json:"title"`
	Balance *float64 `json:"balance"`
	Value   *float64 `json:"value"`
}

type FilingGroup struct {
	Form            string    `json:"form"`
	SeriesName      string    `json:"seriesName"`
	AccessionNumber string    `json:"accessionNumber"`
	FilingUrl       string    `json:"filingUrl"`
	FilingDate      string    `json:"filingDate"`
	HoldingsCount   int       `json:"holdingsCount"`
	TotalAssets     float64   `json:"totalAssets"`
	Holdings        []Holding `json:"holdings"`
}

// FundResult aggregates every series filed on the registrant's most recent
// N-PORT filing date.
type FundResult struct {
	Cik            string        `json:"cik"`
	RegistrantName string        `json:"registrantName"`
	LatestDate     string        `json:"latestDate"`
	FilingGroups   []FilingGroup `json:"filingGroups"`
	ProcessingTime string        `json:"processingTime"`
	Partial        bool          `json:"partial,omitempty"`
}
