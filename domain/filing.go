package domain

type FilingDescriptor struct {
	Form            string
	AccessionNumber string
	FilingDate      string
	PrimaryDocument string
}

// FilingIndex describes all series filed on the latest filing date.
type FilingIndex struct {
	RegistrantName string
	LatestDate     string
	Filings        []FilingDescriptor
}

type RawDocument struct {
	Url     string
	Content []byte
}

type ParsedDocument struct {
	SeriesName      string
	ReportingPeriod string
	TotalAssets     float64
	Holdings        []Holding
}
