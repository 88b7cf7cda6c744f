package domain

const (
	EventMetadata = "metadata"
	EventProgress = "progress"
	EventSeries   = "series"
	EventWarning  = "warning"
	EventError    = "error"
	EventComplete = "complete"
)

// Event is one element of the ordered stream a task produces. Per task the
// order is always: metadata, then (progress, series) or warning per filing,
// then exactly one of complete/error. A cancelled task just stops.
type Event struct {
	Type string `json:"type"`

	// metadata
	RegistrantName string `json:"registrantName,omitempty"`
	LatestDate     string `json:"latestDate,omitempty"`
	TotalFilings   int    `json:"totalFilings,omitempty"`

	// progress
	Current   int    `json:"current,omitempty"`
	Total     int    `json:"total,omitempty"`
	Accession string `json:"accession,omitempty"`

	// series
	Data *FilingGroup `json:"data,omitempty"`

	// warning, error
	Message       string `json:"message,omitempty"`
	StatusCode    int    `json:"statusCode,omitempty"`
	RetryAfterSec int    `json:"retryAfterSec,omitempty"`

	// complete
	TotalProcessed *int   `json:"totalProcessed,omitempty"`
	ProcessingTime string `json:"processingTime,omitempty"`
}

func MetadataEvent(index FilingIndex) Event {
	return Event{
		Type:           EventMetadata,
		RegistrantName: index.RegistrantName,
		LatestDate:     index.LatestDate,
		TotalFilings:   len(index.Filings),
	}
}

func ProgressEvent(current int, total int, accession string) Event {
	return Event{
		Type:      EventProgress,
		Current:   current,
		Total:     total,
		Accession: accession,
	}
}

func SeriesEvent(group FilingGroup) Event {
	return Event{
		Type: EventSeries,
		Data: &group,
	}
}

func WarningEvent(accession string, message string) Event {
	return Event{
		Type:      EventWarning,
		Accession: accession,
		Message:   message,
	}
}

func ErrorEvent(message string, statusCode int) Event {
	return Event{
		Type:       EventError,
		Message:    message,
		StatusCode: statusCode,
	}
}

func CompleteEvent(totalProcessed int, processingTime string) Event {
	return Event{
		Type:           EventComplete,
		TotalProcessed: &totalProcessed,
		ProcessingTime: processingTime,
	}
}
