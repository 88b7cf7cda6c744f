package edgar

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/json"
	"nport-service/conf"
	"nport-service/domain"
)

type submissionsResponse struct {
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			Form            []string `json:"form"`
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// Locator resolves a CIK to all series-level filings sharing the most
// recent qualifying filing date.
type Locator struct {
	client  client
	baseUrl string
	forms   map[string]bool
	timeout time.Duration
}

func NewLocator(config conf.Edgar) Locator {
	forms := make(map[string]bool)
	for _, form := range config.GetFormTypes() {
		forms[form] = true
	}
	return Locator{
		client:  newClient(config),
		baseUrl: config.GetDataBaseUrl(),
		forms:   forms,
		timeout: config.GetIndexTimeout(),
	}
}

func (l Locator) Locate(ctx context.Context, cik string) (*domain.FilingIndex, error) {
	url := fmt.Sprintf("%s/submissions/CIK%s.json", l.baseUrl, cik)
	result, err := l.client.get(ctx, url, l.timeout)
	if err != nil {
		return nil, domain.UpstreamError{Err: err}
	}
	if result.status == http.StatusNotFound {
		return nil, domain.NotFoundError{Message: fmt.Sprintf("CIK %s not found in SEC database", cik)}
	}
	if result.status != http.StatusOK {
		return nil, domain.UpstreamError{Err: errors.Errorf("submissions index returned status %d", result.status)}
	}

	submissions := submissionsResponse{}
	err = json.Unmarshal(result.body, &submissions)
	if err != nil {
		return nil, domain.UpstreamError{Err: errors.WithMessage(err, "unmarshal submissions index")}
	}

	registrantName := submissions.Name
	if registrantName == "" {
		registrantName = "Unknown Registrant"
	}

	records := l.qualifyingRecords(submissions)
	if len(records) == 0 {
		return nil, domain.NotFoundError{
			Message: fmt.Sprintf("no N-PORT filings found for %s (CIK: %s)", registrantName, cik),
		}
	}

	latestDate := ""
	for _, record := range records {
		if record.FilingDate > latestDate {
			latestDate = record.FilingDate
		}
	}

	latest := make([]domain.FilingDescriptor, 0)
	for _, record := range records {
		if record.FilingDate == latestDate {
			latest = append(latest, record)
		}
	}
	// several series share one date, keep the order deterministic
	sort.Slice(latest, func(i, j int) bool {
		if latest[i].Form != latest[j].Form {
			return latest[i].Form < latest[j].Form
		}
		return latest[i].AccessionNumber < latest[j].AccessionNumber
	})

	return &domain.FilingIndex{
		RegistrantName: registrantName,
		LatestDate:     latestDate,
		Filings:        latest,
	}, nil
}

func (l Locator) qualifyingRecords(submissions submissionsResponse) []domain.FilingDescriptor {
	recent := submissions.Filings.Recent
	records := make([]domain.FilingDescriptor, 0)
	for i, form := range recent.Form {
		if !l.forms[form] {
			continue
		}
		if i >= len(recent.AccessionNumber) || i >= len(recent.FilingDate) {
			break
		}
		record := domain.FilingDescriptor{
			Form:            form,
			AccessionNumber: recent.AccessionNumber[i],
			FilingDate:      recent.FilingDate[i],
		}
		if i < len(recent.PrimaryDocument) {
			record.PrimaryDocument = recent.PrimaryDocument[i]
		}
		records = append(records, record)
	}
	return records
}
