package edgar

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nport-service/conf"
	"nport-service/domain"
)

// Fetcher retrieves a filing's rendered document. Filers address documents
// inconsistently, so after the primary URL fails it walks the configured
// alternate constructions in order; the first well-formed response wins.
type Fetcher struct {
	client    client
	archives  string
	templates []string
	timeout   time.Duration
}

func NewFetcher(config conf.Edgar) Fetcher {
	return Fetcher{
		client:    newClient(config),
		archives:  config.GetArchivesBaseUrl(),
		templates: config.GetAlternateDocumentUrlTemplates(),
		timeout:   config.GetDocumentTimeout(),
	}
}

func (f Fetcher) Fetch(ctx context.Context, cik string, filing domain.FilingDescriptor) (*domain.RawDocument, error) {
	lastStatus := 0
	for _, url := range f.candidates(cik, filing) {
		result, err := f.client.get(ctx, url, f.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		lastStatus = result.status
		if result.status == http.StatusOK && wellFormed(result.body) {
			return &domain.RawDocument{Url: url, Content: result.body}, nil
		}
	}
	return nil, domain.DocumentUnavailableError{
		Accession:  filing.AccessionNumber,
		LastStatus: lastStatus,
	}
}

func (f Fetcher) candidates(cik string, filing domain.FilingDescriptor) []string {
	accessionNoDash := strings.ReplaceAll(filing.AccessionNumber, "-", "")
	primaryDocument := filing.PrimaryDocument
	if primaryDocument == "" {
		primaryDocument = "primary_doc.xml"
	}

	urls := []string{
		fmt.Sprintf("%s/%s/%s/%s", f.archives, cik, accessionNoDash, primaryDocument),
	}
	replacer := strings.NewReplacer(
		"{cik}", cik,
		"{accession}", filing.AccessionNumber,
		"{accessionNoDash}", accessionNoDash,
	)
	for _, template := range f.templates {
		urls = append(urls, replacer.Replace(template))
	}
	return urls
}

func wellFormed(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}
