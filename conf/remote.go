package conf

import (
	"reflect"
	"time"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
	"github.com/txix-open/isp-kit/rc/schema"
	"github.com/txix-open/jsonschema"
)

const (
	defaultUserAgent       = "NPortViewer/1.0 contact@example.com"
	defaultDataBaseUrl     = "https://data.sec.gov"
	defaultArchivesBaseUrl = "https://www.sec.gov/Archives/edgar/data"

	defaultIndexTimeout    = 10 * time.Second
	defaultDocumentTimeout = 60 * time.Second

	defaultRequestsPerMinute = 10
	defaultRequestsPerHour   = 100
	defaultFreezeDuration    = 15 * time.Minute

	defaultCacheCapacity = 64
	defaultCacheTtl      = 1 * time.Hour
)

func init() {
	schema.CustomGenerators.Register("logLevel", func(field reflect.StructField, s *jsonschema.Schema) {
		s.Type = "string"
		s.Enum = []interface{}{"debug", "info", "error", "fatal"}
	})
}

type Remote struct {
	Http      Http      `schema:"HTTP server settings"`
	Logging   Logging   `schema:"Logging settings"`
	Edgar     Edgar     `schema:"SEC EDGAR access settings"`
	RateLimit RateLimit `schema:"Per-client rate limiting"`
	Cache     Cache     `schema:"Fund result cache"`
	Redis     *Redis    `schema:"Redis settings,enables the shared fund result cache when specified"`
}

type Http struct {
	MaxRequestBodySizeInMb int64 `valid:"required" schema:"Maximum request body size,in megabytes"`
}

type Logging struct {
	LogLevel         log.Level `schemaGen:"logLevel" schema:"Log level,request logging is written at debug level"`
	RequestLogEnable bool      `schema:"Enable request logging"`
}

type Edgar struct {
	UserAgent                     string   `schema:"User-Agent header,SEC requires a descriptive agent with a contact address"`
	DataBaseUrl                   string   `schema:"Submissions API base URL"`
	ArchivesBaseUrl               string   `schema:"Filing archives base URL"`
	FormTypes                     []string `schema:"Qualifying form types,defaults to all N-PORT variants"`
	IndexTimeoutInSec             int      `schema:"Submissions index request timeout,in seconds"`
	DocumentTimeoutInSec          int      `schema:"Filing document request timeout,in seconds"`
	AlternateDocumentUrlTemplates []string `schema:"Alternate document URL templates,tried in order after the primary URL; placeholders: {cik} {accession} {accessionNoDash}"`
}

type RateLimit struct {
	RequestsPerMinute   int `schema:"Requests per minute per client"`
	RequestsPerHour     int `schema:"Requests per hour per client"`
	FreezeDurationInMin int `schema:"Freeze duration after the hourly limit is hit,in minutes"`
}

type Cache struct {
	Capacity int `schema:"Maximum number of cached fund results,least recently used entries are evicted"`
	TtlInSec int `schema:"Entry lifetime in the shared Redis cache,in seconds"`
}

type Redis struct {
	Address  string         `schema:"Address,required unless sentinel is specified"`
	Username string         `schema:"Username"`
	Password string         `schema:"Password"`
	Sentinel *RedisSentinel `schema:"Sentinel settings,required unless address is specified"`
}

type RedisSentinel struct {
	Addresses  []string `valid:"required" schema:"Cluster node addresses"`
	MasterName string   `valid:"required" schema:"Master name"`
	Username   string   `schema:"Sentinel username"`
	Password   string   `schema:"Sentinel password"`
}

func (r Remote) Validate() error {
	if r.Redis != nil && r.Redis.Sentinel == nil && r.Redis.Address == "" {
		return errors.New("invalid redis config. sentinel or address are required")
	}
	return nil
}

func (e Edgar) GetUserAgent() string {
	if e.UserAgent == "" {
		return defaultUserAgent
	}
	return e.UserAgent
}

func (e Edgar) GetDataBaseUrl() string {
	if e.DataBaseUrl == "" {
		return defaultDataBaseUrl
	}
	return e.DataBaseUrl
}

func (e Edgar) GetArchivesBaseUrl() string {
	if e.ArchivesBaseUrl == "" {
		return defaultArchivesBaseUrl
	}
	return e.ArchivesBaseUrl
}

func (e Edgar) GetFormTypes() []string {
	if len(e.FormTypes) == 0 {
		return []string{"NPORT-P", "NPORT-P/A", "NPORT-NRT", "NPORT-NRT/A"}
	}
	return e.FormTypes
}

func (e Edgar) GetIndexTimeout() time.Duration {
	if e.IndexTimeoutInSec <= 0 {
		return defaultIndexTimeout
	}
	return time.Duration(e.IndexTimeoutInSec) * time.Second
}

func (e Edgar) GetDocumentTimeout() time.Duration {
	if e.DocumentTimeoutInSec <= 0 {
		return defaultDocumentTimeout
	}
	return time.Duration(e.DocumentTimeoutInSec) * time.Second
}

// The exact set and order of alternate constructions is filer-format-specific,
// so it stays in config instead of code. Placeholders are substituted by the
// fetcher.
func (e Edgar) GetAlternateDocumentUrlTemplates() []string {
	if len(e.AlternateDocumentUrlTemplates) == 0 {
		return []string{
			"https://www.sec.gov/cgi-bin/viewer?action=view&cik={cik}&accession_number={accession}&xbrl_type=v",
			e.GetArchivesBaseUrl() + "/{cik}/{accessionNoDash}/xslFormNPORT-P_X01/primary_doc.xml",
		}
	}
	return e.AlternateDocumentUrlTemplates
}

func (r RateLimit) GetRequestsPerMinute() int {
	if r.RequestsPerMinute <= 0 {
		return defaultRequestsPerMinute
	}
	return r.RequestsPerMinute
}

func (r RateLimit) GetRequestsPerHour() int {
	if r.RequestsPerHour <= 0 {
		return defaultRequestsPerHour
	}
	return r.RequestsPerHour
}

func (r RateLimit) GetFreezeDuration() time.Duration {
	if r.FreezeDurationInMin <= 0 {
		return defaultFreezeDuration
	}
	return time.Duration(r.FreezeDurationInMin) * time.Minute
}

func (c Cache) GetCapacity() int {
	if c.Capacity <= 0 {
		return defaultCacheCapacity
	}
	return c.Capacity
}

func (c Cache) GetTtl() time.Duration {
	if c.TtlInSec <= 0 {
		return defaultCacheTtl
	}
	return time.Duration(c.TtlInSec) * time.Second
}
