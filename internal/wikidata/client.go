// Package wikidata provides the Wikidata clients used for taxon name
// resolution, SPARQL claim reads and item claim writes.
package wikidata

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"cgt.name/pkg/go-mwclient"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/ross-spencer/spargo/pkg/spargo"
	"golang.org/x/time/rate"

	"taxoclaim/internal/conf"
	"taxoclaim/internal/errors"
	"taxoclaim/internal/logging"
	"taxoclaim/internal/secrets"
	"taxoclaim/internal/wikibase"
)

// Package-level logger specific to the wikidata service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "wikidata.log")
	initialLevel := slog.LevelDebug
	serviceLevelVar.Set(initialLevel)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "wikidata", serviceLevelVar)
	if err != nil {
		// Fallback: log the error and disable file logging for the service
		log.Printf("FATAL: Failed to initialize wikidata file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "wikidata")
		closeLogger = func() error { return nil }
	}
}

const (
	userAgentName    = "TaxoClaim"
	userAgentContact = "https://github.com/taxoclaim/taxoclaim"
	userAgentLibrary = "go-mwclient"
)

func buildUserAgent(appVersion string) string {
	if appVersion == "" {
		appVersion = "unknown"
	}
	return fmt.Sprintf("%s/%s (%s) %s/%s",
		userAgentName, appVersion, userAgentContact, userAgentLibrary, runtime.Version())
}

// Config holds the Wikidata client configuration.
type Config struct {
	API          string        // Action API endpoint
	SPARQL       string        // query service endpoint
	Username     string        // bot account, shared with Commons via unified login
	Password     string        // bot account password, supports ${VAR} references
	PasswordFile string        // path to a mounted secret file, wins over Password
	CacheTTL     time.Duration // how long taxon search results stay cached
	RateLimit    float64       // maximum write edits per second
	Version      string        // application version for the user agent
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		API:       "https://www.wikidata.org/w/api.php",
		SPARQL:    "https://query.wikidata.org/sparql",
		CacheTTL:  14 * 24 * time.Hour,
		RateLimit: 0.5,
	}
}

// ConfigFromSettings builds a client Config from the application settings.
// The bot account is the Commons one: Wikimedia unified login makes the same
// credentials valid on both wikis.
func ConfigFromSettings(settings *conf.Settings) Config {
	cfg := DefaultConfig()
	if settings.Wikidata.API != "" {
		cfg.API = settings.Wikidata.API
	}
	if settings.Wikidata.SPARQL != "" {
		cfg.SPARQL = settings.Wikidata.SPARQL
	}
	if settings.Wikidata.CacheTTL > 0 {
		cfg.CacheTTL = settings.Wikidata.CacheTTL
	}
	if settings.Commons.RateLimit > 0 {
		cfg.RateLimit = settings.Commons.RateLimit
	}
	cfg.Username = settings.Commons.Username
	cfg.Password = settings.Commons.Password
	cfg.PasswordFile = settings.Commons.PasswordFile
	cfg.Version = settings.Version
	return cfg
}

// Client talks to the Wikidata Action API and the Wikidata Query Service.
type Client struct {
	mw         *mwclient.Client
	config     Config
	cache      *cache.Cache
	writeLimit *rate.Limiter
	loginOnce  sync.Once
	loginErr   error

	// Metrics
	metrics struct {
		searches      int64
		cacheHits     int64
		cacheMisses   int64
		sparqlQueries int64
		writes        int64
		mu            sync.RWMutex
	}
}

// NewClient creates a new Wikidata client.
func NewClient(config Config) (*Client, error) {
	if config.API == "" {
		config.API = DefaultConfig().API
	}
	if config.SPARQL == "" {
		config.SPARQL = DefaultConfig().SPARQL
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultConfig().CacheTTL
	}
	if config.RateLimit <= 0 {
		config.RateLimit = DefaultConfig().RateLimit
	}

	userAgent := buildUserAgent(config.Version)
	mw, err := mwclient.New(config.API, userAgent)
	if err != nil {
		enhancedErr := errors.New(err).
			Component("wikidata").
			Category(errors.CategoryNetwork).
			Context("operation", "create_mwclient").
			Context("api_url", config.API).
			Build()
		logger.Error("Failed to create mwclient for Wikidata API", "error", enhancedErr)
		return nil, enhancedErr
	}
	mw.Maxlag.On = true

	logger.Info("Wikidata client initialized",
		"api_url", config.API,
		"sparql_url", config.SPARQL,
		"cache_ttl", config.CacheTTL,
		"account_configured", config.Username != "")

	return &Client{
		mw:         mw,
		config:     config,
		cache:      cache.New(config.CacheTTL, config.CacheTTL*2),
		writeLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Close releases client resources, including the service log file.
func (c *Client) Close() {
	logger.Info("Closing Wikidata client")
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing wikidata logger: %v", err)
		}
	}
}

// Login authenticates the configured bot account, at most once per client.
// The password resolves through the same secret sources as the Commons one.
func (c *Client) Login() error {
	c.loginOnce.Do(func() {
		password, err := secrets.Resolve(c.config.PasswordFile, c.config.Password)
		if err != nil {
			c.loginErr = errors.New(err).
				Component("wikidata").
				Category(errors.CategoryConfiguration).
				Context("operation", "resolve_password").
				Build()
			return
		}
		if c.config.Username == "" || password == "" {
			c.loginErr = errors.Newf("wikidata account is not configured").
				Component("wikidata").
				Category(errors.CategoryConfiguration).
				Context("operation", "login").
				Build()
			return
		}
		if err := c.mw.Login(c.config.Username, password); err != nil {
			c.loginErr = errors.New(err).
				Component("wikidata").
				Category(errors.CategoryNetwork).
				Context("operation", "login").
				Context("username", c.config.Username).
				Build()
			logger.Error("Wikidata login failed", "username", c.config.Username, "error", c.loginErr)
			return
		}
		logger.Info("Wikidata login succeeded", "username", c.config.Username)
	})
	return c.loginErr
}

// ResolveTaxon looks a taxon name up via wbsearchentities and returns the
// first matching item ID, or "" when nothing matches. Results, including
// misses, are cached: the crude per-file category attribution resolves the
// same handful of names over and over. Lookup errors are not retried; the
// traversal treats them as "no match for now" without caching.
func (c *Client) ResolveTaxon(ctx context.Context, name string) (string, error) {
	cacheKey := "taxon:" + name

	if cached, found := c.cache.Get(cacheKey); found {
		if qid, ok := cached.(string); ok {
			c.metrics.mu.Lock()
			c.metrics.cacheHits++
			c.metrics.mu.Unlock()
			logger.Debug("Taxon cache hit", "name", name, "item", qid)
			return qid, nil
		}
	}
	c.metrics.mu.Lock()
	c.metrics.cacheMisses++
	c.metrics.searches++
	c.metrics.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", errors.New(err).
			Component("wikidata").
			Category(errors.CategoryCancellation).
			Context("operation", "resolve_taxon").
			Build()
	}

	reqID := uuid.New().String()[:8]
	params := map[string]string{
		"action":   "wbsearchentities",
		"format":   "json",
		"search":   name,
		"language": "en",
		"type":     "item",
	}

	resp, err := c.mw.Get(params)
	if err != nil {
		return "", errors.New(err).
			Component("wikidata").
			Category(errors.CategoryTaxonLookup).
			Context("request_id", reqID).
			Context("operation", "wbsearchentities").
			Context("taxon_name", name).
			Build()
	}

	results, err := resp.GetObjectArray("search")
	if err != nil {
		return "", errors.New(err).
			Component("wikidata").
			Category(errors.CategoryAPIResponse).
			Context("request_id", reqID).
			Context("operation", "parse_search_results").
			Context("taxon_name", name).
			Build()
	}

	if len(results) == 0 {
		c.cache.Set(cacheKey, "", cache.DefaultExpiration)
		logger.Debug("No Wikidata item for taxon", "request_id", reqID, "name", name)
		return "", nil
	}

	// First hit wins; the search ranks exact label matches on top
	qid, err := results[0].GetString("id")
	if err != nil {
		return "", errors.New(err).
			Component("wikidata").
			Category(errors.CategoryAPIResponse).
			Context("request_id", reqID).
			Context("operation", "parse_search_id").
			Context("taxon_name", name).
			Build()
	}

	c.cache.Set(cacheKey, qid, cache.DefaultExpiration)
	logger.Debug("Taxon resolved", "request_id", reqID, "name", name, "item", qid)
	return qid, nil
}

// PropertyValues returns the current values of one property on an item,
// read through the query service. Entity and file-path URIs are reduced to
// their last path segment, so item values come back as bare QIDs and
// CommonsMedia values as URL-encoded file names.
func (c *Client) PropertyValues(ctx context.Context, item, property string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("wikidata").
			Category(errors.CategoryCancellation).
			Context("operation", "property_values").
			Build()
	}

	query := fmt.Sprintf(`SELECT ?value WHERE { wd:%s wdt:%s ?value. }`, item, property)
	bindings := c.runQuery(query)

	values := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		result, ok := binding["value"]
		if !ok {
			continue
		}
		values = append(values, lastPathSegment(result.Value))
	}

	logger.Debug("Property values fetched",
		"item", item,
		"property", property,
		"values", len(values))
	return values, nil
}

// MissingImage reports which of the given items lack any value for the
// given image property, in one batched query.
func (c *Client) MissingImage(ctx context.Context, items []string, property string) (map[string]bool, error) {
	if len(items) == 0 {
		return map[string]bool{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("wikidata").
			Category(errors.CategoryCancellation).
			Context("operation", "missing_image").
			Build()
	}

	var ids strings.Builder
	for i, item := range items {
		if i > 0 {
			ids.WriteByte(' ')
		}
		ids.WriteString("wd:")
		ids.WriteString(item)
	}
	query := fmt.Sprintf(`SELECT ?item WHERE {
    VALUES ?item { %s }
    FILTER NOT EXISTS { ?item wdt:%s ?image }
}`, ids.String(), property)

	missing := make(map[string]bool, len(items))
	for _, binding := range c.runQuery(query) {
		result, ok := binding["item"]
		if !ok {
			continue
		}
		missing[lastPathSegment(result.Value)] = true
	}

	logger.Info("Missing image audit",
		"property", property,
		"checked", len(items),
		"missing", len(missing))
	return missing, nil
}

// runQuery executes one SPARQL query against the configured endpoint. The
// spargo client reports no error; an unreachable endpoint or malformed
// response surfaces as zero bindings, which callers treat as no data.
func (c *Client) runQuery(query string) []map[string]spargo.Item {
	c.metrics.mu.Lock()
	c.metrics.sparqlQueries++
	c.metrics.mu.Unlock()

	endpoint := spargo.SPARQLClient{}
	endpoint.ClientInit(c.config.SPARQL, query)
	res := endpoint.SPARQLGo()
	return res.Results.Bindings
}

// lastPathSegment reduces a URI to the text after its final slash.
func lastPathSegment(uri string) string {
	parts := strings.Split(uri, "/")
	return parts[len(parts)-1]
}

// WriteClaims appends claims to an item via wbeditentity. The write is rate
// limited and requires a logged-in account.
func (c *Client) WriteClaims(ctx context.Context, entityID string, claims []wikibase.Claim, summary string) error {
	reqID := uuid.New().String()[:8]
	reqLogger := logger.With("request_id", reqID, "entity_id", entityID, "claims", len(claims))

	if err := c.Login(); err != nil {
		return err
	}

	payload, err := wikibase.MarshalClaims(claims)
	if err != nil {
		return err
	}

	if err := c.writeLimit.Wait(ctx); err != nil {
		return errors.New(err).
			Component("wikidata").
			Category(errors.CategoryCancellation).
			Context("request_id", reqID).
			Context("operation", "rate_limiter_wait").
			Build()
	}

	token, err := c.mw.GetToken(mwclient.CSRFToken)
	if err != nil {
		return errors.New(err).
			Component("wikidata").
			Category(errors.CategoryClaimWrite).
			Context("request_id", reqID).
			Context("operation", "get_csrf_token").
			Build()
	}

	params := map[string]string{
		"action":  "wbeditentity",
		"format":  "json",
		"id":      entityID,
		"data":    payload,
		"token":   token,
		"summary": summary,
	}

	resp, err := c.mw.Post(params)
	if err != nil {
		var apiErr mwclient.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "badtoken" {
			reqLogger.Warn("CSRF token rejected, refreshing and retrying")
			freshToken, tokenErr := c.mw.GetToken(mwclient.CSRFToken)
			if tokenErr == nil {
				params["token"] = freshToken
				resp, err = c.mw.Post(params)
			}
		}
		if err != nil {
			return errors.New(err).
				Component("wikidata").
				Category(errors.CategoryClaimWrite).
				Context("request_id", reqID).
				Context("entity_id", entityID).
				Context("claim_count", len(claims)).
				Build()
		}
	}

	if success, err := resp.GetInt64("success"); err != nil || success != 1 {
		reqLogger.Warn("wbeditentity response did not confirm success", "parse_error", err)
	}

	c.metrics.mu.Lock()
	c.metrics.writes++
	c.metrics.mu.Unlock()

	reqLogger.Info("Claims written", "summary", summary)
	return nil
}

// ClearCache drops all cached taxon lookups.
func (c *Client) ClearCache() {
	c.cache.Flush()
	logger.Info("Wikidata taxon cache cleared")
}

// Metrics is a snapshot of client activity counters.
type Metrics struct {
	Searches      int64 `json:"searches"`
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	SPARQLQueries int64 `json:"sparql_queries"`
	Writes        int64 `json:"writes"`
}

// GetMetrics returns current client metrics.
func (c *Client) GetMetrics() Metrics {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()
	return Metrics{
		Searches:      c.metrics.searches,
		CacheHits:     c.metrics.cacheHits,
		CacheMisses:   c.metrics.cacheMisses,
		SPARQLQueries: c.metrics.sparqlQueries,
		Writes:        c.metrics.writes,
	}
}
