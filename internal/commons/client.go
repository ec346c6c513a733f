// Package commons provides a Wikimedia Commons Action API client used to
// walk category trees, inspect file pages and write MediaInfo statements.
package commons

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
	"github.com/antonholmquist/jason"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"taxoclaim/internal/conf"
	"taxoclaim/internal/errors"
	"taxoclaim/internal/logging"
	"taxoclaim/internal/secrets"
	"taxoclaim/internal/wikibase"
)

// Package-level logger specific to the commons service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "commons.log")
	initialLevel := slog.LevelDebug
	serviceLevelVar.Set(initialLevel)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "commons", serviceLevelVar)
	if err != nil {
		// Fallback: log the error and disable file logging for the service
		log.Printf("FATAL: Failed to initialize commons file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "commons")
		closeLogger = func() error { return nil }
	}
}

const (
	// User-Agent constants following Wikimedia robot policy
	// https://foundation.wikimedia.org/wiki/Policy:Wikimedia_Foundation_User-Agent_Policy
	userAgentName    = "TaxoClaim"
	userAgentContact = "https://github.com/taxoclaim/taxoclaim"
	userAgentLibrary = "go-mwclient"

	categoryPrefix = "Category:"
	filePrefix     = "File:"
)

// buildUserAgent constructs a user-agent string that complies with
// Wikimedia's robot policy.
// Format: <client name>/<version> (<contact information>) <library>/<version>
func buildUserAgent(appVersion string) string {
	if appVersion == "" {
		appVersion = "unknown"
	}
	return fmt.Sprintf("%s/%s (%s) %s/%s",
		userAgentName, appVersion, userAgentContact, userAgentLibrary, runtime.Version())
}

// Config holds the Commons client configuration.
type Config struct {
	API          string  // Action API endpoint
	Username     string  // bot account, empty for read-only use
	Password     string  // bot account password, supports ${VAR} references
	PasswordFile string  // path to a mounted secret file, wins over Password
	RateLimit    float64 // maximum write edits per second
	CrawlLimit   float64 // maximum read requests per second while crawling
	MaxRetries   int     // attempts per read request
	Version      string  // application version for the user agent
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		API:        "https://commons.wikimedia.org/w/api.php",
		RateLimit:  0.5,
		CrawlLimit: 2,
		MaxRetries: 3,
	}
}

// ConfigFromSettings builds a client Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) Config {
	cfg := DefaultConfig()
	if settings.Commons.API != "" {
		cfg.API = settings.Commons.API
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

// FileInfo describes a file page on Commons.
type FileInfo struct {
	Title     string // full title including the File: prefix
	PageID    int64
	LastRevID int64
}

// MediaInfoID returns the MediaInfo entity ID for the file.
func (fi *FileInfo) MediaInfoID() string {
	return fmt.Sprintf("M%d", fi.PageID)
}

// Client talks to a Wikimedia Commons Action API endpoint.
type Client struct {
	mw         *mwclient.Client
	config     Config
	writeLimit *rate.Limiter
	crawlLimit *rate.Limiter
	loginOnce  sync.Once
	loginErr   error
}

// NewClient creates a new Commons API client.
func NewClient(config Config) (*Client, error) {
	if config.API == "" {
		config.API = DefaultConfig().API
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}
	if config.RateLimit <= 0 {
		config.RateLimit = DefaultConfig().RateLimit
	}
	if config.CrawlLimit <= 0 {
		config.CrawlLimit = DefaultConfig().CrawlLimit
	}

	userAgent := buildUserAgent(config.Version)
	mw, err := mwclient.New(config.API, userAgent)
	if err != nil {
		enhancedErr := errors.New(err).
			Component("commons").
			Category(errors.CategoryNetwork).
			Context("operation", "create_mwclient").
			Context("api_url", config.API).
			Build()
		logger.Error("Failed to create mwclient for Commons API", "error", enhancedErr)
		return nil, enhancedErr
	}

	// Back off automatically when the replication lag is high, per the
	// Wikimedia robot policy
	mw.Maxlag.On = true

	logger.Info("Commons client initialized",
		"api_url", config.API,
		"user_agent", userAgent,
		"write_rate_limit_eps", config.RateLimit,
		"crawl_rate_limit_rps", config.CrawlLimit,
		"account_configured", config.Username != "")

	return &Client{
		mw:         mw,
		config:     config,
		writeLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		crawlLimit: rate.NewLimiter(rate.Limit(config.CrawlLimit), 2),
	}, nil
}

// Close releases client resources, including the service log file.
func (c *Client) Close() {
	logger.Info("Closing Commons client")
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing commons logger: %v", err)
		}
	}
}

// Login authenticates the configured bot account. It runs at most once per
// client; read-only use never calls it. The password is resolved here, not
// at construction, so secret files and ${VAR} references fail only when a
// write actually needs them.
func (c *Client) Login() error {
	c.loginOnce.Do(func() {
		password, err := secrets.Resolve(c.config.PasswordFile, c.config.Password)
		if err != nil {
			c.loginErr = errors.New(err).
				Component("commons").
				Category(errors.CategoryConfiguration).
				Context("operation", "resolve_password").
				Build()
			return
		}
		if c.config.Username == "" || password == "" {
			c.loginErr = errors.Newf("commons account is not configured").
				Component("commons").
				Category(errors.CategoryConfiguration).
				Context("operation", "login").
				Build()
			return
		}
		if err := c.mw.Login(c.config.Username, password); err != nil {
			c.loginErr = errors.New(err).
				Component("commons").
				Category(errors.CategoryNetwork).
				Context("operation", "login").
				Context("username", c.config.Username).
				Build()
			logger.Error("Commons login failed", "username", c.config.Username, "error", c.loginErr)
			return
		}
		logger.Info("Commons login succeeded", "username", c.config.Username)
	})
	return c.loginErr
}

// get performs a read request with retries and exponential backoff.
// Structured API errors are returned immediately; only transport-level
// failures are retried.
func (c *Client) get(ctx context.Context, reqID string, params map[string]string) (*jason.Object, error) {
	reqLogger := logger.With("request_id", reqID, "api_action", params["action"])

	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		// Keep the crawl polite: every read attempt pays the limiter first
		if err := c.crawlLimit.Wait(ctx); err != nil {
			return nil, errors.New(err).
				Component("commons").
				Category(errors.CategoryCancellation).
				Context("request_id", reqID).
				Build()
		}

		resp, err := c.mw.Get(params)
		if err == nil {
			return resp, nil
		}

		var apiErr mwclient.APIError
		if errors.As(err, &apiErr) {
			// The API understood the request and rejected it; retrying
			// would give the same answer.
			return nil, errors.New(err).
				Component("commons").
				Category(errors.CategoryAPIResponse).
				Context("request_id", reqID).
				Context("api_error_code", apiErr.Code).
				Build()
		}

		lastErr = err
		reqLogger.Warn("Commons API request failed",
			"error", err,
			"attempt", attempt+1,
			"max_attempts", c.config.MaxRetries,
			"will_retry", attempt < c.config.MaxRetries-1)

		if attempt < c.config.MaxRetries-1 {
			waitDuration := time.Second * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return nil, errors.New(ctx.Err()).
					Component("commons").
					Category(errors.CategoryCancellation).
					Context("request_id", reqID).
					Build()
			case <-time.After(waitDuration):
			}
		}
	}

	return nil, errors.New(lastErr).
		Component("commons").
		Category(errors.CategoryNetwork).
		Context("request_id", reqID).
		Context("max_retries", c.config.MaxRetries).
		Context("operation", "get_with_retry").
		Context("api_action", params["action"]).
		Build()
}

// normalizeCategory ensures the Category: namespace prefix is present.
func normalizeCategory(category string) string {
	if strings.HasPrefix(category, categoryPrefix) {
		return category
	}
	return categoryPrefix + category
}

// normalizeFile ensures the File: namespace prefix is present.
func normalizeFile(fileTitle string) string {
	if strings.HasPrefix(fileTitle, filePrefix) {
		return fileTitle
	}
	return filePrefix + fileTitle
}

// categoryMembers lists member titles of a category, draining the continue
// protocol so categories larger than one API page come back complete.
func (c *Client) categoryMembers(ctx context.Context, category, memberType string) ([]string, error) {
	reqID := uuid.New().String()[:8]
	reqLogger := logger.With("request_id", reqID, "category", category, "member_type", memberType)

	params := map[string]string{
		"action":        "query",
		"format":        "json",
		"formatversion": "2",
		"list":          "categorymembers",
		"cmtitle":       normalizeCategory(category),
		"cmtype":        memberType,
		"cmlimit":       "max",
	}

	var titles []string
	for {
		resp, err := c.get(ctx, reqID, params)
		if err != nil {
			return nil, err
		}

		members, err := resp.GetObjectArray("query", "categorymembers")
		if err != nil {
			return nil, errors.New(err).
				Component("commons").
				Category(errors.CategoryAPIResponse).
				Context("request_id", reqID).
				Context("operation", "parse_categorymembers").
				Context("category", category).
				Build()
		}

		for _, member := range members {
			title, err := member.GetString("title")
			if err != nil {
				reqLogger.Warn("Category member without title, skipping", "error", err)
				continue
			}
			titles = append(titles, title)
		}

		cont, err := resp.GetString("continue", "cmcontinue")
		if err != nil {
			break // no more pages
		}
		params["cmcontinue"] = cont
		reqLogger.Debug("Continuing category listing", "cmcontinue", cont, "collected", len(titles))
	}

	reqLogger.Debug("Category members fetched", "count", len(titles))
	return titles, nil
}

// Subcategories returns the titles of all direct subcategories.
func (c *Client) Subcategories(ctx context.Context, category string) ([]string, error) {
	return c.categoryMembers(ctx, category, "subcat")
}

// FilesInCategory returns the titles of all files directly in the category.
func (c *Client) FilesInCategory(ctx context.Context, category string) ([]string, error) {
	return c.categoryMembers(ctx, category, "file")
}

// FileInfo fetches page metadata for a file. A missing page surfaces as a
// not-found error.
func (c *Client) FileInfo(ctx context.Context, fileTitle string) (*FileInfo, error) {
	reqID := uuid.New().String()[:8]
	title := normalizeFile(fileTitle)

	params := map[string]string{
		"action":        "query",
		"format":        "json",
		"formatversion": "2",
		"prop":          "info",
		"titles":        title,
	}

	resp, err := c.get(ctx, reqID, params)
	if err != nil {
		return nil, err
	}

	pages, err := resp.GetObjectArray("query", "pages")
	if err != nil || len(pages) == 0 {
		return nil, errors.Newf("no page data for %s", title).
			Component("commons").
			Category(errors.CategoryAPIResponse).
			Context("request_id", reqID).
			Context("title", title).
			Build()
	}

	page := pages[0]
	if missing, err := page.GetBoolean("missing"); err == nil && missing {
		return nil, errors.Newf("file %s not found", title).
			Component("commons").
			Category(errors.CategoryNotFound).
			Context("request_id", reqID).
			Context("title", title).
			Build()
	}

	pageID, err := page.GetInt64("pageid")
	if err != nil {
		return nil, errors.New(err).
			Component("commons").
			Category(errors.CategoryAPIResponse).
			Context("request_id", reqID).
			Context("operation", "parse_pageid").
			Context("title", title).
			Build()
	}
	lastRevID, err := page.GetInt64("lastrevid")
	if err != nil {
		return nil, errors.New(err).
			Component("commons").
			Category(errors.CategoryAPIResponse).
			Context("request_id", reqID).
			Context("operation", "parse_lastrevid").
			Context("title", title).
			Build()
	}

	return &FileInfo{Title: title, PageID: pageID, LastRevID: lastRevID}, nil
}

// FileCategories returns the titles of all categories the file is in.
func (c *Client) FileCategories(ctx context.Context, fileTitle string) ([]string, error) {
	reqID := uuid.New().String()[:8]
	title := normalizeFile(fileTitle)

	params := map[string]string{
		"action":        "query",
		"format":        "json",
		"formatversion": "2",
		"prop":          "categories",
		"cllimit":       "max",
		"titles":        title,
	}

	var categories []string
	for {
		resp, err := c.get(ctx, reqID, params)
		if err != nil {
			return nil, err
		}

		pages, err := resp.GetObjectArray("query", "pages")
		if err != nil || len(pages) == 0 {
			return nil, errors.Newf("no page data for %s", title).
				Component("commons").
				Category(errors.CategoryAPIResponse).
				Context("request_id", reqID).
				Context("title", title).
				Build()
		}

		// A file without categories has no categories key at all
		if cats, err := pages[0].GetObjectArray("categories"); err == nil {
			for _, cat := range cats {
				if catTitle, err := cat.GetString("title"); err == nil {
					categories = append(categories, catTitle)
				}
			}
		}

		cont, err := resp.GetString("continue", "clcontinue")
		if err != nil {
			break
		}
		params["clcontinue"] = cont
	}

	return categories, nil
}

// FilePermalink returns a permanent URL for the file's current revision,
// suitable for import-URL references.
func (c *Client) FilePermalink(ctx context.Context, fileTitle string) (string, error) {
	info, err := c.FileInfo(ctx, fileTitle)
	if err != nil {
		return "", err
	}
	return c.Permalink(info.Title, info.LastRevID), nil
}

// Permalink builds the index.php permalink for a title at a revision.
func (c *Client) Permalink(title string, revisionID int64) string {
	base := strings.TrimSuffix(c.config.API, "/api.php")
	return fmt.Sprintf("%s/index.php?title=%s&oldid=%d", base, encodeTitle(title), revisionID)
}

// encodeTitle percent-encodes a page title for use in an index.php URL.
// Spaces become underscores; colons and slashes stay literal so namespace
// prefixes and subpages remain readable.
func encodeTitle(title string) string {
	underscored := strings.ReplaceAll(title, " ", "_")
	var b strings.Builder
	for i := 0; i < len(underscored); i++ {
		ch := underscored[i]
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9',
			ch == '-', ch == '.', ch == '_', ch == '~', ch == ':', ch == '/':
			b.WriteByte(ch)
		default:
			fmt.Fprintf(&b, "%%%02X", ch)
		}
	}
	return b.String()
}

// StatementValues returns the values of every statement for one property on
// a MediaInfo entity. Entity-valued statements yield the entity ID, string
// valued statements the string. A MediaInfo slot that does not exist yet
// surfaces as an entity-missing error.
func (c *Client) StatementValues(ctx context.Context, mediaID, property string) ([]string, error) {
	reqID := uuid.New().String()[:8]

	params := map[string]string{
		"action": "wbgetentities",
		"format": "json",
		"ids":    mediaID,
	}

	resp, err := c.get(ctx, reqID, params)
	if err != nil {
		var apiErr mwclient.APIError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Code, "no-such-entity") {
			return nil, errors.Newf("entity %s does not exist", mediaID).
				Component("commons").
				Category(errors.CategoryEntityMissing).
				Context("request_id", reqID).
				Context("entity_id", mediaID).
				Build()
		}
		return nil, err
	}

	entity, err := resp.GetObject("entities", mediaID)
	if err != nil {
		return nil, errors.New(err).
			Component("commons").
			Category(errors.CategoryAPIResponse).
			Context("request_id", reqID).
			Context("operation", "parse_entity").
			Context("entity_id", mediaID).
			Build()
	}

	// Missing entities render as "missing": "" in the legacy format and as
	// a boolean in formatversion 2
	_, missingErr := entity.GetString("missing")
	missingBool, missingBoolErr := entity.GetBoolean("missing")
	if missingErr == nil || (missingBoolErr == nil && missingBool) {
		return nil, errors.Newf("entity %s does not exist", mediaID).
			Component("commons").
			Category(errors.CategoryEntityMissing).
			Context("request_id", reqID).
			Context("entity_id", mediaID).
			Build()
	}

	// MediaInfo serializes statements under "statements"; an entity that
	// has never had structured data renders it as an empty array instead
	// of an object, which GetObject rejects. Both mean no values.
	statements, err := entity.GetObject("statements")
	if err != nil {
		return nil, nil
	}

	claims, err := statements.GetObjectArray(property)
	if err != nil {
		return nil, nil // property never used on this entity
	}

	var values []string
	for _, claim := range claims {
		if id, err := claim.GetString("mainsnak", "datavalue", "value", "id"); err == nil {
			values = append(values, id)
			continue
		}
		if s, err := claim.GetString("mainsnak", "datavalue", "value"); err == nil {
			values = append(values, s)
		}
	}

	logger.Debug("MediaInfo statements fetched",
		"request_id", reqID,
		"entity_id", mediaID,
		"property", property,
		"values", len(values))
	return values, nil
}

// WriteClaims appends claims to an entity via wbeditentity. The write is
// rate limited and requires a logged-in account. Writing to a MediaInfo ID
// whose slot does not exist yet creates it.
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
			Component("commons").
			Category(errors.CategoryCancellation).
			Context("request_id", reqID).
			Context("operation", "rate_limiter_wait").
			Build()
	}

	token, err := c.mw.GetToken(mwclient.CSRFToken)
	if err != nil {
		return errors.New(err).
			Component("commons").
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
			// Session token went stale; fetch a fresh one and try again
			reqLogger.Warn("CSRF token rejected, refreshing and retrying")
			freshToken, tokenErr := c.mw.GetToken(mwclient.CSRFToken)
			if tokenErr == nil {
				params["token"] = freshToken
				resp, err = c.mw.Post(params)
			}
		}
		if err != nil {
			return errors.New(err).
				Component("commons").
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

	reqLogger.Info("Claims written", "summary", summary)
	return nil
}
