package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/types"
)

const (
	// expiryWarningDays is the number of days before expiration to show a warning.
	expiryWarningDays = 30
	// expiryCacheTTL is how long to cache the expiry info before re-checking.
	expiryCacheTTL = 1 * time.Hour
)

// SecretExpiryChecker reports when the Graph client secret expires. Results
// are cached for an hour.
type SecretExpiryChecker struct {
	cfg        *types.GraphConfig
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	cached    types.SecretExpiryInfo
	lastCheck time.Time
}

// NewSecretExpiryChecker creates a new expiry checker for the given config.
func NewSecretExpiryChecker(cfg *types.GraphConfig) *SecretExpiryChecker {
	return &SecretExpiryChecker{
		cfg:        cfg,
		baseURL:    graphBaseURL,
		httpClient: &http.Client{Timeout: httpTimeout},
	}
}

// GetInfo returns the secret expiry information.
func (c *SecretExpiryChecker) GetInfo(ctx context.Context) types.SecretExpiryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastCheck.IsZero() && time.Since(c.lastCheck) < expiryCacheTTL {
		return c.cached
	}

	var info types.SecretExpiryInfo
	if c.cfg == nil || validateCredentials(c.cfg, false) != nil {
		info = types.SecretExpiryInfo{Error: "Graph API not configured"}
	} else {
		var err error
		if info, err = c.fetchExpiryInfo(ctx); err != nil {
			info = types.SecretExpiryInfo{Error: err.Error()}
		}
	}

	c.cached = info
	c.lastCheck = time.Now()
	return info
}

type applicationResponse struct {
	PasswordCredentials []passwordCredential `json:"passwordCredentials"`
}

type passwordCredential struct {
	EndDateTime string `json:"endDateTime"`
}

// fetchExpiryInfo queries the application registration for credential expiry.
func (c *SecretExpiryChecker) fetchExpiryInfo(ctx context.Context) (types.SecretExpiryInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	ts, err := TokenSourceContext(ctx, c.cfg)
	if err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("create token source: %w", err)
	}
	token, err := ts.Token()
	if err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("acquire token: %w", err)
	}

	apiURL := fmt.Sprintf("%s/applications(appId='%s')", c.baseURL, url.PathEscape(c.cfg.ClientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return types.SecretExpiryInfo{}, fmt.Errorf("API returned %d: %s", resp.StatusCode, string(body))
	}

	var appResp applicationResponse
	if err := json.Unmarshal(body, &appResp); err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("parse response: %w", err)
	}
	return expiryFromCredentials(appResp.PasswordCredentials, time.Now()), nil
}

// expiryFromCredentials picks the earliest expiring credential.
func expiryFromCredentials(creds []passwordCredential, now time.Time) types.SecretExpiryInfo {
	var earliest time.Time
	for _, cred := range creds {
		expiry, err := time.Parse(time.RFC3339, cred.EndDateTime)
		if err != nil {
			continue
		}
		if earliest.IsZero() || expiry.Before(earliest) {
			earliest = expiry
		}
	}

	if earliest.IsZero() {
		return types.SecretExpiryInfo{Error: "no password credentials found"}
	}

	daysLeft := max(int(earliest.Sub(now).Hours()/24), 0)
	return types.SecretExpiryInfo{
		ExpiresAt:   earliest.Format(time.RFC3339),
		ExpiresSoon: daysLeft <= expiryWarningDays,
		DaysLeft:    daysLeft,
	}
}
