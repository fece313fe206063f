// internal/infra/advisory/client.go
package advisory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	adv "psirt_report_bot/internal/domain/advisory"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultTimeout = 30 * time.Second
	// Tokens are refreshed this long before the expiry the token endpoint reports.
	tokenEarlyExpiry = 120 * time.Second
	dateLayout       = "2006-01-02"
)

// Config holds the openVuln credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIURL       string // .../security/advisories/all/firstpublished
	Timeout      time.Duration
}

// Client implements advisory.Feed against the openVuln REST API.
type Client struct {
	httpClient *http.Client
	apiURL     string
	logger     *logrus.Entry
}

var _ adv.Feed = (*Client)(nil)

func NewClient(cfg Config, logger *logrus.Entry) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := &http.Client{Timeout: timeout}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	src := oauth2.ReuseTokenSourceWithExpiry(nil, cc.TokenSource(tokenCtx), tokenEarlyExpiry)

	return &Client{
		httpClient: oauth2.NewClient(tokenCtx, src),
		apiURL:     cfg.APIURL,
		logger:     logger,
	}
}

type advisoriesResponse struct {
	Advisories []adv.Entry `json:"advisories"`
}

// Fetch returns the advisories first published between from and to (dates only).
// Any failure is fatal for the caller's run and is categorized with advisory.CategorizeStatus.
func (c *Client) Fetch(ctx context.Context, from, to time.Time) (*adv.Snapshot, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid advisory API URL: %w", err)
	}
	q := u.Query()
	q.Set("startDate", from.Format(dateLayout))
	q.Set("endDate", to.Format(dateLayout))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building advisory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			status := retrieveErr.Response.StatusCode
			c.logger.WithField("status", status).Error("Advisory token request rejected")
			return nil, fmt.Errorf("token endpoint returned %d: %w", status, adv.CategorizeStatus(status))
		}
		return nil, fmt.Errorf("requesting advisories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.WithFields(logrus.Fields{"status": resp.StatusCode, "body": string(body)}).Error("Advisory feed request failed")
		return nil, fmt.Errorf("advisory feed returned %d: %w", resp.StatusCode, adv.CategorizeStatus(resp.StatusCode))
	}

	var payload advisoriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding advisories: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"entries": len(payload.Advisories),
		"from":    from.Format(dateLayout),
		"to":      to.Format(dateLayout),
	}).Info("Fetched advisory snapshot")

	return &adv.Snapshot{Entries: payload.Advisories, From: from, To: to}, nil
}
