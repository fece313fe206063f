// internal/infra/webex/client.go
package webex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"psirt_report_bot/internal/domain/messaging"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

// errServerStatus marks 5xx answers as breaker failures. They are still
// returned to the caller as status codes.
var errServerStatus = errors.New("webex server error")

// Config holds the Webex messages endpoint settings.
type Config struct {
	APIURL          string // https://webexapis.com/v1/messages
	Bearer          string
	RatePerSecond   float64
	Timeout         time.Duration
	BreakerTimeout  time.Duration // open -> half-open
	BreakerFailures uint32        // consecutive failures that open the breaker
}

// Client implements messaging.Transport with the Webex messages API.
type Client struct {
	httpClient *http.Client
	apiURL     string
	bearer     string
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[int]
	logger     *logrus.Entry
}

var _ messaging.Transport = (*Client)(nil)

func NewClient(cfg Config, logger *logrus.Entry) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "webex-messages",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("Circuit breaker state transition")
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiURL:     cfg.APIURL,
		bearer:     cfg.Bearer,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		cb:         cb,
		logger:     logger,
	}
}

type messageRequest struct {
	RoomID      string       `json:"roomId"`
	Markdown    string       `json:"markdown,omitempty"`
	Attachments []attachment `json:"attachments,omitempty"`
	Files       []string     `json:"files,omitempty"`
}

// Send posts one message to a room. Any HTTP answer is returned as its status code;
// errors mean the payload was rejected locally or no answer was received.
func (c *Client) Send(ctx context.Context, target string, msg messaging.Message) (int, error) {
	body, err := json.Marshal(buildRequest(target, msg))
	if err != nil {
		return 0, fmt.Errorf("encoding webex message: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("waiting for webex rate limit: %w", err)
	}

	status, err := c.cb.Execute(func() (int, error) {
		return c.post(ctx, body)
	})
	if errors.Is(err, errServerStatus) {
		return status, nil
	}
	if err != nil {
		return 0, err
	}
	return status, nil
}

func buildRequest(target string, msg messaging.Message) messageRequest {
	req := messageRequest{RoomID: target, Markdown: msg.Text}
	if msg.Summary != nil {
		req.Attachments = summaryCard(msg.Summary)
	}
	for _, f := range msg.Files {
		req.Files = append(req.Files, f.URL)
	}
	return req
}

func (c *Client) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building webex request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("posting webex message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, errServerStatus
	}
	return resp.StatusCode, nil
}
