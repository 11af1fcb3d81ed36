package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adhcode/howitworksapp/pkg/logger"
)

const defaultGatewayBaseURL = "https://api.paystack.co"

// HTTPGateway talks to a Paystack-compatible payment API: initialize returns
// a hosted checkout URL, verify reports a transaction's final state.
type HTTPGateway struct {
	client    *http.Client
	baseURL   *url.URL
	secretKey string
	log       *logger.Logger
}

var _ Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway constructs the gateway client. An empty baseURL uses the
// production API.
func NewHTTPGateway(client *http.Client, baseURL, secretKey string, log *logger.Logger) (*HTTPGateway, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, fmt.Errorf("gateway secret key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultGatewayBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway base url: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("payment-gateway")
	}
	return &HTTPGateway{
		client:    client,
		baseURL:   parsed,
		secretKey: secretKey,
		log:       log,
	}, nil
}

func (g *HTTPGateway) InitializeTransaction(ctx context.Context, email string, amountMinor int64, metadata map[string]string) (GatewayInit, error) {
	body, err := json.Marshal(map[string]any{
		"email":    email,
		"amount":   amountMinor,
		"metadata": metadata,
	})
	if err != nil {
		return GatewayInit{}, fmt.Errorf("encode initialize request: %w", err)
	}

	var payload struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := g.call(ctx, http.MethodPost, "/transaction/initialize", body, &payload); err != nil {
		return GatewayInit{}, err
	}
	if !payload.Status {
		return GatewayInit{}, fmt.Errorf("gateway rejected initialize: %s", payload.Message)
	}

	return GatewayInit{
		Reference:   payload.Data.Reference,
		RedirectURL: payload.Data.AuthorizationURL,
	}, nil
}

func (g *HTTPGateway) VerifyTransaction(ctx context.Context, reference string) (GatewayVerification, error) {
	var payload struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Status   string            `json:"status"`
			Amount   int64             `json:"amount"`
			Channel  string            `json:"channel"`
			Metadata map[string]string `json:"metadata"`
		} `json:"data"`
	}
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := g.call(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return GatewayVerification{}, err
	}
	if !payload.Status {
		return GatewayVerification{}, fmt.Errorf("gateway rejected verify: %s", payload.Message)
	}

	return GatewayVerification{
		Status:      payload.Data.Status,
		AmountMinor: payload.Data.Amount,
		Channel:     payload.Data.Channel,
		Metadata:    payload.Data.Metadata,
	}, nil
}

func (g *HTTPGateway) call(ctx context.Context, method, path string, body []byte, out any) error {
	endpoint := *g.baseURL
	endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + path

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
