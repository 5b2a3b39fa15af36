// Package sheets implements the remote ledger against the Google Sheets v4
// append API, authenticating with a service-account JWT bearer grant.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-hclog"

	"prodtrack/internal/syncer"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	defaultAPIBase  = "https://sheets.googleapis.com/v4/spreadsheets"
	jwtBearerGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	sheetsScope     = "https://www.googleapis.com/auth/spreadsheets"

	// tokenSlack renews the cached token slightly before Google expires it.
	tokenSlack = 30 * time.Second
)

// Credentials is the relevant subset of the JSON key file Google issues for
// a service account.
type Credentials struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials file: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials file: %w", err)
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return Credentials{}, fmt.Errorf("credentials file missing client_email or private_key")
	}
	return creds, nil
}

// Client appends rows to one spreadsheet range. It satisfies
// syncer.RemoteLedger.
type Client struct {
	creds         Credentials
	spreadsheetID string
	sheetRange    string
	tokenURL      string
	apiBase       string
	httpClient    *http.Client
	logger        hclog.Logger
	now           func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(creds Credentials, spreadsheetID, sheetRange string, logger hclog.Logger) *Client {
	return NewClientWithEndpoints(creds, spreadsheetID, sheetRange, logger, defaultTokenURL, defaultAPIBase, nil)
}

// NewClientWithEndpoints overrides the Google endpoints and HTTP client,
// which lets tests run against a local fake.
func NewClientWithEndpoints(creds Credentials, spreadsheetID, sheetRange string, logger hclog.Logger, tokenURL, apiBase string, httpClient *http.Client) *Client {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if sheetRange == "" {
		sheetRange = "Sheet1!A:E"
	}
	return &Client{
		creds:         creds,
		spreadsheetID: spreadsheetID,
		sheetRange:    sheetRange,
		tokenURL:      tokenURL,
		apiBase:       apiBase,
		httpClient:    httpClient,
		logger:        logger,
		now:           time.Now,
	}
}

// Authenticate exchanges a signed service-account assertion for a bearer
// token and caches it until shortly before expiry.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.creds.PrivateKey))
	if err != nil {
		return fmt.Errorf("parse service account key: %w", err)
	}

	now := c.now()
	claims := jwt.MapClaims{
		"iss":   c.creds.ClientEmail,
		"scope": sheetsScope,
		"aud":   c.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return fmt.Errorf("sign token assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("exchange token assertion: %w", err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read token response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned %d: %s", response.StatusCode, body)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("token endpoint returned no access token")
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = now.Add(time.Duration(token.ExpiresIn) * time.Second).Add(-tokenSlack)
	c.logger.Debug("sheets authentication succeeded", "expires_in", token.ExpiresIn)
	return nil
}

func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken == "" || !c.now().Before(c.tokenExpiry) {
		if err := c.authenticateLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.accessToken, nil
}

// AppendRow appends one five-value row to the configured range, refreshing
// the bearer token first when needed.
func (c *Client) AppendRow(ctx context.Context, row syncer.Row) error {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"values": [][5]string{row},
	})
	if err != nil {
		return fmt.Errorf("encode append payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=USER_ENTERED",
		c.apiBase, c.spreadsheetID, url.PathEscape(c.sheetRange))
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build append request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		body, _ := io.ReadAll(response.Body)
		return fmt.Errorf("append endpoint returned %d: %s", response.StatusCode, body)
	}

	c.logger.Debug("row appended to sheet", "spreadsheet", c.spreadsheetID)
	return nil
}
