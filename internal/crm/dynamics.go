package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mbreslin/voicesync/pkg/models"
)

// token refresh happens this long before actual expiry to avoid racing
// the deadline mid-request.
const tokenExpirySlack = 5 * time.Minute

// DynamicsClient implements Creator against the Dynamics 365 Web API
// (OData v4). Access tokens are obtained per tenant via the OAuth2
// client-credentials grant and cached until shortly before expiry.
type DynamicsClient struct {
	client    *http.Client
	loginBase string

	mu     sync.Mutex
	tokens map[uuid.UUID]cachedToken
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

func NewDynamicsClient(timeout time.Duration) *DynamicsClient {
	return &DynamicsClient{
		client:    &http.Client{Timeout: timeout},
		loginBase: "https://login.microsoftonline.com",
		tokens:    make(map[uuid.UUID]cachedToken),
	}
}

func (c *DynamicsClient) CreateRecord(ctx context.Context, tenant *models.Tenant, entityName string, fields map[string]any) (string, error) {
	token, err := c.ensureToken(ctx, tenant)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	u := fmt.Sprintf("%s/api/data/v9.2/%s", strings.TrimRight(tenant.CRMBaseURL, "/"), url.PathEscape(entityName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.invalidateToken(tenant.ID)
		return "", fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrCreateRejected, resp.StatusCode)
	}

	// Prefer the entity id from the response body; fall back to the
	// OData-EntityId header when the body is suppressed.
	var created map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
		for key, value := range created {
			if strings.HasSuffix(key, "id") && !strings.HasPrefix(key, "@") {
				if id, ok := value.(string); ok && id != "" {
					return id, nil
				}
			}
		}
	}
	if header := resp.Header.Get("OData-EntityId"); header != "" {
		return parseEntityIDHeader(header), nil
	}
	return "", fmt.Errorf("%w: response contained no record id", ErrCreateRejected)
}

func (c *DynamicsClient) ensureToken(ctx context.Context, tenant *models.Tenant) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[tenant.ID]
	c.mu.Unlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return cached.accessToken, nil
	}
	return c.authenticate(ctx, tenant)
}

func (c *DynamicsClient) authenticate(ctx context.Context, tenant *models.Tenant) (string, error) {
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.loginBase, tenant.CRMDirectoryID)

	form := url.Values{
		"client_id":     {tenant.CRMClientID},
		"client_secret": {tenant.CRMClientSecret},
		"scope":         {strings.TrimRight(tenant.CRMBaseURL, "/") + "/.default"},
		"grant_type":    {"client_credentials"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint status %d", ErrAuthFailed, resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", ErrAuthFailed, err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}

	c.mu.Lock()
	c.tokens[tenant.ID] = cachedToken{
		accessToken: tokenResp.AccessToken,
		expiresAt:   time.Now().Add(time.Duration(expiresIn)*time.Second - tokenExpirySlack),
	}
	c.mu.Unlock()

	return tokenResp.AccessToken, nil
}

func (c *DynamicsClient) invalidateToken(tenantID uuid.UUID) {
	c.mu.Lock()
	delete(c.tokens, tenantID)
	c.mu.Unlock()
}

// parseEntityIDHeader extracts the GUID from an OData-EntityId header,
// e.g. "https://org.crm.dynamics.com/api/data/v9.2/accounts(GUID)".
func parseEntityIDHeader(header string) string {
	start := strings.LastIndexByte(header, '(')
	end := strings.LastIndexByte(header, ')')
	if start >= 0 && end > start {
		return header[start+1 : end]
	}
	return header
}

var _ Creator = (*DynamicsClient)(nil)
