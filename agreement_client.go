package authflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPAgreementAPI implements [AgreementService] against the agreement HTTP
// endpoints: GET /api/agreements/latest for the newest record per (user,
// role) and POST /api/agreements for acceptances, both bearer-authenticated.
type HTTPAgreementAPI struct {
	baseURL string
	client  *http.Client
	// AuthToken supplies the bearer token for LatestAgreement calls, which
	// carry no token in their payload. SubmitAcceptance uses the token on
	// the acceptance itself.
	AuthToken func() string
}

// NewHTTPAgreementAPI returns an HTTPAgreementAPI rooted at baseURL.
func NewHTTPAgreementAPI(baseURL string, timeout time.Duration) *HTTPAgreementAPI {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAgreementAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type agreementRecordPayload struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Version   int       `json:"version"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// LatestAgreement implements AgreementService.
func (a *HTTPAgreementAPI) LatestAgreement(ctx context.Context, userID, role string) (*AgreementRecord, error) {
	endpoint := fmt.Sprintf("%s/api/agreements/latest?%s", a.baseURL, url.Values{
		"user_id": {userID},
		"role":    {role},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAgreementUnavailable, err)
	}
	a.authorize(req, "")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAgreementUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrAgreementNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: status %d", ErrAgreementUnavailable, resp.StatusCode)
	}

	var payload agreementRecordPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrAgreementUnavailable, err)
	}
	return &AgreementRecord{
		UserID:    payload.UserID,
		Role:      payload.Role,
		Version:   payload.Version,
		Status:    payload.Status,
		CreatedAt: payload.CreatedAt,
	}, nil
}

type acceptancePayload struct {
	Role    string `json:"role"`
	Version int    `json:"version"`
	Status  string `json:"status"`
}

// SubmitAcceptance implements AgreementService. Any non-2xx response is a
// rejection.
func (a *HTTPAgreementAPI) SubmitAcceptance(ctx context.Context, acceptance AgreementAcceptance) error {
	body, err := json.Marshal(acceptancePayload{
		Role:    acceptance.Role,
		Version: acceptance.Version,
		Status:  acceptance.Status,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgreementRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/agreements", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgreementUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	a.authorize(req, acceptance.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgreementUnavailable, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrAgreementRejected, resp.StatusCode)
	}
	return nil
}

func (a *HTTPAgreementAPI) authorize(req *http.Request, token string) {
	if token == "" && a.AuthToken != nil {
		token = a.AuthToken()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
