package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/domain"
)

const defaultTimeout = 15 * time.Second

// GraphGateway talks to the Graph-API style endpoint of the messaging
// platform. One instance (and one underlying http.Client) is shared by all
// requests; the client's timeout bounds every call. Transport errors are
// retried a small fixed number of times with backoff; responses that made it
// back, whatever they say, are never retried here.
type GraphGateway struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiVersion string
	maxRetries int
}

func NewGraphGateway(logger *slog.Logger, baseURL, apiVersion string, maxRetries int, httpClient *http.Client) *GraphGateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &GraphGateway{
		logger:     logger.With("provider", "graph"),
		httpClient: httpClient,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		maxRetries: maxRetries,
	}
}

// envelope is the platform's standard body wrapper: a payload and/or an
// "error" object. The error object can appear under an HTTP 200.
type envelope struct {
	Error *PlatformError `json:"error"`
}

type registerNumberBody struct {
	VerifiedName string `json:"verified_name"`
	PhoneNumber  string `json:"phone_number"`
	CountryCode  string `json:"cc"`
	Certificate  string `json:"cert,omitempty"`
	Status       string `json:"status"`
}

type registerNumberResponse struct {
	ID string `json:"id"`
	// Some platform versions return the assigned id under this name instead.
	PhoneNumberID string `json:"phone_number_id"`
}

type requestCodeBody struct {
	CodeMethod string `json:"code_method"`
	Language   string `json:"language"`
}

type verifyCodeBody struct {
	Code string `json:"code"`
}

type registerBody struct {
	MessagingProduct string `json:"messaging_product"`
	Pin              string `json:"pin"`
}

type listNumbersResponse struct {
	Data []NumberInfo `json:"data"`
}

func (g *GraphGateway) LookupNumber(ctx context.Context, creds Credentials, phoneNumberID string) (*NumberInfo, *CallResult, error) {
	endpoint := g.endpoint(phoneNumberID) + "?fields=id,display_phone_number,verified_name"
	res, err := g.do(ctx, http.MethodGet, endpoint, creds.AccessToken, nil)
	if err != nil {
		return nil, res, err
	}

	var info NumberInfo
	if res.PlatformErr == nil && res.StatusCode < 400 {
		if err := json.Unmarshal(res.RawBody, &info); err != nil {
			g.logger.WarnContext(ctx, "Failed to parse number lookup response", "error", err, "phone_number_id", phoneNumberID)
		}
	}
	return &info, res, nil
}

func (g *GraphGateway) RegisterNumber(ctx context.Context, creds Credentials, req RegisterNumberRequest) (string, *CallResult, error) {
	body := registerNumberBody{
		VerifiedName: req.VerifiedName,
		PhoneNumber:  req.PhoneNumber,
		CountryCode:  req.CountryCode,
		Certificate:  req.Certificate,
		Status:       "NOT_VERIFIED",
	}
	endpoint := g.endpoint(creds.BusinessAccountID, "phone_numbers")
	res, err := g.do(ctx, http.MethodPost, endpoint, creds.AccessToken, body)
	if err != nil {
		return "", res, err
	}

	var parsed registerNumberResponse
	if res.PlatformErr == nil && res.StatusCode < 400 {
		if err := json.Unmarshal(res.RawBody, &parsed); err != nil {
			g.logger.WarnContext(ctx, "Failed to parse register number response", "error", err)
		}
	}
	assignedID := parsed.ID
	if assignedID == "" {
		assignedID = parsed.PhoneNumberID
	}
	return assignedID, res, nil
}

func (g *GraphGateway) ListNumbers(ctx context.Context, creds Credentials) ([]NumberInfo, *CallResult, error) {
	endpoint := g.endpoint(creds.BusinessAccountID, "phone_numbers")
	res, err := g.do(ctx, http.MethodGet, endpoint, creds.AccessToken, nil)
	if err != nil {
		return nil, res, err
	}

	var parsed listNumbersResponse
	if res.PlatformErr == nil && res.StatusCode < 400 {
		if err := json.Unmarshal(res.RawBody, &parsed); err != nil {
			g.logger.WarnContext(ctx, "Failed to parse list numbers response", "error", err)
		}
	}
	return parsed.Data, res, nil
}

func (g *GraphGateway) RequestCode(ctx context.Context, creds Credentials, phoneNumberID string, method domain.CodeMethod, language string) (*CallResult, error) {
	body := requestCodeBody{CodeMethod: string(method), Language: language}
	return g.do(ctx, http.MethodPost, g.endpoint(phoneNumberID, "request_code"), creds.AccessToken, body)
}

func (g *GraphGateway) VerifyCode(ctx context.Context, creds Credentials, phoneNumberID, code string) (*CallResult, error) {
	body := verifyCodeBody{Code: code}
	return g.do(ctx, http.MethodPost, g.endpoint(phoneNumberID, "verify_code"), creds.AccessToken, body)
}

func (g *GraphGateway) FinalizeLink(ctx context.Context, creds Credentials, phoneNumberID, pin string) (*CallResult, error) {
	body := registerBody{MessagingProduct: "whatsapp", Pin: pin}
	return g.do(ctx, http.MethodPost, g.endpoint(phoneNumberID, "register"), creds.AccessToken, body)
}

func (g *GraphGateway) endpoint(parts ...string) string {
	u := g.baseURL + "/" + g.apiVersion
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// do performs one platform call. The returned error is transport-level only;
// any HTTP response, success or not, comes back as a CallResult for the
// classifier to interpret.
func (g *GraphGateway) do(ctx context.Context, method, endpoint, token string, body interface{}) (*CallResult, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal platform request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			g.logger.WarnContext(ctx, "Retrying platform request after transport error",
				"attempt", attempt, "backoff", backoff, "endpoint", endpoint, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to build platform request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		httpResp, err := g.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		res := &CallResult{StatusCode: httpResp.StatusCode, RawBody: respBody}
		var env envelope
		if len(respBody) > 0 {
			if err := json.Unmarshal(respBody, &env); err == nil && env.Error != nil {
				res.PlatformErr = env.Error
			}
		}

		g.logger.DebugContext(ctx, "Platform call completed",
			"method", method, "endpoint", endpoint, "status_code", res.StatusCode,
			"platform_error", res.PlatformErr != nil)
		return res, nil
	}

	return nil, fmt.Errorf("platform request failed after %d attempts: %w", g.maxRetries+1, lastErr)
}
