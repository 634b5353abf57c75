package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/domain"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*GraphGateway, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := NewGraphGateway(logger, server.URL, "v17.0", 1, server.Client())
	return gw, server
}

func testCreds() Credentials {
	return Credentials{BusinessAccountID: "waba-1", AccessToken: "token-abc"}
}

func TestGraphGateway_RegisterNumber(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"123456789"}`))
	})

	id, res, err := gw.RegisterNumber(context.Background(), testCreds(), RegisterNumberRequest{
		VerifiedName: "Acme Ltd",
		PhoneNumber:  "85296062000",
		CountryCode:  "852",
		Certificate:  "cert-blob",
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "/v17.0/waba-1/phone_numbers", gotPath)
	assert.Equal(t, "Bearer token-abc", gotAuth)
	assert.Equal(t, "NOT_VERIFIED", gotBody["status"])
	assert.Equal(t, "852", gotBody["cc"])
	assert.Equal(t, "123456789", id)
	assert.Equal(t, OutcomeSuccess, Classify(res).Outcome)
}

func TestGraphGateway_RegisterNumber_AlternateIDField(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"phone_number_id":"987654"}`))
	})

	id, _, err := gw.RegisterNumber(context.Background(), testCreds(), RegisterNumberRequest{PhoneNumber: "85296062000", CountryCode: "852"})
	require.NoError(t, err)
	assert.Equal(t, "987654", id)
}

func TestGraphGateway_RequestCode_ErrorEmbeddedInHTTP200(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v17.0/pnid-1/request_code", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"error":{"message":"Invalid parameter","code":100,"error_subcode":2388093}}`))
	})

	res, err := gw.RequestCode(context.Background(), testCreds(), "pnid-1", domain.CodeMethodSMS, "en_US")
	require.NoError(t, err)
	require.NotNil(t, res.PlatformErr)
	assert.Equal(t, 100, res.PlatformErr.Code)
	assert.Equal(t, OutcomeAlreadyVerifiedNeedsPin, Classify(res).Outcome)
}

func TestGraphGateway_ListNumbers(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v17.0/waba-1/phone_numbers", r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"1","display_phone_number":"+852 9606 2000","verified_name":"Acme"},{"id":"2"}]}`))
	})

	numbers, _, err := gw.ListNumbers(context.Background(), testCreds())
	require.NoError(t, err)
	require.Len(t, numbers, 2)
	assert.Equal(t, "1", numbers[0].ID)
	assert.Equal(t, "+852 9606 2000", numbers[0].DisplayNumber)
}

func TestGraphGateway_LookupNumber(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v17.0/pnid-1", r.URL.Path)
		w.Write([]byte(`{"id":"pnid-1","display_phone_number":"+852 9606 2000","verified_name":"Acme"}`))
	})

	info, _, err := gw.LookupNumber(context.Background(), testCreds(), "pnid-1")
	require.NoError(t, err)
	assert.Equal(t, "+852 9606 2000", info.DisplayNumber)
	assert.Equal(t, "Acme", info.VerifiedName)
}

func TestGraphGateway_FinalizeLink_SendsPin(t *testing.T) {
	var gotBody map[string]interface{}
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v17.0/pnid-1/register", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"success":true}`))
	})

	res, err := gw.FinalizeLink(context.Background(), testCreds(), "pnid-1", "123456")
	require.NoError(t, err)
	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
	assert.Equal(t, "123456", gotBody["pin"])
	assert.Equal(t, OutcomeSuccess, Classify(res).Outcome)
}

func TestGraphGateway_TransportErrorAfterRetries(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Point at a server that is already closed so every attempt fails at the
	// transport layer.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()
	gw := NewGraphGateway(logger, server.URL, "v17.0", 1, &http.Client{})

	res, err := gw.VerifyCode(context.Background(), testCreds(), "pnid-1", "000000")
	require.Error(t, err)
	assert.Nil(t, res)
}
