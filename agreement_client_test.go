package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPAgreementAPISubmitAcceptance(t *testing.T) {
	var got struct {
		method string
		path   string
		auth   string
		body   acceptancePayload
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got.body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	api := NewHTTPAgreementAPI(server.URL, time.Second)
	err := api.SubmitAcceptance(context.Background(), AgreementAcceptance{
		Role:        "coach",
		Version:     3,
		Status:      AgreementStatusAccepted,
		AccessToken: "tok-123",
	})
	if err != nil {
		t.Fatalf("SubmitAcceptance failed: %v", err)
	}

	if got.method != http.MethodPost || got.path != "/api/agreements" {
		t.Fatalf("expected POST /api/agreements, got %s %s", got.method, got.path)
	}
	if got.auth != "Bearer tok-123" {
		t.Fatalf("expected bearer token, got %q", got.auth)
	}
	if got.body.Role != "coach" || got.body.Version != 3 || got.body.Status != AgreementStatusAccepted {
		t.Fatalf("unexpected payload: %+v", got.body)
	}
}

func TestHTTPAgreementAPISubmitNon2xxIsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	api := NewHTTPAgreementAPI(server.URL, time.Second)
	err := api.SubmitAcceptance(context.Background(), AgreementAcceptance{Role: "coach", Version: 3, Status: AgreementStatusAccepted})
	if !errors.Is(err, ErrAgreementRejected) {
		t.Fatalf("expected ErrAgreementRejected, got %v", err)
	}
}

func TestHTTPAgreementAPILatestAgreement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/agreements/latest" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("user_id") != "u1" || r.URL.Query().Get("role") != "coach" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(agreementRecordPayload{
			UserID:    "u1",
			Role:      "coach",
			Version:   2,
			Status:    AgreementStatusAccepted,
			CreatedAt: time.Now(),
		})
	}))
	defer server.Close()

	api := NewHTTPAgreementAPI(server.URL, time.Second)
	record, err := api.LatestAgreement(context.Background(), "u1", "coach")
	if err != nil {
		t.Fatalf("LatestAgreement failed: %v", err)
	}
	if record.Version != 2 || record.Status != AgreementStatusAccepted {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestHTTPAgreementAPILatestNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	api := NewHTTPAgreementAPI(server.URL, time.Second)
	_, err := api.LatestAgreement(context.Background(), "u1", "coach")
	if !errors.Is(err, ErrAgreementNotFound) {
		t.Fatalf("expected ErrAgreementNotFound, got %v", err)
	}
}

func TestHTTPAgreementAPIUnreachableIsUnavailable(t *testing.T) {
	api := NewHTTPAgreementAPI("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := api.LatestAgreement(context.Background(), "u1", "coach")
	if !errors.Is(err, ErrAgreementUnavailable) {
		t.Fatalf("expected ErrAgreementUnavailable, got %v", err)
	}
}
