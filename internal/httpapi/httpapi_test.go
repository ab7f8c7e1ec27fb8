package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/val-town/vt/internal/vterrors"
)

func TestRetrieveVal(t *testing.T) {
	valID := uuid.New()
	authorID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vals/"+valID.String() {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(valDTO{
			ID:       valID,
			Name:     "my-val",
			AuthorID: authorID,
			Privacy:  "public",
			CanWrite: true,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", nil)
	val, err := c.RetrieveVal(context.Background(), valID)
	if err != nil {
		t.Fatalf("RetrieveVal: %v", err)
	}
	if val.Name != "my-val" || val.AuthorID != authorID || !val.CanWrite {
		t.Fatalf("unexpected val: %+v", val)
	}
}

func TestStatusErrMapping(t *testing.T) {
	valID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "", nil)
	_, err := c.RetrieveVal(context.Background(), valID)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, vterrors.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
