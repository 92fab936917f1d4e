package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/inventory/pkg/kafkax/kafkatest"
	"github.com/ghuser/inventory/pkg/logger"
	appsvcs "github.com/ghuser/inventory/services/item/application/services"
	"github.com/ghuser/inventory/services/item/infrastructure/persistence/memory"
)

type fixture struct {
	router http.Handler
	broker *kafkatest.Broker
	repo   *memory.ItemRepository
}

func newFixture(isProduction bool) *fixture {
	f := &fixture{broker: kafkatest.NewBroker(), repo: memory.NewItemRepository()}
	svcs := &appsvcs.Services{
		Item:   appsvcs.NewItemService(f.repo, nil, logger.Nop()),
		Writes: appsvcs.NewWriteDispatcher(f.broker, appsvcs.DispatcherConfig{}, logger.Nop()),
	}

	r := chi.NewRouter()
	r.Get("/", Root)
	r.Get("/items", NewListItemsHandler(svcs, isProduction).Execute)
	r.Post("/items", NewCreateItemHandler(svcs, isProduction).Execute)
	r.Get("/items/{id}", NewGetItemHandler(svcs, isProduction).Execute)
	r.Put("/items/{id}", NewUpdateItemHandler(svcs, isProduction).Execute)
	r.Delete("/items/{id}", NewDeleteItemHandler(svcs, isProduction).Execute)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRoot(t *testing.T) {
	rec := newFixture(false).do(t, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if got := decode[MessageResponse](t, rec); got.Message != "Inventory Management Service" {
		t.Errorf("message: got %q", got.Message)
	}
}

func TestCreateItem_Accepted(t *testing.T) {
	f := newFixture(false)
	rec := f.do(t, http.MethodPost, "/items", `{"name":"Widget","description":"A widget"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}
	if got := decode[DetailResponse](t, rec); got.Detail != "Item creation event produced" {
		t.Errorf("detail: got %q", got.Detail)
	}
	if n := len(f.broker.Messages()); n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}
	if items, _ := f.repo.GetAll(context.Background()); len(items) != 0 {
		t.Error("create must not write to the store directly")
	}
}

func TestUpdateItem_Accepted(t *testing.T) {
	f := newFixture(false)
	rec := f.do(t, http.MethodPut, "/items/7", `{"description":"new"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}
	if got := decode[DetailResponse](t, rec); got.Detail != "Item update event produced" {
		t.Errorf("detail: got %q", got.Detail)
	}
	msgs := f.broker.Messages()
	if len(msgs) != 1 || string(msgs[0].Value) != `{"id":7,"description":"new"}` {
		t.Errorf("unexpected events: %+v", msgs)
	}
}

func TestWriteErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		setup      func(*kafkatest.Broker)
		wantStatus int
	}{
		{"create malformed json", http.MethodPost, "/items", `{"name":`, nil, http.StatusBadRequest},
		{"create missing name", http.MethodPost, "/items", `{"description":"x"}`, nil, http.StatusUnprocessableEntity},
		{"create name too long", http.MethodPost, "/items", `{"name":"` + string(bytes.Repeat([]byte("a"), 256)) + `"}`, nil, http.StatusUnprocessableEntity},
		{"update bad id", http.MethodPut, "/items/abc", `{"name":"x"}`, nil, http.StatusBadRequest},
		{"update zero id", http.MethodPut, "/items/0", `{"name":"x"}`, nil, http.StatusBadRequest},
		{"update empty body", http.MethodPut, "/items/1", `{}`, nil, http.StatusUnprocessableEntity},
		{"create broker unavailable", http.MethodPost, "/items", `{"name":"Widget"}`, func(b *kafkatest.Broker) {
			b.FailInitialize(errors.New("connection refused"))
		}, http.StatusServiceUnavailable},
		{"update broker unavailable", http.MethodPut, "/items/1", `{"name":"Widget"}`, func(b *kafkatest.Broker) {
			b.FailInitialize(errors.New("connection refused"))
		}, http.StatusServiceUnavailable},
		{"create send failure", http.MethodPost, "/items", `{"name":"Widget"}`, func(b *kafkatest.Broker) {
			b.FailPublish(errors.New("leader not available"))
		}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(false)
			if tt.setup != nil {
				tt.setup(f.broker)
			}
			rec := f.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d, body %s", rec.Code, tt.wantStatus, rec.Body)
			}
			if got := decode[ErrorResponse](t, rec); got.Error == "" {
				t.Error("expected an error message")
			}
			if n := len(f.broker.Messages()); n != 0 {
				t.Errorf("expected no events, got %d", n)
			}
		})
	}
}

func TestSendFailure_SanitizedInProduction(t *testing.T) {
	f := newFixture(true)
	f.broker.FailPublish(errors.New("leader not available on broker-3"))

	rec := f.do(t, http.MethodPost, "/items", `{"name":"Widget"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Error != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("expected sanitized message, got %q", got.Error)
	}
}

func TestGetItem(t *testing.T) {
	f := newFixture(false)
	created, _ := f.repo.Create(context.Background(), "Widget", "A widget")

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"found", "/items/1", http.StatusOK},
		{"missing", "/items/99", http.StatusNotFound},
		{"not a number", "/items/x", http.StatusBadRequest},
		{"negative", "/items/-1", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
			switch tt.wantStatus {
			case http.StatusOK:
				got := decode[ItemResponse](t, rec)
				if got.ID != created.ID || got.Name != "Widget" || got.Description != "A widget" {
					t.Errorf("unexpected item: %+v", got)
				}
			case http.StatusNotFound:
				if got := decode[DetailResponse](t, rec); got.Detail != "Item not found" {
					t.Errorf("detail: got %q", got.Detail)
				}
			}
		})
	}
}

func TestListItems(t *testing.T) {
	f := newFixture(false)

	rec := f.do(t, http.MethodGet, "/items", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Fatalf("empty list: got %d %q", rec.Code, rec.Body)
	}

	_, _ = f.repo.Create(context.Background(), "A", "first")
	_, _ = f.repo.Create(context.Background(), "B", "")

	got := decode[[]ItemResponse](t, f.do(t, http.MethodGet, "/items", ""))
	want := []ItemResponse{{ID: 1, Name: "A", Description: "first"}, {ID: 2, Name: "B"}}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDeleteItem(t *testing.T) {
	f := newFixture(false)
	_, _ = f.repo.Create(context.Background(), "Widget", "")

	rec := f.do(t, http.MethodDelete, "/items/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if got := decode[DetailResponse](t, rec); got.Detail != "Item deleted" {
		t.Errorf("detail: got %q", got.Detail)
	}

	if rec := f.do(t, http.MethodGet, "/items/1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d", rec.Code)
	}
	rec = f.do(t, http.MethodDelete, "/items/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: got %d", rec.Code)
	}
	if got := decode[DetailResponse](t, rec); got.Detail != "Item not found" {
		t.Errorf("detail: got %q", got.Detail)
	}
}
