package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aardg/massabalans/pkg/config"
	"google.golang.org/api/googleapi"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "ds"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: " "}, nil); !errors.Is(err, errDatasetRequired) {
		t.Fatalf("expected dataset error, got %v", err)
	}
}

func TestQualifiedTable(t *testing.T) {
	got := QualifiedTable("proj", "sales", " monta_orders ")
	if got != "`proj.sales.monta_orders`" {
		t.Fatalf("unexpected reference %s", got)
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	ctx := context.Background()
	if err := c.Ping(ctx); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if _, err := c.Exec(ctx, "SELECT 1", nil); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.DeleteTable(ctx, "t"); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client should be a no-op, got %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})) {
		t.Fatal("expected wrapped 404 to be detected")
	}
	if IsNotFound(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Fatal("403 is not a not-found")
	}
	if IsNotFound(errors.New("plain")) {
		t.Fatal("plain error is not a not-found")
	}
}

func TestIsAlreadyExists(t *testing.T) {
	if !IsAlreadyExists(fmt.Errorf("creating table: %w", &googleapi.Error{Code: http.StatusConflict})) {
		t.Fatal("expected wrapped 409 to be detected")
	}
	if IsAlreadyExists(&googleapi.Error{Code: http.StatusNotFound}) {
		t.Fatal("404 is not a conflict")
	}
}
