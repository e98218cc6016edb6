package sqldb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
)

func TestSQLDBStore_GetMissing(t *testing.T) {
	store, err := NewSQLite("file:memdb1?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	defer store.Close()

	_, err = store.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSQLDBStore_SaveAndGet(t *testing.T) {
	store, err := NewSQLite("file:memdb2?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	company := "Acme Corp"
	data := domain.NewClientData("conv-1")
	data.Company = &company
	data.Append(domain.RoleUser, "Acme Corp")

	if err := store.Save(ctx, data); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if data.Version != 1 {
		t.Errorf("Version = %d, want 1", data.Version)
	}

	got, err := store.Get(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if got.Company == nil || *got.Company != "Acme Corp" {
		t.Errorf("Company = %v, want Acme Corp", got.Company)
	}
	if got.Role != nil {
		t.Errorf("Role = %v, want nil", *got.Role)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != domain.RoleUser {
		t.Errorf("Messages = %#v", got.Messages)
	}

	got.Append(domain.RoleAssistant, "Thanks")
	if err := store.Save(ctx, got); err != nil {
		t.Fatalf("Save() update error = %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Version after update = %d, want 2", got.Version)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.Before(got.CreatedAt) {
		t.Errorf("timestamps created=%v updated=%v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestSQLDBStore_VersionConflict(t *testing.T) {
	store, err := NewSQLite("file:memdb3?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.Save(ctx, domain.NewClientData("conv-2")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Save(ctx, domain.NewClientData("conv-2")); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("duplicate create error = %v, want ErrVersionConflict", err)
	}

	a, _ := store.Get(ctx, "conv-2")
	b, _ := store.Get(ctx, "conv-2")

	a.Append(domain.RoleUser, "first")
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("Save(a) error = %v", err)
	}

	b.Append(domain.RoleUser, "second")
	if err := store.Save(ctx, b); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("Save(b) error = %v, want ErrVersionConflict", err)
	}
	if b.Version != 1 {
		t.Errorf("failed save changed Version to %d", b.Version)
	}

	final, _ := store.Get(ctx, "conv-2")
	if len(final.Messages) != 1 || final.Messages[0].Content != "first" {
		t.Errorf("Messages = %#v, want only the winning write", final.Messages)
	}
}

func TestSQLDBStore_EventLog(t *testing.T) {
	store, err := NewSQLite("file:memdb4?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	brief, err := domain.NewEvent("conv-3", &domain.BriefGenerated{ConversationID: "conv-3", Brief: "Client Brief:"}, base)
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	canvass, err := domain.NewEvent("conv-3", &domain.CanvassGenerated{ConversationID: "conv-3", Canvass: "Canvass Report"}, base.Add(time.Second))
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}

	for _, ev := range []domain.Event{brief, canvass, brief} {
		if err := store.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
	}

	events, err := store.ListEvents(ctx, "conv-3", 10)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ListEvents() = %d events, want 2", len(events))
	}
	if events[0].ID != brief.ID || events[1].Type != domain.EventCanvassGenerated {
		t.Errorf("events = %+v", events)
	}
	if events[0].DataVersion != domain.DataVersion {
		t.Errorf("DataVersion = %q", events[0].DataVersion)
	}

	p, err := events[1].Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	if c, ok := p.(*domain.CanvassGenerated); !ok || c.Canvass != "Canvass Report" {
		t.Errorf("Payload() = %#v", p)
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New(Config{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatal("New() expected error for unsupported driver")
	}
}
