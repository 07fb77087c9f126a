package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fieldroute/internal/model"
)

func TestMemoryCustomersPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	in := make([]model.CustomerIn, 5)
	for i := range in {
		in[i] = model.CustomerIn{
			Name:        fmt.Sprintf("c%d", i),
			Location:    &model.GeoPoint{Lat: 33, Lng: -112},
			ServiceDays: []string{"2026-09-07"},
		}
	}
	n, err := m.CreateCustomers(ctx, "t1", in)
	if err != nil || n != 5 {
		t.Fatalf("create: %d %v", n, err)
	}

	total := 0
	cursor := ""
	pages := 0
	for {
		items, next, err := m.ListCustomers(ctx, "t1", "", cursor, 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		total += len(items)
		pages++
		if next == "" {
			break
		}
		cursor = next
		if pages > 5 {
			t.Fatal("pagination did not terminate")
		}
	}
	if total != 5 || pages != 3 {
		t.Fatalf("paginated %d items in %d pages", total, pages)
	}

	// empty status defaults to active
	items, _, _ := m.ListCustomers(ctx, "t1", "active", "", 100)
	if len(items) != 5 {
		t.Fatalf("active filter: %d", len(items))
	}

	// tenants are isolated
	items, _, _ = m.ListCustomers(ctx, "t2", "", "", 100)
	if len(items) != 0 {
		t.Fatalf("cross-tenant leak: %d", len(items))
	}
}

func TestMemoryUpdateAssignments(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.CreateCustomers(ctx, "t1", []model.CustomerIn{
		{Name: "a", Location: &model.GeoPoint{}, ServiceDays: []string{"2026-09-07"}},
	})
	items, _, _ := m.ListCustomers(ctx, "t1", "", "", 10)
	id := items[0].ID

	if err := m.UpdateAssignments(ctx, "t1", map[string]string{id: "tech9", "missing": "tech9"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	items, _, _ = m.ListCustomers(ctx, "t1", "", "", 10)
	if items[0].AssignedTechID != "tech9" {
		t.Fatalf("assignment not applied: %+v", items[0])
	}

	// wrong tenant must not mutate
	_ = m.UpdateAssignments(ctx, "t2", map[string]string{id: "intruder"})
	items, _, _ = m.ListCustomers(ctx, "t1", "", "", 10)
	if items[0].AssignedTechID != "tech9" {
		t.Fatalf("cross-tenant write: %+v", items[0])
	}
}

func TestMemoryRoutes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	routes := []model.Route{
		{ID: "r1", Day: "2026-09-07", TechnicianID: "t1", Status: "planned"},
		{ID: "r2", Day: "2026-09-08", TechnicianID: "t1", Status: "planned"},
	}
	if err := m.SaveAcceptedRoutes(ctx, "t1", routes); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := m.GetRoute(ctx, "t1", "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "accepted" {
		t.Fatalf("status %s, want accepted", got.Status)
	}

	items, _, err := m.ListRoutes(ctx, "t1", "2026-09-07", "", 10)
	if err != nil || len(items) != 1 || items[0].ID != "r1" {
		t.Fatalf("day filter: %+v %v", items, err)
	}

	if _, err := m.GetRoute(ctx, "t1", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing route: %v", err)
	}

	if _, err := m.GetRoute(ctx, "t2", "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("route visible across tenants: %v", err)
	}
}

func TestMemorySubscriptionEventMatching(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://a", Events: []string{"plan.ready"}})
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://b", Events: []string{"*"}})
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://c", Events: []string{"routes.accepted"}})

	subs, err := m.GetSubscriptionsForEvent(ctx, "t1", "plan.ready")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("matched %d subscriptions, want 2 (exact + wildcard)", len(subs))
	}
}

func TestMemoryWebhookDeliveryLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, err := m.EnqueueWebhook(ctx, "t1", "sub1", "plan.ready", "http://hook", "", []byte(`{}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].ID != id {
		t.Fatalf("due: %+v %v", due, err)
	}

	// failed attempt reschedules into the future
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &next, "connection refused", 0, 12); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("rescheduled delivery still due: %+v", due)
	}

	if err := m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 30); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("delivered delivery still due: %+v", due)
	}
}
