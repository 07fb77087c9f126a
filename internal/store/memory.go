package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldroute/internal/model"
)

// Memory is the in-process store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	customers map[string]model.CustomerOut // id -> customer
	custByTen map[string][]string
	techs     map[string]model.TechnicianOut
	techByTen map[string][]string
	routes    map[string]model.Route
	rtTenant  map[string]string // route id -> owning tenant
	rtByTen   map[string][]string
	subs      map[string][]model.Subscription

	deliveries map[string]*memDelivery
	deliveryID []string
}

type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
}

func NewMemory() *Memory {
	return &Memory{
		customers:  map[string]model.CustomerOut{},
		custByTen:  map[string][]string{},
		techs:      map[string]model.TechnicianOut{},
		techByTen:  map[string][]string{},
		routes:     map[string]model.Route{},
		rtTenant:   map[string]string{},
		rtByTen:    map[string][]string{},
		subs:       map[string][]model.Subscription{},
		deliveries: map[string]*memDelivery{},
	}
}

func (m *Memory) CreateCustomers(ctx context.Context, tenantID string, in []model.CustomerIn) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for _, c := range in {
		id := uuid.New().String()
		status := c.Status
		if status == "" {
			status = "active"
		}
		m.customers[id] = model.CustomerOut{
			ID: id, TenantID: tenantID, ExternalRef: c.ExternalRef, Name: c.Name,
			Location: c.Location, ServiceType: c.ServiceType, Difficulty: c.Difficulty,
			ServiceDays: c.ServiceDays, Status: status, TimeWindow: c.TimeWindow,
			Locked: c.Locked, AssignedTechID: c.AssignedTechID,
		}
		m.custByTen[tenantID] = append(m.custByTen[tenantID], id)
		created++
	}
	return created, nil
}

func (m *Memory) ListCustomers(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.CustomerOut, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.custByTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []model.CustomerOut{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		c := m.customers[ids[i]]
		if status == "" || c.Status == status {
			out = append(out, c)
		}
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) UpdateAssignments(ctx context.Context, tenantID string, assignments map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for custID, techID := range assignments {
		c, ok := m.customers[custID]
		if !ok || c.TenantID != tenantID {
			continue
		}
		c.AssignedTechID = techID
		m.customers[custID] = c
	}
	return nil
}

func (m *Memory) CreateTechnicians(ctx context.Context, tenantID string, in []model.TechnicianIn) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for _, t := range in {
		id := uuid.New().String()
		m.techs[id] = model.TechnicianOut{
			ID: id, TenantID: tenantID, ExternalRef: t.ExternalRef, Name: t.Name,
			StartLocation: t.StartLocation, EndLocation: t.EndLocation,
			WorkStart: t.WorkStart, WorkEnd: t.WorkEnd, MaxStops: t.MaxStops, DaysOff: t.DaysOff,
		}
		m.techByTen[tenantID] = append(m.techByTen[tenantID], id)
		created++
	}
	return created, nil
}

func (m *Memory) ListTechnicians(ctx context.Context, tenantID, cursor string, limit int) ([]model.TechnicianOut, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.techByTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []model.TechnicianOut{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.techs[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) SaveAcceptedRoutes(ctx context.Context, tenantID string, routes []model.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range routes {
		r.Status = "accepted"
		m.routes[r.ID] = r
		m.rtTenant[r.ID] = tenantID
		m.rtByTen[tenantID] = append(m.rtByTen[tenantID], r.ID)
	}
	return nil
}

func (m *Memory) ListRoutes(ctx context.Context, tenantID, day, cursor string, limit int) ([]model.Route, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.rtByTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []model.Route{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		r := m.routes[ids[i]]
		if day == "" || r.Day == day {
			out = append(out, r)
		}
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) GetRoute(ctx context.Context, tenantID, routeID string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok || m.rtTenant[routeID] != tenantID {
		return model.Route{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], sub)
	return sub, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	if limit <= 0 || limit > len(subs) {
		limit = len(subs)
	}
	return append([]model.Subscription{}, subs[:limit]...), "", nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	for i, s := range subs {
		if s.ID == id {
			m.subs[tenantID] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, TenantID: tenantID, SubscriptionID: subscriptionID,
			EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.deliveryID = append(m.deliveryID, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryID {
		d := m.deliveries[id]
		if d.Status != "pending" || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
	} else if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func cursorIndex(ids []string, cursor string) int {
	if cursor == "" {
		return 0
	}
	for i, id := range ids {
		if id == cursor {
			return i + 1
		}
	}
	return 0
}
