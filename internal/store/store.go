// Package store provides persistence for customers, technicians, accepted
// routes, webhook subscriptions, and the delivery queue.
package store

import (
	"context"
	"errors"
	"time"

	"fieldroute/internal/model"
)

// Store is the persistence interface used by the API server. Planned routes
// stay in memory until the caller accepts them; only accepted routes reach
// the store.
type Store interface {
	// Customers
	CreateCustomers(ctx context.Context, tenantID string, in []model.CustomerIn) (created int, err error)
	ListCustomers(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.CustomerOut, string, error)
	UpdateAssignments(ctx context.Context, tenantID string, assignments map[string]string) error

	// Technicians
	CreateTechnicians(ctx context.Context, tenantID string, in []model.TechnicianIn) (int, error)
	ListTechnicians(ctx context.Context, tenantID, cursor string, limit int) ([]model.TechnicianOut, string, error)

	// Accepted routes
	SaveAcceptedRoutes(ctx context.Context, tenantID string, routes []model.Route) error
	ListRoutes(ctx context.Context, tenantID, day, cursor string, limit int) ([]model.Route, string, error)
	GetRoute(ctx context.Context, tenantID, routeID string) (model.Route, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

var ErrNotFound = errors.New("not found")
