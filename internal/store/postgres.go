package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fieldroute/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the schema if it does not exist. Customers, technicians,
// and routes keep their document shape as jsonb; only the columns we filter
// or join on are lifted out.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id uuid PRIMARY KEY,
			tenant_id text NOT NULL,
			status text NOT NULL DEFAULT 'active',
			doc jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS customers_tenant_idx ON customers (tenant_id, id)`,
		`CREATE TABLE IF NOT EXISTS technicians (
			id uuid PRIMARY KEY,
			tenant_id text NOT NULL,
			doc jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS technicians_tenant_idx ON technicians (tenant_id, id)`,
		`CREATE TABLE IF NOT EXISTS routes (
			id uuid PRIMARY KEY,
			tenant_id text NOT NULL,
			batch_id text,
			day date NOT NULL,
			technician_id text NOT NULL,
			version int NOT NULL DEFAULT 1,
			status text NOT NULL,
			doc jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS routes_tenant_day_idx ON routes (tenant_id, day, id)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id uuid PRIMARY KEY,
			tenant_id text NOT NULL,
			url text NOT NULL,
			events jsonb NOT NULL,
			secret text,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id uuid PRIMARY KEY,
			tenant_id text NOT NULL,
			subscription_id text,
			event_type text NOT NULL,
			url text NOT NULL,
			secret text,
			payload jsonb NOT NULL,
			status text NOT NULL DEFAULT 'pending',
			attempts int NOT NULL DEFAULT 0,
			next_attempt_at timestamptz NOT NULL DEFAULT now(),
			last_error text,
			response_code int,
			latency_ms int,
			delivered_at timestamptz,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS webhook_due_idx ON webhook_deliveries (status, next_attempt_at)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateCustomers(ctx context.Context, tenantID string, in []model.CustomerIn) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	created := 0
	for _, c := range in {
		id := uuid.New().String()
		status := c.Status
		if status == "" {
			status = "active"
		}
		out := model.CustomerOut{
			ID: id, TenantID: tenantID, ExternalRef: c.ExternalRef, Name: c.Name,
			Location: c.Location, ServiceType: c.ServiceType, Difficulty: c.Difficulty,
			ServiceDays: c.ServiceDays, Status: status, TimeWindow: c.TimeWindow,
			Locked: c.Locked, AssignedTechID: c.AssignedTechID,
		}
		doc, err := json.Marshal(out)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO customers (id, tenant_id, status, doc) VALUES ($1,$2,$3,$4)`,
			id, tenantID, status, doc); err != nil {
			return 0, err
		}
		created++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

func (p *Postgres) ListCustomers(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.CustomerOut, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	switch {
	case status != "" && cursor != "":
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, doc FROM customers WHERE tenant_id=$1 AND status=$2 AND id::text > $3 ORDER BY id LIMIT $4`, tenantID, status, cursor, limit)
	case status != "":
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, doc FROM customers WHERE tenant_id=$1 AND status=$2 ORDER BY id LIMIT $3`, tenantID, status, limit)
	case cursor != "":
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, doc FROM customers WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	default:
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, doc FROM customers WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.CustomerOut{}
	var last string
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, "", err
		}
		var c model.CustomerOut
		if err := json.Unmarshal(doc, &c); err != nil {
			return nil, "", err
		}
		out = append(out, c)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) UpdateAssignments(ctx context.Context, tenantID string, assignments map[string]string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for custID, techID := range assignments {
		if _, err := tx.ExecContext(ctx,
			`UPDATE customers SET doc = jsonb_set(doc, '{assignedTechId}', to_jsonb($1::text)) WHERE tenant_id=$2 AND id=$3`,
			techID, tenantID, custID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) CreateTechnicians(ctx context.Context, tenantID string, in []model.TechnicianIn) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	created := 0
	for _, t := range in {
		id := uuid.New().String()
		out := model.TechnicianOut{
			ID: id, TenantID: tenantID, ExternalRef: t.ExternalRef, Name: t.Name,
			StartLocation: t.StartLocation, EndLocation: t.EndLocation,
			WorkStart: t.WorkStart, WorkEnd: t.WorkEnd, MaxStops: t.MaxStops, DaysOff: t.DaysOff,
		}
		doc, err := json.Marshal(out)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO technicians (id, tenant_id, doc) VALUES ($1,$2,$3)`,
			id, tenantID, doc); err != nil {
			return 0, err
		}
		created++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

func (p *Postgres) ListTechnicians(ctx context.Context, tenantID, cursor string, limit int) ([]model.TechnicianOut, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, doc FROM technicians WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, doc FROM technicians WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.TechnicianOut{}
	var last string
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, "", err
		}
		var t model.TechnicianOut
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, "", err
		}
		out = append(out, t)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) SaveAcceptedRoutes(ctx context.Context, tenantID string, routes []model.Route) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, r := range routes {
		r.Status = "accepted"
		doc, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO routes (id, tenant_id, batch_id, day, technician_id, version, status, doc)
			VALUES ($1,$2,$3,$4,$5,$6,'accepted',$7)
			ON CONFLICT (id) DO UPDATE SET version=$6, status='accepted', doc=$7`,
			r.ID, tenantID, nullIfEmpty(r.BatchID), r.Day, r.TechnicianID, r.Version, doc); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListRoutes(ctx context.Context, tenantID, day, cursor string, limit int) ([]model.Route, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	switch {
	case day != "" && cursor != "":
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, doc FROM routes WHERE tenant_id=$1 AND day=$2 AND id::text > $3 ORDER BY id LIMIT $4`, tenantID, day, cursor, limit)
	case day != "":
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, doc FROM routes WHERE tenant_id=$1 AND day=$2 ORDER BY id LIMIT $3`, tenantID, day, limit)
	case cursor != "":
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, doc FROM routes WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	default:
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, doc FROM routes WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Route{}
	var last string
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, "", err
		}
		var r model.Route
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, "", err
		}
		out = append(out, r)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) GetRoute(ctx context.Context, tenantID, routeID string) (model.Route, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM routes WHERE tenant_id=$1 AND id=$2`, tenantID, routeID).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Route{}, ErrNotFound
		}
		return model.Route{}, err
	}
	var r model.Route
	if err := json.Unmarshal(doc, &r); err != nil {
		return model.Route{}, err
	}
	return r, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		id, req.TenantID, req.URL, ev, nullIfEmpty(req.Secret))
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions
		WHERE tenant_id=$1 AND (events @> to_jsonb(ARRAY[$2::text]) OR events @> '["*"]'::jsonb)`, tenantID, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, "", err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(subscription_id,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
			id, responseCode, latencyMs)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(time.Minute)
		nextAttemptAt = &t
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
