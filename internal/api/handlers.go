package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fieldroute/internal/buildinfo"
	"fieldroute/internal/geo"
	"fieldroute/internal/metrics"
	"fieldroute/internal/model"
	"fieldroute/internal/opt"
	"fieldroute/internal/store"
	"fieldroute/internal/webhooks"
)

// writeOptError maps engine errors onto problem responses: invalid input is
// the caller's fault, provable infeasibility and unreachable geography are
// unprocessable, anything else is a server fault.
func writeOptError(w http.ResponseWriter, r *http.Request, err error) {
	var inv *opt.InvalidInputError
	var nf *opt.NoFeasibleSolutionError
	var unr *geo.UnreachableError
	switch {
	case errors.As(err, &inv):
		writeProblem(w, http.StatusBadRequest, "Invalid input", err.Error(), r.URL.Path)
	case errors.As(err, &nf):
		writeProblem(w, http.StatusUnprocessableEntity, "No feasible solution", err.Error(), r.URL.Path)
	case errors.As(err, &unr):
		writeProblem(w, http.StatusUnprocessableEntity, "Unreachable location", err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, "Optimization failed", err.Error(), r.URL.Path)
	}
}

func (s *Server) allCustomers(ctx context.Context, tenant string) ([]model.CustomerOut, error) {
	var out []model.CustomerOut
	cursor := ""
	for {
		items, next, err := s.Store.ListCustomers(ctx, tenant, "", cursor, 500)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if next == "" || len(items) == 0 {
			break
		}
		cursor = next
	}
	return out, nil
}

func (s *Server) allTechnicians(ctx context.Context, tenant string) ([]model.TechnicianOut, error) {
	var out []model.TechnicianOut
	cursor := ""
	for {
		items, next, err := s.Store.ListTechnicians(ctx, tenant, cursor, 500)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if next == "" || len(items) == 0 {
			break
		}
		cursor = next
	}
	return out, nil
}

// CustomersHandler handles POST/GET /v1/customers
func (s *Server) CustomersHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		if !p.CanPlan() {
			writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		var req struct {
			Customers []model.CustomerIn `json:"customers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		for i, c := range req.Customers {
			if c.Location == nil {
				writeProblem(w, http.StatusBadRequest, "Invalid customer", fmt.Sprintf("customers[%d] missing location", i), r.URL.Path)
				return
			}
			if len(c.ServiceDays) == 0 {
				writeProblem(w, http.StatusBadRequest, "Invalid customer", fmt.Sprintf("customers[%d] missing serviceDays", i), r.URL.Path)
				return
			}
		}
		created, err := s.Store.CreateCustomers(r.Context(), p.Tenant, req.Customers)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create customers failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"created": created})
	case http.MethodGet:
		status := r.URL.Query().Get("status")
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListCustomers(r.Context(), p.Tenant, status, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List customers failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// TechniciansHandler handles POST/GET /v1/technicians
func (s *Server) TechniciansHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		if !p.CanPlan() {
			writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		var req struct {
			Technicians []model.TechnicianIn `json:"technicians"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		for i, t := range req.Technicians {
			if t.StartLocation == nil {
				writeProblem(w, http.StatusBadRequest, "Invalid technician", fmt.Sprintf("technicians[%d] missing startLocation", i), r.URL.Path)
				return
			}
			if t.WorkStart == "" || t.WorkEnd == "" {
				writeProblem(w, http.StatusBadRequest, "Invalid technician", fmt.Sprintf("technicians[%d] missing work window", i), r.URL.Path)
				return
			}
		}
		created, err := s.Store.CreateTechnicians(r.Context(), p.Tenant, req.Technicians)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create technicians failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"created": created})
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListTechnicians(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List technicians failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateOptimizeRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	req.TenantID = p.Tenant

	customers, err := s.allCustomers(r.Context(), p.Tenant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load customers failed", err.Error(), r.URL.Path)
		return
	}
	technicians, err := s.allTechnicians(r.Context(), p.Tenant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load technicians failed", err.Error(), r.URL.Path)
		return
	}

	scope := req.Scope
	if scope == "" {
		scope = model.ScopeFull
	}
	start := time.Now()
	result, err := s.Engine.Optimize(r.Context(), req, customers, technicians)
	if err != nil {
		metrics.OptimizeRuns.WithLabelValues(scope, "error").Inc()
		writeOptError(w, r, err)
		return
	}
	metrics.OptimizeRuns.WithLabelValues(scope, result.Status).Inc()
	metrics.OptimizeDuration.WithLabelValues(scope).Observe(time.Since(start).Seconds())
	for _, u := range result.Unassigned {
		metrics.UnassignedStops.WithLabelValues(u.Reason).Inc()
	}
	for _, d := range result.PerDay {
		if m, ok := opt.GetMetrics(p.Tenant, d.Day)[scope]; ok {
			metrics.SolverIterations.Observe(float64(m.Iterations))
		}
	}

	if len(result.Routes) > 0 {
		techsByID := map[string]opt.Tech{}
		for _, t := range technicians {
			if tc, err := opt.TechFromRecord(t); err == nil {
				techsByID[t.ID] = tc
			}
		}
		s.putPending(&pendingBatch{
			Tenant:  p.Tenant,
			Result:  result,
			Techs:   techsByID,
			Windows: opt.CustomerWindows(customers),
			Created: time.Now(),
		})
		s.Pub.Emit(r.Context(), p.Tenant, webhooks.EventPlanReady, map[string]any{
			"batchId": result.BatchID, "status": result.Status, "routes": len(result.Routes), "unassigned": len(result.Unassigned),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

// OptimizeEventsHandler handles GET /v1/optimize/{batchId}/events (SSE)
func (s *Server) OptimizeEventsHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/optimize/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing batch id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	batchID := parts[0]
	if len(parts) < 2 || parts[1] != "events" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(batchID)
	defer s.Broker.Unsubscribe(batchID, ch)
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"batchId\":\"%s\",\"ts\":\"%s\"}\n\n", batchID, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"batchId\":\"%s\",\"ts\":\"%s\"}\n\n", batchID, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// PlansHandler handles GET/DELETE /v1/plans/{batchId} and POST /v1/plans/{batchId}/accept
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing batch id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	batchID := parts[0]
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}

	if len(parts) > 1 && parts[1] == "accept" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b := s.dropPending(p.Tenant, batchID)
		if b == nil {
			writeProblem(w, http.StatusNotFound, "Plan not found", "no pending plan with this batch id", r.URL.Path)
			return
		}
		if err := s.Store.SaveAcceptedRoutes(r.Context(), p.Tenant, b.Result.Routes); err != nil {
			s.putPending(b) // keep the plan so the caller can retry
			writeProblem(w, http.StatusInternalServerError, "Accept failed", err.Error(), r.URL.Path)
			return
		}
		assignments := map[string]string{}
		for _, rt := range b.Result.Routes {
			for _, st := range rt.Stops {
				assignments[st.CustomerID] = rt.TechnicianID
			}
		}
		if err := s.Store.UpdateAssignments(r.Context(), p.Tenant, assignments); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Assignment update failed", err.Error(), r.URL.Path)
			return
		}
		s.Pub.Emit(r.Context(), p.Tenant, webhooks.EventRoutesAccepted, map[string]any{
			"batchId": batchID, "routes": len(b.Result.Routes),
		})
		writeJSON(w, http.StatusOK, map[string]any{"batchId": batchID, "accepted": len(b.Result.Routes)})
		return
	}

	switch r.Method {
	case http.MethodGet:
		b := s.getPending(p.Tenant, batchID)
		if b == nil {
			writeProblem(w, http.StatusNotFound, "Plan not found", "no pending plan with this batch id", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, b.Result)
	case http.MethodDelete:
		b := s.dropPending(p.Tenant, batchID)
		if b == nil {
			writeProblem(w, http.StatusNotFound, "Plan not found", "no pending plan with this batch id", r.URL.Path)
			return
		}
		s.Pub.Emit(r.Context(), p.Tenant, webhooks.EventPlanDiscarded, map[string]any{"batchId": batchID})
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RoutesIndexHandler handles GET /v1/routes (accepted routes)
func (s *Server) RoutesIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/routes" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	day := r.URL.Query().Get("day")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListRoutes(r.Context(), p.Tenant, day, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List routes failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// RouteByIDHandler handles GET /v1/routes/{id} and the manual edit
// operations POST /v1/routes/{id}/resequence and /v1/routes/{id}/move-stop.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/routes/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	p := s.getPrincipal(r)

	if len(parts) > 1 && parts[1] == "resequence" {
		s.resequence(w, r, p, id)
		return
	}
	if len(parts) > 1 && parts[1] == "move-stop" {
		s.moveStop(w, r, p, id)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	route, err := s.Store.GetRoute(r.Context(), p.Tenant, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// not accepted yet; check pending plans
			if b, i := s.findPendingRoute(p.Tenant, id); b != nil {
				writeJSON(w, http.StatusOK, b.Result.Routes[i])
				return
			}
			writeProblem(w, http.StatusNotFound, "Route not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get route failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) engineCap() int {
	if s.Engine != nil && s.Engine.MaxStopsCap > 0 {
		return s.Engine.MaxStopsCap
	}
	return 50
}

func (s *Server) resequence(w http.ResponseWriter, r *http.Request, p Principal, routeID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.ResequenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	b, idx := s.findPendingRoute(p.Tenant, routeID)
	if b == nil {
		writeProblem(w, http.StatusConflict, "Route not editable", "only routes on a pending plan can be resequenced", r.URL.Path)
		return
	}
	route := b.Result.Routes[idx]
	tech, ok := b.Techs[route.TechnicianID]
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Technician missing", "route technician absent from plan snapshot", r.URL.Path)
		return
	}
	updated, err := opt.Resequence(r.Context(), s.Engine.Metric, tech, route, req.StopIDs, s.engineCap(), b.Windows)
	if err != nil {
		writeOptError(w, r, err)
		return
	}
	s.mu.Lock()
	b.Result.Routes[idx] = updated
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) moveStop(w http.ResponseWriter, r *http.Request, p Principal, routeID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.MoveStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.FromRouteID == "" {
		req.FromRouteID = routeID
	}
	if req.FromRouteID != routeID {
		writeProblem(w, http.StatusBadRequest, "Invalid move", "fromRouteId does not match the route in the path", r.URL.Path)
		return
	}
	b, fromIdx := s.findPendingRoute(p.Tenant, routeID)
	if b == nil {
		writeProblem(w, http.StatusConflict, "Route not editable", "only routes on a pending plan can be edited", r.URL.Path)
		return
	}
	toIdx := -1
	for i := range b.Result.Routes {
		if b.Result.Routes[i].ID == req.ToRouteID {
			toIdx = i
			break
		}
	}
	if toIdx < 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid move", "toRouteId is not on the same pending plan", r.URL.Path)
		return
	}
	from := b.Result.Routes[fromIdx]
	to := b.Result.Routes[toIdx]
	if from.Day != to.Day {
		writeProblem(w, http.StatusBadRequest, "Invalid move", "stops can only move between routes on the same day", r.URL.Path)
		return
	}
	fromTech, ok1 := b.Techs[from.TechnicianID]
	toTech, ok2 := b.Techs[to.TechnicianID]
	if !ok1 || !ok2 {
		writeProblem(w, http.StatusInternalServerError, "Technician missing", "route technician absent from plan snapshot", r.URL.Path)
		return
	}
	newFrom, newTo, err := opt.MoveStop(r.Context(), s.Engine.Metric, fromTech, toTech, from, to, req.StopID, req.Position, s.engineCap(), b.Windows)
	if err != nil {
		writeOptError(w, r, err)
		return
	}
	s.mu.Lock()
	b.Result.Routes[fromIdx] = newFrom
	b.Result.Routes[toIdx] = newTo
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"from": newFrom, "to": newTo})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		req.TenantID = p.Tenant
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Not Found", "", r.URL.Path)
			return
		}
		writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(204)
}

// PlanMetricsHandler handles GET /v1/admin/plan-metrics?day=YYYY-MM-DD
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/plan-metrics" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	day := r.URL.Query().Get("day")
	if day == "" {
		writeProblem(w, 400, "Missing day", "", r.URL.Path)
		return
	}
	includeWeights := false
	if v := r.URL.Query().Get("includeWeights"); strings.EqualFold(v, "true") || v == "1" {
		includeWeights = true
	}
	ms := opt.GetMetrics(p.Tenant, day)
	items := []map[string]any{}
	for scope, m := range ms {
		item := map[string]any{
			"scope":          scope,
			"iterations":     m.Iterations,
			"improvements":   m.Improvements,
			"acceptedWorse":  m.AcceptedWorse,
			"bestCost":       m.BestCost,
			"finalCost":      m.FinalCost,
			"removalSelects": []int{m.RemovalSelects[0], m.RemovalSelects[1]},
			"insertSelects":  []int{m.InsertSelects[0], m.InsertSelects[1]},
		}
		if includeWeights && len(m.Snapshots) > 0 {
			snaps := make([]map[string]any, 0, len(m.Snapshots))
			for _, sn := range m.Snapshots {
				snaps = append(snaps, map[string]any{"iteration": sn.Iteration, "removal": sn.Removal, "insertion": sn.Insertion})
			}
			item["weights"] = snaps
		}
		items = append(items, item)
	}
	writeJSON(w, 200, map[string]any{"items": items})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	info := buildinfo.Info()
	info["status"] = "ok"
	writeJSON(w, 200, info)
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
