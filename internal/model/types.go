package model

// Core domain types shared by the API, store, and optimization engine.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindow bounds arrival at a stop, minutes-of-day, half-open [start,end).
type TimeWindow struct {
	Start string `json:"start"` // "15:04"
	End   string `json:"end"`
}

// CustomerIn is one serviceable customer record as supplied by the caller.
// Coordinates are expected to be pre-resolved by the geocoding collaborator.
type CustomerIn struct {
	ExternalRef    string      `json:"externalRef,omitempty"`
	Name           string      `json:"name,omitempty"`
	Location       *GeoPoint   `json:"location"`
	ServiceType    string      `json:"serviceType,omitempty"` // basic, full, chemical, repair
	Difficulty     int         `json:"difficulty,omitempty"`  // 1..5
	ServiceDays    []string    `json:"serviceDays"`           // ISO dates
	Status         string      `json:"status,omitempty"`      // active, pending, inactive
	TimeWindow     *TimeWindow `json:"timeWindow,omitempty"`
	Locked         bool        `json:"locked,omitempty"`
	AssignedTechID string      `json:"assignedTechId,omitempty"`
}

type CustomerOut struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenantId"`
	ExternalRef    string      `json:"externalRef,omitempty"`
	Name           string      `json:"name,omitempty"`
	Location       *GeoPoint   `json:"location,omitempty"`
	ServiceType    string      `json:"serviceType,omitempty"`
	Difficulty     int         `json:"difficulty,omitempty"`
	ServiceDays    []string    `json:"serviceDays,omitempty"`
	Status         string      `json:"status"`
	TimeWindow     *TimeWindow `json:"timeWindow,omitempty"`
	Locked         bool        `json:"locked,omitempty"`
	AssignedTechID string      `json:"assignedTechId,omitempty"`
}

// TechnicianIn defines a mobile worker and their daily shift.
type TechnicianIn struct {
	ExternalRef   string    `json:"externalRef,omitempty"`
	Name          string    `json:"name,omitempty"`
	StartLocation *GeoPoint `json:"startLocation"`
	EndLocation   *GeoPoint `json:"endLocation,omitempty"` // defaults to start
	WorkStart     string    `json:"workStart"`             // "15:04"
	WorkEnd       string    `json:"workEnd"`
	MaxStops      int       `json:"maxStopsPerDay,omitempty"`
	DaysOff       []string  `json:"daysOff,omitempty"` // ISO dates
}

type TechnicianOut struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	ExternalRef   string    `json:"externalRef,omitempty"`
	Name          string    `json:"name,omitempty"`
	StartLocation *GeoPoint `json:"startLocation,omitempty"`
	EndLocation   *GeoPoint `json:"endLocation,omitempty"`
	WorkStart     string    `json:"workStart,omitempty"`
	WorkEnd       string    `json:"workEnd,omitempty"`
	MaxStops      int       `json:"maxStopsPerDay,omitempty"`
	DaysOff       []string  `json:"daysOff,omitempty"`
}

// Optimization scopes.
const (
	ScopeFull            = "full"
	ScopeRefine          = "refine"
	ScopeCompleteReroute = "complete_rerouting"
)

// OptimizeRequest is the unit of work for the engine. Pure input; not persisted.
type OptimizeRequest struct {
	TenantID          string   `json:"tenantId"`
	Scope             string   `json:"scope"`
	Days              []string `json:"includedDays"` // ISO dates
	TechnicianIDs     []string `json:"selectedTechnicianIds,omitempty"`
	IncludeWeekends   bool     `json:"includeWeekends,omitempty"`
	IncludePending    bool     `json:"includePending,omitempty"`
	RequireAssignment bool     `json:"requireFullAssignment,omitempty"`
	TimeBudgetSec     int      `json:"timeBudgetSec,omitempty"`
	SpeedTier         string   `json:"speedTier,omitempty"` // fast, balanced, thorough
	Seed              int64    `json:"seed,omitempty"`
}

// RouteStop is one visit on an assembled route. Times are minutes of day.
type RouteStop struct {
	Seq        int      `json:"seq"`
	StopID     string   `json:"stopId"`
	CustomerID string   `json:"customerId,omitempty"`
	Location   GeoPoint `json:"location"`
	ArriveMin  float64  `json:"arriveMin"`
	DepartMin  float64  `json:"departMin"`
	WaitMin    float64  `json:"waitMin,omitempty"`
	ServiceMin float64  `json:"serviceMin"`
	DriveMin   float64  `json:"driveMin"` // from previous stop (or shift start)
	DriveMi    float64  `json:"driveMi"`
}

// Route is the plan for one technician on one service day.
type Route struct {
	ID            string      `json:"id"`
	BatchID       string      `json:"batchId,omitempty"`
	Version       int         `json:"version"`
	Day           string      `json:"day"`
	TechnicianID  string      `json:"technicianId"`
	Status        string      `json:"status"` // planned, accepted
	Stops         []RouteStop `json:"stops"`
	TotalDistMi   float64     `json:"totalDistanceMi"`
	TotalDurMin   float64     `json:"totalDurationMin"`
	TotalStops    int         `json:"totalStops"`
	ShiftStartMin float64     `json:"shiftStartMin,omitempty"`
}

// UnassignedStop names a stop the solver could not place, with the reason.
type UnassignedStop struct {
	StopID     string `json:"stopId"`
	CustomerID string `json:"customerId,omitempty"`
	Day        string `json:"day,omitempty"`
	Reason     string `json:"reason"`
}

type Summary struct {
	TotalDistanceMi  float64 `json:"totalDistanceMi"`
	TotalDurationMin float64 `json:"totalDurationMin"`
	TotalCustomers   int     `json:"totalCustomers"`
	TotalUnassigned  int     `json:"totalUnassigned"`
	Days             int     `json:"days"`
}

// Result statuses distinguish "nothing to do" from "could not do it".
const (
	ResultOK      = "ok"
	ResultPartial = "partial"
	ResultEmpty   = "empty"
	ResultFailed  = "failed"
)

// DayStatus reports the outcome of one day inside a multi-day run.
type DayStatus struct {
	Day     string `json:"day"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Result is the tagged output of one optimization run. Callers must inspect
// Status; an empty Routes slice alone does not mean failure.
type Result struct {
	BatchID     string           `json:"batchId"`
	Status      string           `json:"status"`
	Message     string           `json:"message,omitempty"`
	Routes      []Route          `json:"routes"`
	Unassigned  []UnassignedStop `json:"unassigned,omitempty"`
	Summary     Summary          `json:"summary"`
	TimeLimited bool             `json:"timeLimited,omitempty"`
	PerDay      []DayStatus      `json:"perDay,omitempty"`
}

// ResequenceRequest reorders the stops of a single pending route.
type ResequenceRequest struct {
	StopIDs []string `json:"stopIds"`
}

// MoveStopRequest relocates one stop between two pending routes.
type MoveStopRequest struct {
	StopID      string `json:"stopId"`
	FromRouteID string `json:"fromRouteId"`
	ToRouteID   string `json:"toRouteId"`
	Position    int    `json:"position"` // 0-based insert index
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
