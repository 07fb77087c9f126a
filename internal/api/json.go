package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Problem is the RFC7807 body every non-2xx response carries. Type is a
// stable URN derived from the title so clients can switch on it without
// parsing human-readable text.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     problemType(title),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

func problemType(title string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(title), "-"))
	if slug == "" {
		return "about:blank"
	}
	return "urn:fieldroute:problem:" + slug
}
