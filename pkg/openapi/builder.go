package openapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Operation represents a single HTTP operation to surface in OpenAPI.
type Operation struct {
	Method      string
	Path        string
	Summary     string
	Tags        []string
	Permissions []string // x-required-permissions; any one suffices
	MasterOnly  bool
	Public      bool // no bearer required
	RequestBody any
	Responses   map[string]string // status -> description
}

// Registry holds registered operations.
type Registry struct {
	mu  sync.RWMutex
	ops []Operation
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Register(ops ...Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range ops {
		op.Method = strings.ToLower(op.Method)
		r.ops = append(r.ops, op)
	}
}

// Operations returns the registered operations sorted by path then method.
func (r *Registry) Operations() []Operation {
	r.mu.RLock()
	out := append([]Operation(nil), r.ops...)
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Build produces a minimal OpenAPI 3.1 document. Error responses reference a
// shared problem+json schema.
func (r *Registry) Build(serviceName, version string) map[string]any {
	paths := map[string]any{}
	for _, op := range r.Operations() {
		if _, ok := paths[op.Path]; !ok {
			paths[op.Path] = map[string]any{}
		}
		responses := map[string]any{}
		for status, desc := range op.Responses {
			resp := map[string]any{"description": desc}
			if !strings.HasPrefix(status, "2") {
				resp["content"] = map[string]any{
					"application/problem+json": map[string]any{"schema": map[string]any{"$ref": "#/components/schemas/Problem"}},
				}
			}
			responses[status] = resp
		}
		m := map[string]any{
			"summary":   op.Summary,
			"tags":      op.Tags,
			"responses": responses,
		}
		if len(op.Permissions) > 0 {
			m["x-required-permissions"] = op.Permissions
		}
		if op.MasterOnly {
			m["x-master-only"] = true
		}
		if op.Public {
			m["security"] = []map[string]any{}
		}
		if op.RequestBody != nil {
			m["requestBody"] = map[string]any{
				"content": map[string]any{"application/json": map[string]any{"schema": op.RequestBody}},
			}
		}
		paths[op.Path].(map[string]any)[op.Method] = m
	}
	return map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"paths":   paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearer": map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
			"schemas": map[string]any{
				"Problem": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":   map[string]string{"type": "string"},
						"title":  map[string]string{"type": "string"},
						"status": map[string]string{"type": "integer"},
						"detail": map[string]string{"type": "string"},
						"tenant": map[string]string{"type": "string"},
					},
				},
			},
		},
		"security": []map[string]any{{"bearer": []string{}}},
	}
}

// ServeHandler returns an HTTP handler that serves the built OpenAPI JSON.
func (r *Registry) ServeHandler(serviceName, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Build(serviceName, version))
	}
}
