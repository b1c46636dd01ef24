package api

import (
    _ "embed"
    "encoding/json"
    "net/http"

    yaml "gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPISpec []byte

// OpenAPIHandler serves the OpenAPI spec
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "application/yaml")
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write(openAPISpec)
}

// OpenAPIJSONHandler serves the same document converted to JSON.
func (s *Server) OpenAPIJSONHandler(w http.ResponseWriter, r *http.Request) {
    var obj map[string]any
    if err := yaml.Unmarshal(openAPISpec, &obj); err != nil {
        writeProblem(w, http.StatusInternalServerError, "OpenAPI parse failed", err.Error(), r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(obj)
}

// DocsHandler serves a minimal ReDoc page referencing /openapi.yaml
func (s *Server) DocsHandler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title>DARP-M API</title>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <script src="https://cdn.jsdelivr.net/npm/redoc@next/bundles/redoc.standalone.js"></script>
    </head><body>
    <redoc spec-url="/openapi.yaml"></redoc>
    </body></html>`))
}
