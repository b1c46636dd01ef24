package api

import (
    "errors"
    "net/http"
    "strings"

    "darpm/internal/auth"
)

var errUnauthenticated = errors.New("bearer token required")

// getPrincipal extracts subject and role from the bearer token.
// In dev mode a request without a token falls back to the X-Subject and
// X-Role headers, defaulting to an admin.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, error) {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
        return s.Auth.Verify(strings.TrimSpace(authz[len("Bearer "):]))
    }
    if s.Auth.Mode != "dev" {
        return auth.Principal{}, errUnauthenticated
    }
    p := auth.Principal{Subject: r.Header.Get("X-Subject"), Role: strings.ToLower(r.Header.Get("X-Role"))}
    if p.Subject == "" {
        p.Subject = "dev"
    }
    if p.Role == "" {
        p.Role = auth.RoleAdmin
    }
    return p, nil
}

// authorize writes a 401 or 403 problem and returns false when the caller
// may not proceed. adminOnly restricts the endpoint to the admin role.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, adminOnly bool) (auth.Principal, bool) {
    p, err := s.getPrincipal(r)
    if err != nil {
        writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
        return p, false
    }
    if adminOnly && !p.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
        return p, false
    }
    return p, true
}
