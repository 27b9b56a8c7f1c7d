package server

import (
	"crypto/subtle"
	"net/http"
)

// authUsername is the fixed basic-auth username; the secret does all
// the work.
const authUsername = "kswings"

// requireAuth gates a handler behind shared-secret basic auth with a
// constant-time compare.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="kswingsd"`)
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	})
}

func (s *Server) authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	return user == authUsername && s.secretMatches(pass)
}

func (s *Server) secretMatches(candidate string) bool {
	key := s.Config.UserConfig.Key
	return key != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1
}
