package httpx

import (
	"net/http"
	"strconv"
)

// parseIntQuery reads an integer query parameter. Missing or unparseable
// values fall back to def; range clamping is the service layer's job.
func parseIntQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
