package httpx

import (
	"net/http"
	"strconv"
)

// ParsePage extracts the page and per_page query parameters, falling back
// to the first page of twenty items.
func ParsePage(r *http.Request) (page, perPage int) {
	page = 1
	perPage = 20
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && v > 0 && v <= 100 {
		perPage = v
	}
	return page, perPage
}
