package models

import (
	"fmt"
	"net/http"
)

// UpstreamHTTPError is a non-2xx answer from the target site.
type UpstreamHTTPError struct {
	URL    string
	Status int
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("upstream %s: %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// StatusOK reports whether status is a 2xx code.
func StatusOK(status int) bool {
	return status >= 200 && status < 300
}
