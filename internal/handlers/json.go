package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const defaultMaxBodySize = 64 * 1024

var (
	errBodyTooLarge     = errors.New("request body too large")
	errEmptyBody        = errors.New("request body is required")
	errUnsupportedMedia = errors.New("request body must be application/json")
)

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSONBody decodes exactly one JSON value of at most limit bytes into target.
// Unknown fields are rejected; a missing Content-Type is treated as JSON.
func decodeJSONBody(r *http.Request, limit int64, target any) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}
	if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "" {
		if media, _, err := mime.ParseMediaType(ct); err != nil || media != "application/json" {
			return errUnsupportedMedia
		}
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	switch {
	case err != nil:
		return fmt.Errorf("read body: %w", err)
	case int64(len(data)) > limit:
		return errBodyTooLarge
	case len(bytes.TrimSpace(data)) == 0:
		return errEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
