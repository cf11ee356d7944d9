package csrf

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
)

const maxJSONBody = 1 << 20

// Extractor pulls a candidate token out of a request. Carriers are tried in
// order: form body field, header, query string, JSON body field.
type Extractor struct {
	HeaderName string
	FieldName  string
}

func (e Extractor) Extract(r *http.Request) string {
	if r == nil {
		return ""
	}

	mediaType := contentType(r)

	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if v := r.PostFormValue(e.FieldName); v != "" {
			return v
		}
	}

	if v := strings.TrimSpace(r.Header.Get(e.HeaderName)); v != "" {
		return v
	}

	if v := r.URL.Query().Get(e.FieldName); v != "" {
		return v
	}

	if mediaType == "application/json" {
		return e.fromJSON(r)
	}
	return ""
}

// fromJSON reads the body and puts it back so later handlers can bind it.
func (e Extractor) fromJSON(r *http.Request) string {
	if r.Body == nil {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return ""
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if v, ok := payload[e.FieldName].(string); ok {
		return v
	}
	return ""
}

func contentType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mediaType
}
