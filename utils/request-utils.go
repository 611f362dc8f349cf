package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// DetectRequest carries per-request overrides of the detect settings. Nil
// fields keep the configured value.
type DetectRequest struct {
	OverlapThreshold *float64 `json:"overlap_threshold"`
	Concurrency      *int     `json:"concurrency"`
	SkipSelf         *bool    `json:"skip_self"`
	UseIndex         *bool    `json:"use_index"`
}

const maxRequestBody = 1 << 20

// ReadDetectRequest accepts a JSON body or form values (urlencoded or
// multipart). An empty body means no overrides.
func ReadDetectRequest(r *http.Request) (DetectRequest, error) {
	var req DetectRequest

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			return req, fmt.Errorf("read body: %w", err)
		}
		defer r.Body.Close()
		if len(body) == 0 {
			return req, nil
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return req, fmt.Errorf("decode body: %w", err)
		}
		return req, nil
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxRequestBody); err != nil {
			return req, fmt.Errorf("parse multipart form: %w", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return req, fmt.Errorf("parse form: %w", err)
	}

	for key, value := range r.Form {
		if len(value) == 0 || value[0] == "" {
			continue
		}
		switch key {
		case "overlap_threshold":
			f, err := strconv.ParseFloat(value[0], 64)
			if err != nil {
				return req, fmt.Errorf("overlap_threshold: %w", err)
			}
			req.OverlapThreshold = &f
		case "concurrency":
			n, err := strconv.Atoi(value[0])
			if err != nil {
				return req, fmt.Errorf("concurrency: %w", err)
			}
			req.Concurrency = &n
		case "skip_self":
			b := value[0] == "true"
			req.SkipSelf = &b
		case "use_index":
			b := value[0] == "true"
			req.UseIndex = &b
		}
	}
	return req, nil
}
