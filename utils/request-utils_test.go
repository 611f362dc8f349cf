package utils

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDetectRequest_JSON(t *testing.T) {
	r := httptest.NewRequest("POST", "/detect-overlaps", strings.NewReader(`{"overlap_threshold":0.7,"skip_self":true}`))
	r.Header.Set("Content-Type", "application/json")

	req, err := ReadDetectRequest(r)
	require.NoError(t, err)
	require.NotNil(t, req.OverlapThreshold)
	assert.Equal(t, 0.7, *req.OverlapThreshold)
	require.NotNil(t, req.SkipSelf)
	assert.True(t, *req.SkipSelf)
	assert.Nil(t, req.Concurrency)
}

func TestReadDetectRequest_EmptyJSON(t *testing.T) {
	r := httptest.NewRequest("POST", "/detect-overlaps", strings.NewReader(""))
	r.Header.Set("Content-Type", "application/json")

	req, err := ReadDetectRequest(r)
	require.NoError(t, err)
	assert.Equal(t, DetectRequest{}, req)
}

func TestReadDetectRequest_Form(t *testing.T) {
	form := url.Values{"concurrency": {"4"}, "use_index": {"true"}}
	r := httptest.NewRequest("POST", "/detect-overlaps", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req, err := ReadDetectRequest(r)
	require.NoError(t, err)
	require.NotNil(t, req.Concurrency)
	assert.Equal(t, 4, *req.Concurrency)
	require.NotNil(t, req.UseIndex)
	assert.True(t, *req.UseIndex)
}

func TestReadDetectRequest_BadValue(t *testing.T) {
	r := httptest.NewRequest("POST", "/detect-overlaps?overlap_threshold=high", nil)
	_, err := ReadDetectRequest(r)
	assert.Error(t, err)
}
