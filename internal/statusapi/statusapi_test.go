package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcpkit/xcp/internal/model"
	"github.com/xcpkit/xcp/internal/progresssink"
	"github.com/xcpkit/xcp/internal/status"
)

func TestHandleStatusReportsPublishedSnapshot(t *testing.T) {
	agg := status.New(progresssink.Silent{})
	ch := make(chan model.StatusUpdate, 4)
	ch <- model.Size(200)
	ch <- model.Copied(50)
	close(ch)
	require.NoError(t, agg.Drain(ch))

	srv := New("127.0.0.1:0", agg)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got StatusSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(50), got.BytesCopied)
	assert.Equal(t, int64(200), got.TotalBytes)
	assert.Equal(t, 25.0, got.Percent)
	assert.Empty(t, got.Error)
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	agg := status.New(progresssink.Silent{})
	srv := New("127.0.0.1:0", agg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "xcp_bytes_copied_total")
}
