//go:build integration

package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_Liveness(t *testing.T) {
	env := SetupTestEnv(t, false)

	code, body := env.Get(t, "/health/live")
	assert.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "alive", data["status"])
}

func TestHealth_ReadinessTracksIndexState(t *testing.T) {
	env := SetupTestEnv(t, false)

	// Not ready: the index has not loaded yet.
	code, body := env.Get(t, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "not_ready", data["index"])

	ready := SetupTestEnv(t, true)
	code, body = ready.Get(t, "/health/ready")
	assert.Equal(t, http.StatusOK, code)
	data = body["data"].(map[string]any)
	assert.Equal(t, "ready", data["index"])
	assert.Equal(t, "healthy", data["redis"])
}

func TestHealth_MetricsExposed(t *testing.T) {
	env := SetupTestEnv(t, true)

	resp, err := http.Get(env.Server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "souschef_"))
}
