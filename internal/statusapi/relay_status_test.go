package statusapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arung-agamani/wavecast/internal/relay"
)

type fakeRelayProvider struct {
	status relay.Status
}

func (f *fakeRelayProvider) Status() relay.Status { return f.status }

func TestRelayStatusEndpointReportsProviderSnapshot(t *testing.T) {
	provider := &fakeRelayProvider{status: relay.Status{
		State:             "active",
		StreamerConnected: true,
		ListenerCount:     3,
		Bottleneck:        true,
	}}
	router := NewRelayRouter(provider)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"active","streamer_connected":true,"listener_count":3,"bottleneck":true}`, rec.Body.String())
}
