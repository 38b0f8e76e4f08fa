package publisher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedRequest struct {
	method string
	path   string
	query  string
	header http.Header
	body   string
}

func newHubServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			header: r.Header.Clone(),
			body:   string(body),
		})
		mu.Unlock()
		if status >= 400 {
			w.WriteHeader(status)
			w.Write([]byte(`{"Message":"Unauthorized"}`))
			return
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), reqs...)
	}
}

func newHTTPPublisher(t *testing.T, baseURL string) *IoTHubHTTP {
	t.Helper()
	cfg := testConfig()
	cfg.HTTP.BaseURL = baseURL
	dev := config.DeviceConfig{DeviceID: "nac-sensor", Location: "NAC", Credential: testConnStr}

	p := NewIoTHubHTTP(cfg, dev, zap.NewNop())
	p.now = func() time.Time { return time.Unix(1735689600, 0).Add(-time.Hour) }
	return p
}

func TestIoTHubHTTP_Send(t *testing.T) {
	srv, requests := newHubServer(t, http.StatusNoContent)
	p := newHTTPPublisher(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, p.Connect(ctx))
	require.NoError(t, p.Send(ctx, Message{
		Payload:         []byte(`{"deviceId":"nac-sensor"}`),
		ContentType:     ContentTypeJSON,
		ContentEncoding: EncodingUTF8,
		MessageID:       "mid-1",
		DeviceID:        "nac-sensor",
	}))
	require.NoError(t, p.Disconnect(ctx))

	reqs := requests()
	require.Len(t, reqs, 1)
	r := reqs[0]
	assert.Equal(t, http.MethodPost, r.method)
	assert.Equal(t, "/devices/nac-sensor/messages/events", r.path)
	assert.Equal(t, "api-version="+HTTPAPIVersion, r.query)
	assert.Equal(t, `{"deviceId":"nac-sensor"}`, r.body)
	assert.Equal(t, "application/json", r.header.Get("iothub-contenttype"))
	assert.Equal(t, "utf-8", r.header.Get("iothub-contentencoding"))
	assert.Equal(t, "mid-1", r.header.Get("iothub-messageid"))

	// token expires one TTL after the injected clock
	auth := r.header.Get("Authorization")
	assert.True(t, strings.HasPrefix(auth, "SharedAccessSignature sr=myhub.azure-devices.net%2Fdevices%2Fnac-sensor&sig="), auth)
	assert.True(t, strings.HasSuffix(auth, "&se=1735689600"), auth)
}

func TestIoTHubHTTP_RejectedStatusIsAnError(t *testing.T) {
	srv, requests := newHubServer(t, http.StatusUnauthorized)
	p := newHTTPPublisher(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, p.Connect(ctx))
	err := p.Send(ctx, Message{Payload: []byte(`{}`), ContentType: ContentTypeJSON})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Len(t, requests(), 1, "no retries")
}

func TestIoTHubHTTP_ConnectNeedsValidCredential(t *testing.T) {
	cfg := testConfig()
	p := NewIoTHubHTTP(cfg, config.DeviceConfig{DeviceID: "nac-sensor", Credential: "nope"}, zap.NewNop())

	err := p.Connect(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, p.Send(context.Background(), Message{}), ErrNotConnected)
}
