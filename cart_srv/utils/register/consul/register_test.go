package consul

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//假的consul agent，只记录注册和注销
type fakeAgent struct {
	mu           sync.Mutex
	registered   []api.AgentServiceRegistration
	deregistered []string
}

func (f *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.URL.Path == "/v1/agent/service/register":
		var reg api.AgentServiceRegistration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.registered = append(f.registered, reg)
	case len(r.URL.Path) > len("/v1/agent/service/deregister/"):
		f.deregistered = append(f.deregistered, r.URL.Path[len("/v1/agent/service/deregister/"):])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFakeConsul(t *testing.T) (*fakeAgent, string, int) {
	t.Helper()
	agent := &fakeAgent{}
	srv := httptest.NewServer(agent)
	t.Cleanup(srv.Close)
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return agent, host, port
}

func TestRegistry_RegisterAndDeRegister(t *testing.T) {
	agent, host, port := newFakeConsul(t)
	client := NewRegistryClient(host, port)

	require.NoError(t, client.Register("10.0.0.5", 8083, 50061, "cart-srv", []string{"cart"}, "id-1"))
	require.Len(t, agent.registered, 1)
	reg := agent.registered[0]
	assert.Equal(t, "id-1", reg.ID)
	assert.Equal(t, "cart-srv", reg.Name)
	assert.Equal(t, 8083, reg.Port)
	assert.Equal(t, "10.0.0.5", reg.Address)
	require.Len(t, reg.Checks, 2)
	assert.Equal(t, "http://10.0.0.5:8083/health", reg.Checks[0].HTTP)
	assert.Equal(t, "10.0.0.5:50061", reg.Checks[1].GRPC)

	require.NoError(t, client.DeRegister("id-1"))
	assert.Equal(t, []string{"id-1"}, agent.deregistered)
}

func TestRegistry_NoGrpcCheck(t *testing.T) {
	agent, host, port := newFakeConsul(t)
	client := NewRegistryClient(host, port)

	require.NoError(t, client.Register("10.0.0.5", 8083, 0, "cart-srv", nil, "id-2"))
	require.Len(t, agent.registered, 1)
	assert.Len(t, agent.registered[0].Checks, 1)
}
