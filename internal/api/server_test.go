package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ir-server/ir-server/internal/remotes"
	"github.com/ir-server/ir-server/internal/server"
)

type fixedStats struct{ stats server.Stats }

func (f fixedStats) StatsSnapshot() server.Stats { return f.stats }

func newTestAPI(t *testing.T) *RESTServer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remotes.conf")
	conf := `
begin remote
  name sony-tv
  bits 12
  one 1200 600
  zero 600 600
  gap 45000
  begin codes
    KEY_POWER 0xA90
  end codes
end remote
`
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))
	db, err := remotes.Load(path)
	require.NoError(t, err)

	stats := fixedStats{stats: server.Stats{
		Clients: 2,
		Peers:   []string{"10.0.0.5:8765"},
		Driver:  "simulate",
		Device:  "sim",
	}}
	return NewRESTServer(db, stats)
}

func doGet(t *testing.T, s *RESTServer, path string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHandleStatus(t *testing.T) {
	s := newTestAPI(t)

	code, body := doGet(t, s, "/api/v1/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["clients"])
	assert.Equal(t, "simulate", body["driver"])
	assert.Equal(t, float64(1), body["remotes"])
}

func TestHandleVersion(t *testing.T) {
	s := newTestAPI(t)

	code, body := doGet(t, s, "/api/v1/version")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, server.Version, body["version"])
}

func TestHandleListRemotes(t *testing.T) {
	s := newTestAPI(t)

	code, body := doGet(t, s, "/api/v1/remotes")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total"])

	list, ok := body["remotes"].([]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)
	entry := list[0].(map[string]interface{})
	assert.Equal(t, "sony-tv", entry["name"])
	assert.Equal(t, float64(1), entry["codes"])
}

func TestHandleGetRemote(t *testing.T) {
	s := newTestAPI(t)

	code, body := doGet(t, s, "/api/v1/remotes/sony-tv")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sony-tv", body["name"])
	assert.Equal(t, float64(12), body["bits"])

	codes, ok := body["codes"].([]interface{})
	require.True(t, ok)
	require.Len(t, codes, 1)
	first := codes[0].(map[string]interface{})
	assert.Equal(t, "KEY_POWER", first["name"])
	assert.Equal(t, "0xA90", first["value"])
}

func TestHandleClients(t *testing.T) {
	s := newTestAPI(t)

	code, body := doGet(t, s, "/api/v1/clients")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["total"])

	peers, ok := body["peers"].([]interface{})
	require.True(t, ok)
	require.Len(t, peers, 1)
	assert.Equal(t, "10.0.0.5:8765", peers[0])
}

func TestHandleGetRemoteNotFound(t *testing.T) {
	s := newTestAPI(t)

	code, body := doGet(t, s, "/api/v1/remotes/nosuch")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "remote not found", body["error"])
}
