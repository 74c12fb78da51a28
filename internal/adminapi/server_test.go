package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FairForge/vaultaire/internal/pipeline"
)

type fakeCluster struct {
	leader      bool
	leaderAddr  string
	appliedIdx  uint64
}

func (f *fakeCluster) IsLeader() bool        { return f.leader }
func (f *fakeCluster) LeaderAddr() string    { return f.leaderAddr }
func (f *fakeCluster) AppliedIndex() uint64  { return f.appliedIdx }

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type fakeGC struct {
	res pipeline.GCResult
	err error
}

func (f *fakeGC) GC(context.Context, bool) (pipeline.GCResult, error) { return f.res, f.err }

func TestServer_Health_AlwaysOK(t *testing.T) {
	s := NewServer(":0", nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Ready_ReflectsPingerError(t *testing.T) {
	s := NewServer(":0", nil, nil, &fakePinger{err: assertErr{}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_Status_ReportsClusterState(t *testing.T) {
	s := NewServer(":0", nil, &fakeCluster{leader: true, leaderAddr: "node-1:8300", appliedIdx: 42}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_leader":true`)
}

func TestServer_AdminGC_RejectsOnNonLeader(t *testing.T) {
	s := NewServer(":0", nil, &fakeCluster{leader: false, leaderAddr: "node-1:8300"}, nil, nil)
	s.SetGCRunner(&fakeGC{})

	req := httptest.NewRequest(http.MethodPost, "/admin/gc", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "node-1:8300", w.Header().Get("X-Raft-Leader"))
}

func TestServer_AdminGC_RunsOnLeader(t *testing.T) {
	s := NewServer(":0", nil, &fakeCluster{leader: true}, nil, nil)
	s.SetGCRunner(&fakeGC{res: pipeline.GCResult{OrphanChunks: 3}})

	req := httptest.NewRequest(http.MethodPost, "/admin/gc", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"OrphanChunks":3`)
}

type assertErr struct{}

func (assertErr) Error() string { return "ping failed" }
