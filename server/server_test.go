package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/landcover/analysis/rundb"
	"github.com/cyclopcam/landcover/pkg/storage"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func createTestServer(t *testing.T) (*Server, *rundb.RunDB, storage.Storage) {
	log := logs.NewTestingLog(t)
	os.Remove("test-server.sqlite")
	runs, err := rundb.Open(log, dbh.MakeSqliteConfig("test-server.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() {
		runs.Close()
		os.Remove("test-server.sqlite")
	})
	store, err := storage.NewStorageFS(log, filepath.Join(t.TempDir(), "exports"))
	require.NoError(t, err)
	return New(log, runs, store), runs, store
}

func get(t *testing.T, s *Server, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", url, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, s *Server, url string, v any) {
	w := get(t, s, url)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestRunsAPI(t *testing.T) {
	s, runs, store := createTestServer(t)
	ctx := context.Background()

	seed := uint64(7)
	run, err := runs.StartRun(rundb.RunKindClassification, map[string]any{"trainFraction": 0.8}, &seed)
	require.NoError(t, err)
	require.NoError(t, runs.FinishRun(run, map[string]any{"overallAccuracy": 0.9}, nil))
	other, err := runs.StartRun(rundb.RunKindTimeSeries, nil, nil)
	require.NoError(t, err)

	gif := []byte("GIF89a...")
	require.NoError(t, storage.WriteFile(ctx, store, "runs/1/timelapse.gif", bytes.NewReader(gif)))
	_, err = runs.AddArtifact(run.ID, "timelapse.gif", "runs/1/timelapse.gif", "image/gif", int64(len(gif)))
	require.NoError(t, err)

	ping := map[string]any{}
	getJSON(t, s, "/api/ping", &ping)
	require.Contains(t, ping, "time")

	list := []runJSON{}
	getJSON(t, s, "/api/runs", &list)
	require.Len(t, list, 2)
	require.Equal(t, other.ID, list[0].ID)
	require.Equal(t, rundb.RunStatusRunning, list[0].Status)
	require.Nil(t, list[0].Finished)

	list = []runJSON{}
	getJSON(t, s, "/api/runs?limit=1", &list)
	require.Len(t, list, 1)

	one := runJSON{}
	getJSON(t, s, "/api/runs/1", &one)
	require.Equal(t, rundb.RunKindClassification, one.Kind)
	require.Equal(t, rundb.RunStatusFinished, one.Status)
	require.NotNil(t, one.Finished)
	require.Equal(t, int64(7), *one.Seed)
	require.JSONEq(t, `{"trainFraction":0.8}`, string(one.Config))
	require.InDelta(t, 0.9, one.Metrics["overallAccuracy"], 1e-9)

	artifacts := []artifactJSON{}
	getJSON(t, s, "/api/runs/1/artifacts", &artifacts)
	require.Len(t, artifacts, 1)
	require.Equal(t, "timelapse.gif", artifacts[0].Name)
	require.Equal(t, "/api/runs/1/artifact/timelapse.gif", artifacts[0].URL)

	w := get(t, s, "/api/runs/1/artifact/timelapse.gif")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	body, _ := io.ReadAll(w.Body)
	require.Equal(t, gif, body)
}

func TestRunsAPIErrors(t *testing.T) {
	s, runs, _ := createTestServer(t)
	_, err := runs.StartRun(rundb.RunKindClassification, nil, nil)
	require.NoError(t, err)

	require.Equal(t, http.StatusNotFound, get(t, s, "/api/runs/99").Code)
	require.Equal(t, http.StatusBadRequest, get(t, s, "/api/runs/abc").Code)
	require.Equal(t, http.StatusNotFound, get(t, s, "/api/runs/99/artifacts").Code)
	require.Equal(t, http.StatusNotFound, get(t, s, "/api/runs/1/artifact/missing.png").Code)
}

func TestArtifactRateLimit(t *testing.T) {
	s, runs, _ := createTestServer(t)
	_, err := runs.StartRun(rundb.RunKindClassification, nil, nil)
	require.NoError(t, err)

	for i := 0; i < artifactRateLimit; i++ {
		require.Equal(t, http.StatusNotFound, get(t, s, "/api/runs/1/artifact/missing.png").Code)
	}
	require.Equal(t, http.StatusTooManyRequests, get(t, s, "/api/runs/1/artifact/missing.png").Code)
}
