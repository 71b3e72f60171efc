package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cyclopcam/landcover/analysis/rundb"
	"github.com/cyclopcam/landcover/pkg/storage"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

// Artifact downloads per IP per minute
const artifactRateLimit = 60

const defaultRunLimit = 50

func (s *Server) setupHttpRoutes() {
	router := httprouter.New()

	handle := func(method, route string, h httprouter.Handle) {
		www.Handle(s.Log, router, method, route, h)
	}

	// Artifacts can be large, so downloads are rate limited per client
	limited := httprate.Limit(artifactRateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	ratelimited := func(method, route string, h httprouter.Handle) {
		handle(method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				h(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/api/ping", s.httpPing)
	handle("GET", "/api/runs", s.httpListRuns)
	handle("GET", "/api/runs/:id", s.httpGetRun)
	handle("GET", "/api/runs/:id/artifacts", s.httpListArtifacts)
	ratelimited("GET", "/api/runs/:id/artifact/:name", s.httpGetArtifact)

	s.httpRouter = router
}

type runJSON struct {
	ID       int64           `json:"id"`
	Kind     rundb.RunKind   `json:"kind"`
	Status   rundb.RunStatus `json:"status"`
	Started  time.Time       `json:"started"`
	Finished *time.Time      `json:"finished,omitempty"`
	Seed     *int64          `json:"seed,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
	Metrics  map[string]any  `json:"metrics,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func makeRunJSON(r *rundb.Run) *runJSON {
	j := &runJSON{
		ID:      r.ID,
		Kind:    r.Kind,
		Status:  r.Status,
		Started: r.Started.Get(),
		Seed:    r.Seed,
		Error:   r.Error,
	}
	if !r.Finished.IsZero() {
		f := r.Finished.Get()
		j.Finished = &f
	}
	if r.Config != nil {
		j.Config = r.Config.Data
	}
	if r.Metrics != nil {
		j.Metrics = r.Metrics.Data
	}
	return j
}

type artifactJSON struct {
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Created     time.Time `json:"created"`
	URL         string    `json:"url"`
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, map[string]any{
		"time": time.Now().Unix(),
	})
}

func (s *Server) httpListRuns(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	limit := www.QueryInt(r, "limit")
	if limit <= 0 {
		limit = defaultRunLimit
	}
	runs, err := s.runs.Runs(limit)
	www.Check(err)
	out := []*runJSON{}
	for _, run := range runs {
		out = append(out, makeRunJSON(run))
	}
	www.SendJSON(w, out)
}

func (s *Server) getRunOrPanic(params httprouter.Params) *rundb.Run {
	id := www.ParseID(params.ByName("id"))
	if id <= 0 {
		www.PanicBadRequestf("Invalid run id '%v'", params.ByName("id"))
	}
	run, err := s.runs.Run(id)
	if errors.Is(err, rundb.ErrNotFound) {
		www.PanicNotFound()
	}
	www.Check(err)
	return run
}

func (s *Server) httpGetRun(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, makeRunJSON(s.getRunOrPanic(params)))
}

func (s *Server) httpListArtifacts(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	run := s.getRunOrPanic(params)
	artifacts, err := s.runs.Artifacts(run.ID)
	www.Check(err)
	out := []*artifactJSON{}
	for _, a := range artifacts {
		out = append(out, &artifactJSON{
			Name:        a.Name,
			ContentType: a.ContentType,
			Size:        a.Size,
			Created:     a.Created.Get(),
			URL:         "/api/runs/" + strconv.FormatInt(run.ID, 10) + "/artifact/" + a.Name,
		})
	}
	www.SendJSON(w, out)
}

// If the export store has public URLs, we redirect to the blob. Otherwise we stream it.
func (s *Server) httpGetArtifact(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	run := s.getRunOrPanic(params)
	a, err := s.runs.Artifact(run.ID, params.ByName("name"))
	if errors.Is(err, rundb.ErrNotFound) {
		www.PanicNotFound()
	}
	www.Check(err)

	if url, err := s.exports.URL(a.BlobKey); err == nil {
		http.Redirect(w, r, url, http.StatusFound)
		return
	} else if !errors.Is(err, storage.ErrNoPublicURL) {
		www.Check(err)
	}

	file, err := s.exports.ReadFile(r.Context(), a.BlobKey)
	www.Check(err)
	defer file.Reader.Close()
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	if _, err := io.Copy(w, file.Reader); err != nil {
		s.Log.Warnf("Failed to send %v: %v", a.BlobKey, err)
	}
}
