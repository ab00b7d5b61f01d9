package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/morphkit/pkg/buildinfo"
	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/pipeline"
	"github.com/matzehuels/morphkit/pkg/store"
)

// Response headers.
const (
	FilenameHeader = "X-Filename"
	WarningsHeader = "X-Morphkit-Warnings"
	FormatHeader   = "X-Morphkit-Format"
	CacheHeader    = "X-Morphkit-Cache"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Get())
}

func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"inputs":  pipeline.Names(pipeline.ValidFormats),
		"outputs": pipeline.Names(pipeline.ValidOutputs),
	})
}

// convertResponse is the body of /v1/convert with output=json.
type convertResponse struct {
	Format   string          `json:"format"`
	Summary  store.Summary   `json:"summary"`
	Warnings []morph.Warning `json:"warnings"`
	Tree     json.RawMessage `json:"tree"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	opts, err := s.decodeOptions(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	output := strings.ToLower(r.URL.Query().Get("output"))
	if output == "" {
		output = pipeline.DefaultOutput
	}
	opts.Outputs = []string{output}
	if opts.Data, err = s.readBody(w, r); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.runner.Execute(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data := res.Artifacts[output]

	h := w.Header()
	h.Set(WarningsHeader, strconv.Itoa(len(res.Warnings)))
	h.Set(FormatHeader, res.Format)
	h.Set(CacheHeader, cacheState(res.CacheInfo.DecodeHit, res.CacheInfo.RenderHit))

	if output == pipeline.OutputJSON {
		warnings := res.Warnings
		if warnings == nil {
			warnings = []morph.Warning{}
		}
		writeJSON(w, http.StatusOK, convertResponse{
			Format:   res.Format,
			Summary:  res.Summary(),
			Warnings: warnings,
			Tree:     data,
		})
		return
	}
	h.Set("Content-Type", pipeline.ContentTypes[output])
	h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", strings.TrimSuffix(res.Tree.Name, path.Ext(res.Tree.Name))+pipeline.OutputExt(output)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	opts, err := s.decodeOptions(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ttl := s.cfg.SnapshotTTL
	if v := r.URL.Query().Get("ttl"); v != "" {
		if ttl, err = time.ParseDuration(v); err != nil || ttl < 0 {
			s.fail(w, r, perrors.New(perrors.ErrCodeInvalidInput, "invalid ttl: %q", v))
			return
		}
	}
	data, err := s.readBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, _, err := s.runner.Decode(r.Context(), data, opts.Name, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	snap, err := store.New(res.Tree, res.Format, res.Warnings, ttl)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.Put(r.Context(), snap); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("stored snapshot", "id", snap.ID, "name", snap.Name, "lines", snap.Summary.NumLines)

	w.Header().Set("Location", "/v1/snapshots/"+snap.ID)
	writeJSON(w, http.StatusCreated, summaryOnly(snap))
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.store.List(r.Context(), store.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*store.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": list})
}

// handleGetSnapshot returns the stored snapshot, or renders it when an
// output is requested.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	output := strings.ToLower(r.URL.Query().Get("output"))
	if output == "" {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	t, err := snap.Tree()
	if err != nil {
		s.fail(w, r, perrors.Wrap(perrors.ErrCodeInternal, err, "snapshot %s", snap.ID))
		return
	}
	opts, err := s.decodeOptions(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts.Outputs = []string{output}
	artifacts, err := s.runner.Render(r.Context(), t, "", opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", pipeline.ContentTypes[output])
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifacts[output])
}

func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeOptions reads the pipeline options shared by the conversion
// endpoints from the query string.
func (s *Server) decodeOptions(r *http.Request) (pipeline.Options, error) {
	q := r.URL.Query()
	opts := pipeline.Options{
		Name:      r.Header.Get(FilenameHeader),
		Format:    q.Get("format"),
		SRS:       q.Get("srs"),
		Transform: q.Get("transform"),
		CellID:    q.Get("cell_id"),
	}
	var err error
	if v := q.Get("decimals"); v != "" {
		d, err := intParam(v, 0)
		if err != nil {
			return opts, err
		}
		opts.Decimals = &d
	}
	if opts.MaxLines, err = intParam(q.Get("max_lines"), 0); err != nil {
		return opts, err
	}
	canonical, err := boolParam(q.Get("canonical"), true)
	if err != nil {
		return opts, err
	}
	opts.Raw = !canonical
	if opts.Detailed, err = boolParam(q.Get("detailed"), false); err != nil {
		return opts, err
	}
	if opts.Refresh, err = boolParam(q.Get("refresh"), false); err != nil {
		return opts, err
	}
	return opts, nil
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, perrors.New(perrors.ErrCodeInvalidInput, "request body is empty")
	}
	return data, nil
}

// fail writes err as a JSON error with the status its code maps to.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := perrors.HTTPStatus(err)
	code := string(perrors.GetCode(err))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		status, code = http.StatusRequestEntityTooLarge, "INVALID_INPUT"
	case errors.Is(err, store.ErrNotFound):
		status, code = http.StatusNotFound, string(perrors.ErrCodeNotFound)
	case errors.Is(err, store.ErrInvalidID):
		status, code = http.StatusBadRequest, string(perrors.ErrCodeInvalidInput)
	}
	if code == "" {
		code = string(perrors.ErrCodeInternal)
	}
	if status >= 500 {
		s.logger.Error("request failed", "id", RequestID(r.Context()), "err", err)
	}
	writeError(w, status, code, perrors.UserMessage(err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": message, "code": code})
}

func summaryOnly(s *store.Snapshot) *store.Snapshot {
	c := *s
	c.Data = nil
	return &c
}

func cacheState(hits ...bool) string {
	for _, h := range hits {
		if !h {
			return "miss"
		}
	}
	return "hit"
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, perrors.New(perrors.ErrCodeInvalidInput, "invalid integer: %q", v)
	}
	return n, nil
}

func boolParam(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, perrors.New(perrors.ErrCodeInvalidInput, "invalid boolean: %q", v)
	}
	return b, nil
}
