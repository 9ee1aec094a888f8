package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/matzehuels/factorygrid/pkg/buildinfo"
	"github.com/matzehuels/factorygrid/pkg/cache"
	"github.com/matzehuels/factorygrid/pkg/demand"
	"github.com/matzehuels/factorygrid/pkg/errors"
	"github.com/matzehuels/factorygrid/pkg/factory"
	fgio "github.com/matzehuels/factorygrid/pkg/io"
	"github.com/matzehuels/factorygrid/pkg/pipeline"
)

// resolveTTL is how long a cached bill of materials is kept.
const resolveTTL = 24 * time.Hour

// =============================================================================
// Wire Types
// =============================================================================

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Recipes int    `json:"recipes"`
	Items   int    `json:"items"`
}

type resolveRequest struct {
	Requests   []demand.Request `json:"requests"`
	Categories []string         `json:"categories,omitempty"`
}

// BOM is the bill of materials returned by /v1/resolve.
type BOM struct {
	Recipes    []RecipeLine `json:"recipes"`
	Items      []ItemLine   `json:"items"`
	Unresolved []string     `json:"unresolved,omitempty"`
	TotalUnits int          `json:"total_units"`
}

// RecipeLine is one recipe of a BOM.
type RecipeLine struct {
	Recipe   string  `json:"recipe"`
	Category string  `json:"category"`
	Rate     float64 `json:"rate"`
	Machines float64 `json:"machines"`
	Units    int     `json:"units"`
}

// ItemLine is one raw item of a BOM.
type ItemLine struct {
	Item string  `json:"item"`
	Rate float64 `json:"rate"`
}

// NewBOM converts resolved requirements to their wire form.
func NewBOM(req *demand.Requirements) BOM {
	bom := BOM{
		Recipes:    make([]RecipeLine, 0, len(req.Recipes)),
		Items:      make([]ItemLine, 0, len(req.Items)),
		Unresolved: req.Unresolved,
		TotalUnits: req.TotalUnits(),
	}
	for _, d := range req.Recipes {
		bom.Recipes = append(bom.Recipes, RecipeLine{
			Recipe:   d.Recipe.Name,
			Category: d.Recipe.Category,
			Rate:     d.Rate,
			Machines: d.Machines(),
			Units:    d.Units(),
		})
	}
	for _, d := range req.Items {
		bom.Items = append(bom.Items, ItemLine{Item: d.Item.Name, Rate: d.Rate})
	}
	return bom
}

type planRequest struct {
	Requests      []demand.Request `json:"requests"`
	Categories    []string         `json:"categories,omitempty"`
	Sources       []factory.Source `json:"sources,omitempty"`
	Bounds        *factory.Bounds  `json:"bounds,omitempty"`
	Scale         int64            `json:"scale,omitempty"`
	SourceOffset  int64            `json:"source_offset,omitempty"`
	TimeLimit     string           `json:"time_limit,omitempty"`
	SolutionLimit int              `json:"solution_limit,omitempty"`
	Label         string           `json:"label,omitempty"`
	Refresh       bool             `json:"refresh,omitempty"`
}

type planResponse struct {
	Status      string             `json:"status"`
	Objective   int64              `json:"objective"`
	Solutions   int                `json:"solutions"`
	Blueprint   string             `json:"blueprint"`
	Table       string             `json:"table"`
	Layout      *fgio.Document     `json:"layout"`
	BOM         BOM                `json:"bom"`
	Unsatisfied int                `json:"unsatisfied"`
	Stats       planStats          `json:"stats"`
	Cache       pipeline.CacheInfo `json:"cache"`
}

type planStats struct {
	Units       int   `json:"units"`
	Edges       int   `json:"edges"`
	Vars        int   `json:"vars"`
	Constraints int   `json:"constraints"`
	SolveMS     int64 `json:"solve_ms"`
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: buildinfo.Short(),
		Recipes: len(s.catalog.Recipes),
		Items:   len(s.catalog.Items),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	key := s.resolveKey(req)
	var bom BOM
	if key != "" {
		err := cache.GetJSON(r.Context(), s.runner.Cache, key, &bom)
		if err == nil {
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, bom)
			return
		}
		if !stderrors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("resolve cache lookup failed", "err", err)
		}
	}

	opts := pipeline.Options{Requests: req.Requests, Categories: req.Categories}
	requirements, err := s.runner.Resolve(r.Context(), s.catalog, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	bom = NewBOM(requirements)

	if key != "" {
		if err := cache.SetJSON(r.Context(), s.runner.Cache, key, bom, resolveTTL); err != nil {
			s.logger.Warn("resolve cache store failed", "err", err)
		}
	}
	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, bom)
}

// resolveKey returns the cache key of a resolve request, or "" when the
// catalog has no fingerprint. Non-default categories are folded into the
// catalog scope.
func (s *Server) resolveKey(req resolveRequest) string {
	if s.catalogHash == "" {
		return ""
	}
	scope := s.catalogHash
	if len(req.Categories) > 0 {
		data, _ := json.Marshal(req.Categories)
		scope = cache.Hash(append([]byte(scope), data...))
	}
	return s.runner.Keyer.ResolveKey(scope, req.Requests)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	opts, err := s.planOptions(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.runner.Execute(r.Context(), s.catalog, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, planResponse{
		Status:      res.Status.String(),
		Objective:   res.Best.Objective,
		Solutions:   res.Stats.Solutions,
		Blueprint:   res.Blueprint,
		Table:       res.Best.Table,
		Layout:      fgio.NewDocument(res.Best.Objective, res.Best.Bounds, res.Best.Placements),
		BOM:         NewBOM(res.Requirements),
		Unsatisfied: res.Stats.Unsatisfied,
		Stats: planStats{
			Units:       res.Stats.Units,
			Edges:       res.Stats.Edges,
			Vars:        res.Stats.Vars,
			Constraints: res.Stats.Constraints,
			SolveMS:     res.Stats.SolveTime.Milliseconds(),
		},
		Cache: res.CacheInfo,
	})
}

// planOptions maps a plan request onto pipeline options, capping the time
// limit and the unit count at the server maximums.
func (s *Server) planOptions(req planRequest) (pipeline.Options, error) {
	limit := s.maxTimeLimit
	if req.TimeLimit != "" {
		d, err := time.ParseDuration(req.TimeLimit)
		if err != nil || d <= 0 {
			return pipeline.Options{}, errors.New(errors.ErrCodeInvalidInput, "invalid time_limit %q", req.TimeLimit)
		}
		limit = min(d, s.maxTimeLimit)
	}
	return pipeline.Options{
		Requests:      req.Requests,
		Categories:    req.Categories,
		Sources:       req.Sources,
		Bounds:        req.Bounds,
		MaxUnits:      s.maxUnits,
		Scale:         req.Scale,
		SourceOffset:  req.SourceOffset,
		TimeLimit:     limit,
		SolutionLimit: req.SolutionLimit,
		NoIO:          true,
		Refresh:       req.Refresh,
		Formats:       []string{pipeline.FormatBlueprint},
		Label:         req.Label,
		CatalogHash:   s.catalogHash,
	}, nil
}

// =============================================================================
// Helpers
// =============================================================================

type errorPayload struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorBody(code, msg string) errorPayload {
	return errorPayload{Error: errorDetail{Code: code, Message: msg}}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	code := string(errors.GetCode(err))
	if code == "" {
		code = string(errors.ErrCodeInternal)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorBody(code, errors.UserMessage(err)))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
