package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/sadopc/autotrackr/internal/metrics"
	"github.com/sadopc/autotrackr/internal/store"
)

const maxBodyBytes = 1 << 20

// Request is a transport-free operation request.
type Request struct {
	Vars  map[string]string
	Query map[string][]string
	Body  []byte
}

func (r *Request) query(key string) string {
	if v := r.Query[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (r *Request) id(name string) (int64, error) {
	id, err := strconv.ParseInt(r.Vars[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidf("invalid %s %q", name, r.Vars[name])
	}
	return id, nil
}

func (r *Request) decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return invalidf("request body is required")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return invalidf("invalid request body: %v", err)
	}
	return nil
}

// Response is the outcome of a dispatched operation. Body is either the
// operation's result or an ErrorPayload.
type Response struct {
	Status int
	Body   any
}

type operation func(req *Request) (any, error)

type route struct {
	status int
	op     operation
}

// Router maps (method, path) pairs to Service operations. It can be driven
// directly through Dispatch or served over HTTP through Handler.
type Router struct {
	service *Service
	mux     *mux.Router
	routes  map[string]route
	logger  zerolog.Logger
}

func NewRouter(service *Service, logger zerolog.Logger) *Router {
	rt := &Router{
		service: service,
		mux:     mux.NewRouter(),
		routes:  make(map[string]route),
		logger:  logger.With().Str("component", "router").Logger(),
	}
	rt.mux.NotFoundHandler = http.HandlerFunc(rt.serveHTTP)
	rt.mux.MethodNotAllowedHandler = http.HandlerFunc(rt.serveHTTP)
	rt.setupRoutes()
	return rt
}

func (rt *Router) setupRoutes() {
	// Taxonomy
	rt.add(http.MethodGet, "/api/brands", http.StatusOK, rt.listBrands)
	rt.add(http.MethodPost, "/api/brands", http.StatusCreated, rt.createBrand)
	rt.add(http.MethodPut, "/api/brands/{id:[0-9]+}", http.StatusOK, rt.updateBrand)
	rt.add(http.MethodDelete, "/api/brands/{id:[0-9]+}", http.StatusNoContent, rt.deleteBrand)
	rt.add(http.MethodGet, "/api/projects", http.StatusOK, rt.listProjects)
	rt.add(http.MethodPost, "/api/projects", http.StatusCreated, rt.createProject)
	rt.add(http.MethodPut, "/api/projects/{id:[0-9]+}", http.StatusOK, rt.updateProject)
	rt.add(http.MethodDelete, "/api/projects/{id:[0-9]+}", http.StatusNoContent, rt.deleteProject)
	rt.add(http.MethodGet, "/api/projects/{id:[0-9]+}/rules", http.StatusOK, rt.listRules)
	rt.add(http.MethodPost, "/api/projects/{id:[0-9]+}/rules", http.StatusCreated, rt.createRule)
	rt.add(http.MethodGet, "/api/rules/invalid", http.StatusOK, rt.invalidRules)
	rt.add(http.MethodPost, "/api/rules/validate", http.StatusOK, rt.validatePattern)
	rt.add(http.MethodPut, "/api/rules/{id:[0-9]+}", http.StatusOK, rt.updateRule)
	rt.add(http.MethodDelete, "/api/rules/{id:[0-9]+}", http.StatusNoContent, rt.deleteRule)

	// Classification and ingestion
	rt.add(http.MethodGet, "/api/activities/{id:[0-9]+}", http.StatusOK, rt.getActivity)
	rt.add(http.MethodPost, "/api/activities/assign", http.StatusOK, rt.assignActivities)
	rt.add(http.MethodPost, "/api/activities/auto-assign", http.StatusOK, rt.autoAssign)
	rt.add(http.MethodPost, "/api/heartbeats", http.StatusAccepted, rt.recordHeartbeat)

	// Reports
	rt.add(http.MethodGet, "/api/reports/day", http.StatusOK, rt.dayReport)
	rt.add(http.MethodGet, "/api/reports/week", http.StatusOK, rt.weekReport)
	rt.add(http.MethodGet, "/api/reports/month", http.StatusOK, rt.monthReport)
	rt.add(http.MethodGet, "/api/reports/range", http.StatusOK, rt.rangeReport)
	rt.add(http.MethodGet, "/api/reports/app", http.StatusOK, rt.appReport)
	rt.add(http.MethodGet, "/api/reports/brands", http.StatusOK, rt.brandReport)
	rt.add(http.MethodGet, "/api/reports/unassigned", http.StatusOK, rt.unassignedReport)
	rt.add(http.MethodGet, "/api/reports/timeline", http.StatusOK, rt.timelineReport)
	rt.add(http.MethodGet, "/api/reports/today", http.StatusOK, rt.todayReport)

	// Suggestions
	rt.add(http.MethodGet, "/api/suggestions", http.StatusOK, rt.listSuggestions)
	rt.add(http.MethodPost, "/api/suggestions/accept", http.StatusCreated, rt.acceptSuggestion)
	rt.add(http.MethodPost, "/api/suggestions/dismiss", http.StatusNoContent, rt.dismissSuggestion)

	// Settings
	rt.add(http.MethodGet, "/api/settings", http.StatusOK, rt.listSettings)
	rt.add(http.MethodPut, "/api/settings/{key}", http.StatusOK, rt.updateSetting)
}

func (rt *Router) add(method, path string, status int, op operation) {
	name := method + " " + path
	rt.routes[name] = route{status: status, op: op}
	rt.mux.HandleFunc(path, rt.serveHTTP).Methods(method).Name(name)
}

// Mount serves an extra HTTP handler, such as /metrics, next to the API.
// Mounted handlers are not reachable through Dispatch.
func (rt *Router) Mount(path string, h http.Handler) {
	rt.mux.Handle(path, h)
}

// Handler returns the HTTP adapter.
func (rt *Router) Handler() http.Handler {
	return rt.mux
}

// Dispatch runs the operation registered for method and target (a path with
// an optional query string).
func (rt *Router) Dispatch(method, target string, body []byte) Response {
	httpReq, err := http.NewRequest(method, target, nil)
	if err != nil {
		return rt.fail("invalid", invalidf("invalid target %q", target))
	}

	var match mux.RouteMatch
	matched := rt.mux.Match(httpReq, &match)
	switch {
	case match.MatchErr == mux.ErrMethodMismatch:
		return Response{Status: http.StatusMethodNotAllowed, Body: ErrorPayload{
			Kind: KindMethodNotAllowed, Message: method + " not allowed on " + httpReq.URL.Path,
		}}
	case !matched || match.MatchErr != nil || match.Route == nil:
		return Response{Status: http.StatusNotFound, Body: ErrorPayload{
			Kind: KindNotFound, Message: "no route for " + method + " " + httpReq.URL.Path,
		}}
	}

	name := match.Route.GetName()
	r, ok := rt.routes[name]
	if !ok {
		return Response{Status: http.StatusNotFound, Body: ErrorPayload{
			Kind: KindNotFound, Message: "no route for " + method + " " + httpReq.URL.Path,
		}}
	}

	start := time.Now()
	result, err := r.op(&Request{Vars: match.Vars, Query: httpReq.URL.Query(), Body: body})
	var resp Response
	if err != nil {
		resp = rt.fail(name, err)
	} else {
		resp = Response{Status: r.status, Body: result}
		if r.status == http.StatusNoContent {
			resp.Body = nil
		}
	}
	metrics.OperationDuration.WithLabelValues(name, strconv.Itoa(resp.Status)).Observe(time.Since(start).Seconds())
	return resp
}

func (rt *Router) fail(name string, err error) Response {
	status, payload := ErrorStatus(err)
	ev := rt.logger.Debug()
	if status >= http.StatusInternalServerError {
		ev = rt.logger.Error()
	}
	ev.Err(err).Str("route", name).Int("status", status).Msg("Operation failed")
	return Response{Status: status, Body: payload}
}

func (rt *Router) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorPayload{Kind: KindInvalidRequest, Message: "failed to read body"})
		return
	}
	resp := rt.Dispatch(r.Method, r.URL.RequestURI(), body)
	if resp.Status == http.StatusNoContent {
		w.WriteHeader(resp.Status)
		return
	}
	writeJSON(w, resp.Status, resp.Body)
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"kind":"internal","message":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// === Taxonomy ===

func (rt *Router) listBrands(req *Request) (any, error) {
	return rt.service.ListBrands()
}

func (rt *Router) createBrand(req *Request) (any, error) {
	var in BrandInput
	if err := req.decode(&in); err != nil {
		return nil, err
	}
	return rt.service.CreateBrand(in)
}

func (rt *Router) updateBrand(req *Request) (any, error) {
	id, err := req.id("id")
	if err != nil {
		return nil, err
	}
	var in BrandInput
	if err := req.decode(&in); err != nil {
		return nil, err
	}
	return rt.service.UpdateBrand(id, in)
}

func (rt *Router) deleteBrand(req *Request) (any, error) {
	id, err := req.id("id")
	if err != nil {
		return nil, err
	}
	return nil, rt.service.DeleteBrand(id)
}

func (rt *Router) listProjects(req *Request) (any, error) {
	var brandID *int64
	if raw := req.query("brand_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, invalidf("invalid brand_id %q", raw)
		}
		brandID = &id
	}
	return rt.service.ListProjects(brandID)
}

func (rt *Router) createProject(req *Request) (any, error) {
	var in ProjectInput
	if err := req.decode(&in); err != nil {
		return nil, err
	}
	return rt.service.CreateProject(in)
}

func (rt *Router) updateProject(req *Request) (any, error) {
	id, err := req.id("id")
	if err != nil {
		return nil, err
	}
	var in ProjectInput
	if err := req.decode(&in); err != nil {
		return nil, err
	}
	return rt.service.UpdateProject(id, in)
}

func (rt *Router) deleteProject(req *Request) (any, error) {
	id, err := req.id("id")
	if err != nil {
		return nil, err
	}
	return nil, rt.service.DeleteProject(id)
}

func (rt *Router) listRules(req *Request) (any, error) {
	id, err := req.id("id")
	if err != nil {
		return nil, err
	}
	return rt.service.ListRules(id)
}

func (rt *Router) createRule(req *Request) (any, error) {
	id, err := req.id("id")
	if err != nil {
		return nil, err
	}
	var in store.RuleInput
	if err := req.decode(&in); err != nil {
		return nil, err
	}
	return rt.service.CreateRule(id, in)
}

func (rt *Router) updateRule(req *Request) (any, error) {
	id, err := req.id("id")
	if err != nil {
		return nil, err
	}
	var in store.RuleInput
	if err := req.decode(&in); err != nil {
		return nil, err
	}
	return rt.service.UpdateRule(id, in)
}

func (rt *Router) deleteRule(req *Request) (any, error) {
	id, err := req.id("id")
	if err != nil {
		return nil, err
	}
	return nil, rt.service.DeleteRule(id)
}

func (rt *Router) invalidRules(req *Request) (any, error) {
	return rt.service.InvalidRules()
}

func (rt *Router) validatePattern(req *Request) (any, error) {
	var in PatternInput
	if err := req.decode(&in); err != nil {
		return nil, err
	}
	return rt.service.ValidatePattern(in), nil
}

// === Classification and ingestion ===

func (rt *Router) getActivity(req *Request) (any, error) {
	id, err := req.id("id")
	if err != nil {
		return nil, err
	}
	return rt.service.GetActivity(id)
}

func (rt *Router) assignActivities(req *Request) (any, error) {
	var in AssignInput
	if err := req.decode(&in); err != nil {
		return nil, err
	}
	return rt.service.AssignActivities(in)
}

func (rt *Router) autoAssign(req *Request) (any, error) {
	var in AutoAssignInput
	if len(bytes.TrimSpace(req.Body)) > 0 {
		if err := req.decode(&in); err != nil {
			return nil, err
		}
	}
	if d := req.query("date"); d != "" && in.Date == nil {
		in.Date = &d
	}
	return rt.service.AutoAssign(in)
}

func (rt *Router) recordHeartbeat(req *Request) (any, error) {
	var in HeartbeatInput
	if err := req.decode(&in); err != nil {
		return nil, err
	}
	return rt.service.RecordHeartbeat(in)
}

// === Reports ===

func (rt *Router) dayReport(req *Request) (any, error) {
	return rt.service.DayReport(req.query("date"))
}

func (rt *Router) weekReport(req *Request) (any, error) {
	return rt.service.WeekReport()
}

func (rt *Router) monthReport(req *Request) (any, error) {
	return rt.service.MonthReport(req.query("month"))
}

func (rt *Router) rangeReport(req *Request) (any, error) {
	return rt.service.RangeReport(req.query("from"), req.query("to"))
}

func (rt *Router) appReport(req *Request) (any, error) {
	return rt.service.AppReport(req.query("name"))
}

func (rt *Router) brandReport(req *Request) (any, error) {
	return rt.service.BrandReport(req.query("date"))
}

func (rt *Router) unassignedReport(req *Request) (any, error) {
	return rt.service.UnassignedReport(req.query("date"))
}

func (rt *Router) timelineReport(req *Request) (any, error) {
	return rt.service.TimelineReport(req.query("date"))
}

func (rt *Router) todayReport(req *Request) (any, error) {
	return rt.service.Today()
}

// === Suggestions ===

func (rt *Router) listSuggestions(req *Request) (any, error) {
	return rt.service.ListSuggestions()
}

func (rt *Router) acceptSuggestion(req *Request) (any, error) {
	var in AcceptInput
	if err := req.decode(&in); err != nil {
		return nil, err
	}
	return rt.service.AcceptSuggestion(in)
}

func (rt *Router) dismissSuggestion(req *Request) (any, error) {
	var in DismissInput
	if err := req.decode(&in); err != nil {
		return nil, err
	}
	return nil, rt.service.DismissSuggestion(in)
}

// === Settings ===

func (rt *Router) listSettings(req *Request) (any, error) {
	return rt.service.Settings()
}

func (rt *Router) updateSetting(req *Request) (any, error) {
	var in SettingInput
	if err := req.decode(&in); err != nil {
		return nil, err
	}
	return rt.service.UpdateSetting(req.Vars["key"], in)
}
