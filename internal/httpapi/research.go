package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Kocoro-lab/Shannon/go/research/internal/config"
	"github.com/Kocoro-lab/Shannon/go/research/internal/conversation"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/grok"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/tavily"
	"github.com/Kocoro-lab/Shannon/go/research/internal/reflection"
	"github.com/Kocoro-lab/Shannon/go/research/internal/search"
	"go.uber.org/zap"
)

// Researcher is the set of research operations served over HTTP
type Researcher interface {
	Search(ctx context.Context, query, platform, model string, extraSources int) (search.Response, error)
	Followup(ctx context.Context, query, conversationID string, extraSources int) (search.Response, error)
	Reflect(ctx context.Context, req search.ReflectRequest) (*reflection.Result, error)
	GetSources(ctx context.Context, sessionID string) (search.SourcesResponse, error)
	DescribeURL(ctx context.Context, url string) (grok.Description, error)
	RankSources(ctx context.Context, sessionID, query string) (search.SourcesResponse, error)
	Fetch(ctx context.Context, url string) (search.FetchResult, error)
	Map(ctx context.Context, req search.MapRequest) (tavily.MapResult, error)
	ConfigInfo(ctx context.Context) search.ConfigInfo
	SwitchModel(ctx context.Context, model string) (config.ModelChange, error)
	ConversationStats() conversation.Stats
}

// Reflect defaults applied when the request omits a field
const (
	defaultMaxReflections = 1
	defaultExtraSources   = 3
)

// ResearchHandler serves the /v1 research API.
// Endpoints:
//
//	POST /v1/search
//	POST /v1/search/followup
//	POST /v1/search/reflect
//	GET  /v1/sources?session_id=
//	POST /v1/sources/describe
//	POST /v1/sources/rank
//	POST /v1/fetch
//	POST /v1/map
//	GET  /v1/config
//	POST /v1/config/model
//	GET  /v1/conversations/stats
type ResearchHandler struct {
	svc    Researcher
	logger *zap.Logger
}

// NewResearchHandler constructs a new handler.
func NewResearchHandler(svc Researcher, logger *zap.Logger) *ResearchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers research endpoints on the given mux.
func (h *ResearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/search", h.post(h.handleSearch))
	mux.HandleFunc("/v1/search/followup", h.post(h.handleFollowup))
	mux.HandleFunc("/v1/search/reflect", h.post(h.handleReflect))
	mux.HandleFunc("/v1/sources", h.get(h.handleGetSources))
	mux.HandleFunc("/v1/sources/describe", h.post(h.handleDescribe))
	mux.HandleFunc("/v1/sources/rank", h.post(h.handleRank))
	mux.HandleFunc("/v1/fetch", h.post(h.handleFetch))
	mux.HandleFunc("/v1/map", h.post(h.handleMap))
	mux.HandleFunc("/v1/config", h.get(h.handleConfig))
	mux.HandleFunc("/v1/config/model", h.post(h.handleSwitchModel))
	mux.HandleFunc("/v1/conversations/stats", h.get(h.handleStats))
}

func (h *ResearchHandler) post(next http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodPost, next)
}

func (h *ResearchHandler) get(next http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodGet, next)
}

func method(m string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			w.Header().Set("Allow", m)
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed", Message: "method not allowed"})
			return
		}
		next(w, r)
	}
}

type searchRequest struct {
	Query        string `json:"query"`
	Platform     string `json:"platform"`
	Model        string `json:"model"`
	ExtraSources int    `json:"extra_sources"`
}

func (h *ResearchHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Search(r.Context(), req.Query, req.Platform, req.Model, req.ExtraSources)
	if err != nil {
		h.sendError(w, err, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type followupRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
	ExtraSources   int    `json:"extra_sources"`
}

func (h *ResearchHandler) handleFollowup(w http.ResponseWriter, r *http.Request) {
	var req followupRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ConversationID == "" {
		h.sendError(w, search.NewError(search.CodeInvalidRequest, "conversation_id is required"), nil)
		return
	}
	resp, err := h.svc.Followup(r.Context(), req.Query, req.ConversationID, req.ExtraSources)
	if err != nil {
		h.sendError(w, err, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type reflectRequest struct {
	Query          string `json:"query"`
	Context        string `json:"context"`
	MaxReflections *int   `json:"max_reflections"`
	CrossValidate  bool   `json:"cross_validate"`
	ExtraSources   *int   `json:"extra_sources"`
}

func (h *ResearchHandler) handleReflect(w http.ResponseWriter, r *http.Request) {
	var req reflectRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Reflect(r.Context(), search.ReflectRequest{
		Query:          req.Query,
		Context:        req.Context,
		MaxReflections: intOr(req.MaxReflections, defaultMaxReflections),
		CrossValidate:  req.CrossValidate,
		ExtraSources:   intOr(req.ExtraSources, defaultExtraSources),
	})
	if err != nil {
		h.sendError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ResearchHandler) handleGetSources(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		h.sendError(w, search.NewError(search.CodeInvalidRequest, "session_id is required"), nil)
		return
	}
	resp, err := h.svc.GetSources(r.Context(), sessionID)
	if err != nil {
		h.sendError(w, err, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type urlRequest struct {
	URL string `json:"url"`
}

func (h *ResearchHandler) handleDescribe(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.svc.DescribeURL(r.Context(), req.URL)
	if err != nil {
		h.sendError(w, err, map[string]string{"url": req.URL})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type rankRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

func (h *ResearchHandler) handleRank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.RankSources(r.Context(), req.SessionID, req.Query)
	if err != nil {
		h.sendError(w, err, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ResearchHandler) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Fetch(r.Context(), req.URL)
	if err != nil {
		h.sendError(w, err, map[string]string{"url": req.URL})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type mapRequest struct {
	URL          string `json:"url"`
	Instructions string `json:"instructions"`
	MaxDepth     *int   `json:"max_depth"`
	MaxBreadth   *int   `json:"max_breadth"`
	Limit        *int   `json:"limit"`
	Timeout      *int   `json:"timeout"`
}

func (h *ResearchHandler) handleMap(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	if !h.decode(w, r, &req) {
		return
	}
	m := search.DefaultMapRequest(req.URL)
	m.Instructions = req.Instructions
	m.MaxDepth = intOr(req.MaxDepth, m.MaxDepth)
	m.MaxBreadth = intOr(req.MaxBreadth, m.MaxBreadth)
	m.Limit = intOr(req.Limit, m.Limit)
	m.Timeout = intOr(req.Timeout, m.Timeout)

	res, err := h.svc.Map(r.Context(), m)
	if err != nil {
		h.sendError(w, err, map[string]string{"url": req.URL})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ResearchHandler) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ConfigInfo(r.Context()))
}

type switchModelRequest struct {
	Model string `json:"model"`
}

func (h *ResearchHandler) handleSwitchModel(w http.ResponseWriter, r *http.Request) {
	var req switchModelRequest
	if !h.decode(w, r, &req) {
		return
	}
	change, err := h.svc.SwitchModel(r.Context(), req.Model)
	if err != nil {
		h.sendError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "success",
		"previous_model": change.Previous,
		"current_model":  change.Current,
		"message":        "model switched from " + strconv.Quote(change.Previous) + " to " + strconv.Quote(change.Current),
		"config_file":    change.ConfigFile,
	})
}

func (h *ResearchHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ConversationStats())
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
