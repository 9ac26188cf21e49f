package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/cdp-messenger/internal/experiment"
	"github.com/ignite/cdp-messenger/internal/forecast"
	"github.com/ignite/cdp-messenger/internal/messaging"
	"github.com/ignite/cdp-messenger/internal/pkg/httputil"
	"github.com/ignite/cdp-messenger/internal/service/campaign"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	svc *campaign.Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc *campaign.Service) *Handlers {
	return &Handlers{svc: svc}
}

type analyzeRequest struct {
	Query string `json:"query"`
}

// Analyze turns a question into a targeting plan.
//
//	POST /api/analyze
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !httputil.Decode(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		httputil.BadRequest(w, r, "query is required")
		return
	}
	res, err := h.svc.Analyze(r.Context(), req.Query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.OK(w, res)
}

// GenerateMessages composes control and variant messages.
//
//	POST /api/messages
func (h *Handlers) GenerateMessages(w http.ResponseWriter, r *http.Request) {
	var req campaign.ComposeInput
	if !httputil.Decode(w, r, &req, false) {
		return
	}
	if req.Analysis == nil && strings.TrimSpace(req.Query) == "" {
		writeServiceError(w, r, campaign.ErrMissingQuery)
		return
	}
	httputil.OK(w, h.svc.Compose(req))
}

type experimentRequest struct {
	Messages []messaging.Message `json:"messages"`
	Params   *experiment.Params  `json:"params"`
}

// ConfigureExperiment partitions messages into arms and sizes the test.
// Params fields left out of the body keep their configured defaults.
//
//	POST /api/experiments
func (h *Handlers) ConfigureExperiment(w http.ResponseWriter, r *http.Request) {
	defaults := h.svc.DefaultParams()
	req := experimentRequest{Params: &defaults}
	if !httputil.Decode(w, r, &req, false) {
		return
	}
	desc, err := h.svc.Configure(req.Messages, req.Params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.OK(w, desc)
}

type forecastRequest struct {
	Messages []messaging.Message `json:"messages"`
}

// Forecast predicts message performance.
//
//	POST /api/forecasts
func (h *Handlers) Forecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	if !httputil.Decode(w, r, &req, false) {
		return
	}
	fc, err := h.svc.Forecast(req.Messages)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.OK(w, fc)
}

// CreateCampaign runs the whole pipeline and optionally dispatches.
//
//	POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	defaults := h.svc.DefaultParams()
	req := campaign.Request{Params: &defaults}
	if !httputil.Decode(w, r, &req, false) {
		return
	}
	res, err := h.svc.Generate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.Created(w, res)
}

type dispatchRequest struct {
	Messages   []messaging.Message    `json:"messages"`
	Experiment *experiment.Descriptor `json:"experiment"`
}

// DispatchCampaign hands an already configured campaign to the delivery
// service. Delivery failures are reported in the result body with 200.
//
//	POST /api/campaigns/dispatch
func (h *Handlers) DispatchCampaign(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if !httputil.Decode(w, r, &req, false) {
		return
	}
	if req.Experiment == nil {
		httputil.BadRequest(w, r, "experiment is required")
		return
	}
	if len(req.Messages) == 0 {
		httputil.BadRequest(w, r, "messages are required")
		return
	}
	res := h.svc.Dispatch(r.Context(), req.Messages, req.Experiment)
	httputil.OK(w, res)
}

// CatalogPersona summarizes one persona of a category.
type CatalogPersona struct {
	Name      messaging.Persona `json:"name"`
	Channel   messaging.Channel `json:"channel"`
	Templates []string          `json:"templates"`
}

// CatalogCategory summarizes one catalog category.
type CatalogCategory struct {
	Name           messaging.Category `json:"name"`
	Tags           []string           `json:"tags"`
	Personas       []CatalogPersona   `json:"personas"`
	DefaultChannel messaging.Channel  `json:"default_channel"`
	Timing         messaging.Timing   `json:"timing"`
}

// CatalogSummary is the GET /api/catalog response.
type CatalogSummary struct {
	DefaultChannel messaging.Channel     `json:"default_channel"`
	Categories     []CatalogCategory     `json:"categories"`
	Variations     []messaging.Variation `json:"variations"`
}

// GetCatalog describes the loaded catalog.
//
//	GET /api/catalog
func (h *Handlers) GetCatalog(w http.ResponseWriter, r *http.Request) {
	cat := h.svc.Catalog()
	out := CatalogSummary{
		DefaultChannel: cat.DefaultChannel(),
		Variations:     messaging.VariantRules(),
	}
	for _, entry := range cat.Categories() {
		cc := CatalogCategory{
			Name:           entry.Name(),
			Tags:           entry.Tags(),
			DefaultChannel: cat.CategoryChannel(entry.Name()),
			Timing:         cat.TimingFor(entry.Name()),
		}
		for _, pe := range entry.Personas() {
			cp := CatalogPersona{
				Name:    pe.Name,
				Channel: cat.ChannelFor(entry.Name(), pe.Name),
			}
			for _, tpl := range pe.Templates() {
				cp.Templates = append(cp.Templates, tpl.Source())
			}
			cc.Personas = append(cc.Personas, cp)
		}
		out.Categories = append(out.Categories, cc)
	}
	httputil.OK(w, out)
}

// writeServiceError maps input errors to 400 and everything else to 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, experiment.ErrInvalidParams),
		errors.Is(err, forecast.ErrNoMessages),
		errors.Is(err, forecast.ErrUnknownChannel),
		errors.Is(err, campaign.ErrMissingQuery):
		httputil.BadRequest(w, r, err.Error())
	default:
		httputil.InternalError(w, r, err)
	}
}
