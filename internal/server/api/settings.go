package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/repcounter/internal/rep"
	"github.com/ayusman/repcounter/internal/store"
)

// SettingsHandler reads and writes the saved counter configuration. Saved
// values take effect when the session is next restarted.
type SettingsHandler struct {
	store    *store.Store
	defaults rep.Config
}

// NewSettingsHandler creates a handler; defaults are reported until something is saved.
func NewSettingsHandler(s *store.Store, defaults rep.Config) *SettingsHandler {
	return &SettingsHandler{store: s, defaults: defaults}
}

// Routes returns the router for /api/settings.
func (h *SettingsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/counter", h.getCounter)
	r.Put("/counter", h.putCounter)
	return r
}

type counterSettings struct {
	DownThreshold float64 `json:"down_threshold"`
	UpThreshold   float64 `json:"up_threshold"`
	MinConfidence float64 `json:"min_confidence"`
	Arm           string  `json:"arm"`
}

func toSettings(cfg rep.Config) counterSettings {
	return counterSettings{
		DownThreshold: cfg.DownThreshold,
		UpThreshold:   cfg.UpThreshold,
		MinConfidence: cfg.MinConfidence,
		Arm:           cfg.Arm.Side(),
	}
}

func (c counterSettings) config() (rep.Config, error) {
	arm, err := rep.ArmBySide(c.Arm)
	if err != nil {
		return rep.Config{}, err
	}
	cfg := rep.Config{
		DownThreshold: c.DownThreshold,
		UpThreshold:   c.UpThreshold,
		MinConfidence: c.MinConfidence,
		Arm:           arm,
	}
	return cfg, cfg.Validate()
}

func (h *SettingsHandler) current() (rep.Config, error) {
	return h.store.Settings().LoadCounter(h.defaults)
}

// getCounter handles GET /api/settings/counter.
func (h *SettingsHandler) getCounter(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.current()
	if err != nil {
		logrus.WithError(err).Warn("saved counter settings are unusable")
	}
	writeJSON(w, http.StatusOK, toSettings(cfg))
}

// putCounter handles PUT /api/settings/counter. Omitted fields keep their
// current value.
func (h *SettingsHandler) putCounter(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.current()
	if err != nil {
		logrus.WithError(err).Warn("saved counter settings are unusable")
	}
	req := toSettings(cfg)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	next, err := req.config()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Settings().SaveCounter(next); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	logrus.WithFields(logrus.Fields{
		"down": next.DownThreshold,
		"up":   next.UpThreshold,
		"arm":  req.Arm,
	}).Info("counter settings saved")
	writeJSON(w, http.StatusOK, toSettings(next))
}
