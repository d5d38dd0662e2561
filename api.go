package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/CodedInternet/gateway/onboard"
	"github.com/CodedInternet/gateway/onboard/history"
	"github.com/CodedInternet/gateway/onboard/state"
)

const RECENT_CALIBRATIONS = 20

type CalibrationStatus struct {
	Phase     string  `json:"phase"`
	Group     int     `json:"group"`
	Ticks     int     `json:"ticks"`
	Converged int     `json:"converged"`
	Joints    int     `json:"joints"`
	ErrorNorm float64 `json:"error_norm"`
}

type MotionLogStatus struct {
	Path    string `json:"path"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Queued  int    `json:"queued"`
}

type StatusResponse struct {
	State       string            `json:"state"`
	Uptime      float64           `json:"uptime"`
	Store       map[string]any    `json:"store"`
	Pots        []uint16          `json:"pots,omitempty"`
	PotSeq      uint64            `json:"pot_seq"`
	PotUpdated  *time.Time        `json:"pot_updated,omitempty"`
	Offsets     []float64         `json:"offsets"`
	Calibration CalibrationStatus `json:"calibration"`
	LastZero    *history.Run      `json:"last_zero_calibration,omitempty"`
	MotionLog   MotionLogStatus   `json:"motion_log"`
}

func (s *StatusResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func NewStatusResponse(gw *onboard.Gateway) *StatusResponse {
	p := gw.Calibration()
	resp := &StatusResponse{
		State:   gw.Controls().State().String(),
		Uptime:  gw.Uptime().Seconds(),
		Store:   gw.Store().Snapshot(),
		PotSeq:  gw.Pots().Seq(),
		Offsets: gw.Motors().Offsets(),
		Calibration: CalibrationStatus{
			Phase:     p.Phase.String(),
			Group:     p.Group,
			Ticks:     p.Ticks,
			Converged: p.Converged,
			Joints:    p.Joints,
			ErrorNorm: p.ErrorNorm,
		},
	}
	if m, ok := gw.Pots().Back(); ok {
		at := gw.Pots().Updated()
		resp.Pots = m.Flat()
		resp.PotUpdated = &at
	}
	if h := gw.History(); h != nil {
		if run, ok, err := h.Latest(); err == nil && ok {
			resp.LastZero = &run
		}
	}
	if l := gw.MotionLog(); l != nil {
		resp.MotionLog = MotionLogStatus{Path: l.Path(), Written: l.Written(), Dropped: l.Dropped(), Queued: l.Pending()}
	}
	return resp
}

type CommandRequest struct {
	Code *int `json:"code"`
}

func (c *CommandRequest) Bind(r *http.Request) error {
	if c.Code == nil {
		return errors.New("missing code")
	}
	return nil
}

type InjectRequest struct {
	Line string `json:"line"`
}

func (i *InjectRequest) Bind(r *http.Request) error {
	if i.Line == "" {
		return errors.New("missing line")
	}
	return nil
}

type ErrResponse struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	ErrorText      string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
	}
}

func ErrUnavailable(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusServiceUnavailable,
		StatusText:     "Unavailable.",
		ErrorText:      err.Error(),
	}
}

func NewRouter(gw *onboard.Gateway, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
			render.Render(w, r, NewStatusResponse(gw))
		})

		r.Post("/cmd", func(w http.ResponseWriter, r *http.Request) {
			req := new(CommandRequest)
			if err := render.Bind(r, req); err != nil {
				render.Render(w, r, ErrInvalidRequest(err))
				return
			}
			cmd := state.Command(*req.Code)
			gw.Controls().PostCommand(cmd)
			log.Info().Stringer("cmd", cmd).Msg("command posted over http")

			render.Status(r, http.StatusAccepted)
			render.Render(w, r, NewStatusResponse(gw))
		})

		r.Post("/store", func(w http.ResponseWriter, r *http.Request) {
			req := new(InjectRequest)
			if err := render.Bind(r, req); err != nil {
				render.Render(w, r, ErrInvalidRequest(err))
				return
			}
			if _, err := state.Inject(gw.Store(), req.Line); err != nil {
				render.Render(w, r, ErrInvalidRequest(err))
				return
			}
			render.Render(w, r, NewStatusResponse(gw))
		})

		r.Get("/calibrations", func(w http.ResponseWriter, r *http.Request) {
			if gw.History() == nil {
				render.Render(w, r, ErrUnavailable(errors.New("calibration history disabled")))
				return
			}
			runs, err := gw.History().Recent(RECENT_CALIBRATIONS)
			if err != nil {
				render.Render(w, r, ErrUnavailable(err))
				return
			}
			if runs == nil {
				runs = []history.Run{}
			}
			render.JSON(w, r, runs)
		})
	})

	r.Route("/ws", func(r chi.Router) {
		r.Get("/state", StateSocketHandler(gw, log, STATE_PUSH_INTERVAL))
	})

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("took", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
