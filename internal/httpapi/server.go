package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"modelserve/internal/form"
	"modelserve/internal/predictor"
	"modelserve/pkg/types"
)

type handlers struct {
	svc   predictor.Predictor
	opts  Options
	page  string
	files http.Handler
}

// NewMux builds the HTTP front door for svc.
func NewMux(svc predictor.Predictor, opts Options) http.Handler {
	opts = opts.withDefaults()
	h := &handlers{svc: svc, opts: opts}
	if opts.StaticDir != "" {
		h.files = http.FileServer(http.Dir(opts.StaticDir))
	} else {
		if len(opts.FieldNames) == 0 {
			opts.Logger.Warn().Msg("neither static dir nor field names given; the demo page will have no inputs")
		}
		h.page = form.Render(opts.Title, opts.FieldNames)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"*"},
		OptionsPassthrough: true,
		MaxAge:             300,
	}))

	r.Get("/", h.index)
	r.Post("/predict", h.predict)
	r.Options("/predict", preflight)
	r.Post("/predict_batch", h.predictBatch)
	r.Options("/predict_batch", preflight)
	r.Get("/*", h.static)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	if h.opts.StaticDir != "" {
		http.ServeFile(w, r, filepath.Join(h.opts.StaticDir, "index.html"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, h.page)
}

func (h *handlers) static(w http.ResponseWriter, r *http.Request) {
	if h.opts.StaticDir == "" {
		writeServerError(w, NewServerError("static_dir not specified", http.StatusNotFound))
		return
	}
	name := "/" + chi.URLParam(r, "*")
	f, err := http.Dir(h.opts.StaticDir).Open(name)
	if err != nil {
		writeServerError(w, NewServerError("file not found: "+name, http.StatusNotFound))
		return
	}
	fi, err := f.Stat()
	_ = f.Close()
	if err != nil || fi.IsDir() {
		writeServerError(w, NewServerError("file not found: "+name, http.StatusNotFound))
		return
	}
	h.files.ServeHTTP(w, r)
}

func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	var input types.JSONDict
	if se := h.decodeJSON(w, r, &input); se != nil {
		writeServerError(w, se)
		return
	}
	if input == nil {
		writeJSONError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	log := requestLogger(h.opts.Logger, r)
	start := time.Now()
	ctx, cancel := predictionContext(h.opts.BaseContext, r.Context())
	defer cancel()
	out, err := h.svc.PredictJSON(ctx, input)
	if err != nil {
		h.predictionFailed(w, r, err)
		return
	}
	if h.opts.Sanitizer != nil {
		out = h.opts.Sanitizer(out)
	}
	log.Info().
		Interface("prediction", types.PredictionLog{Inputs: input, Outputs: out}).
		Dur("dur", time.Since(start)).
		Msg("prediction")
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) predictBatch(w http.ResponseWriter, r *http.Request) {
	var inputs []types.JSONDict
	if se := h.decodeJSON(w, r, &inputs); se != nil {
		writeServerError(w, se)
		return
	}
	if inputs == nil {
		writeJSONError(w, http.StatusBadRequest, "request body must be a JSON array of objects")
		return
	}
	for _, in := range inputs {
		if in == nil {
			writeJSONError(w, http.StatusBadRequest, "batch elements must be JSON objects")
			return
		}
	}
	log := requestLogger(h.opts.Logger, r)
	start := time.Now()
	ctx, cancel := predictionContext(h.opts.BaseContext, r.Context())
	defer cancel()
	out, err := h.svc.PredictBatchJSON(ctx, inputs)
	if err != nil {
		h.predictionFailed(w, r, err)
		return
	}
	if h.opts.Sanitizer != nil {
		for i := range out {
			out[i] = h.opts.Sanitizer(out[i])
		}
	}
	log.Info().Int("instances", len(inputs)).Dur("dur", time.Since(start)).Msg("batch prediction")
	log.Debug().Interface("inputs", inputs).Interface("outputs", out).Msg("batch prediction detail")
	writeJSON(w, http.StatusOK, out)
}

// decodeJSON reads a size-limited JSON body into v, keeping numbers as json.Number.
func (h *handlers) decodeJSON(w http.ResponseWriter, r *http.Request, v any) *ServerError {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		return NewServerError("Content-Type must be application/json", http.StatusUnsupportedMediaType)
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return NewServerError("request body too large", http.StatusRequestEntityTooLarge)
		}
		return NewServerError("invalid JSON body", http.StatusBadRequest)
	}
	return nil
}

// predictionFailed maps a predictor error to a JSON error response. A client
// that went away gets nothing; a prediction stopped by server shutdown gets 503.
func (h *handlers) predictionFailed(w http.ResponseWriter, r *http.Request, err error) {
	log := requestLogger(h.opts.Logger, r)
	if r.Context().Err() != nil {
		log.Debug().Err(err).Msg("client gone, prediction abandoned")
		return
	}
	if h.opts.BaseContext.Err() != nil {
		log.Warn().Err(err).Msg("prediction canceled by shutdown")
		writeJSONError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	var he HTTPError
	if errors.As(err, &he) {
		log.Warn().Err(err).Int("status", he.StatusCode()).Msg("prediction rejected")
		writeJSONError(w, he.StatusCode(), err.Error())
		return
	}
	log.Error().Err(err).Msg("prediction failed")
	writeJSONError(w, http.StatusInternalServerError, err.Error())
}
