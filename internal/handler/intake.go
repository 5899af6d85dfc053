package handler

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pathway100k/intake/internal/infrastructure/sinks"
	"github.com/pathway100k/intake/internal/model"
	"github.com/pathway100k/intake/internal/observability"
	"github.com/pathway100k/intake/internal/response"
	"github.com/pathway100k/intake/internal/web"
)

// IntakeHandler serves the application form and accepts submissions on the same route.
// It holds no mutable state of its own; the Recorder and IDGenerator are concurrency safe.
type IntakeHandler struct {
	Recorder           sinks.Recorder
	IDs                *model.IDGenerator
	Now                func() time.Time
	DefaultCountryCode string
	Logger             zerolog.Logger
	Metrics            *observability.Metrics
}

// NewIntakeHandler returns a handler recording through rec.
func NewIntakeHandler(rec sinks.Recorder, defaultCountryCode string, log zerolog.Logger, m *observability.Metrics) *IntakeHandler {
	if defaultCountryCode == "" {
		defaultCountryCode = model.DefaultCountryCode
	}
	return &IntakeHandler{
		Recorder:           rec,
		IDs:                model.NewIDGenerator(),
		Now:                time.Now,
		DefaultCountryCode: defaultCountryCode,
		Logger:             log.With().Str("component", "intake_handler").Logger(),
		Metrics:            m,
	}
}

// Handle dispatches on method: GET and HEAD serve the page, POST submits, anything else is 405.
func (h *IntakeHandler) Handle(c echo.Context) error {
	switch c.Request().Method {
	case http.MethodGet, http.MethodHead:
		return c.HTMLBlob(http.StatusOK, web.IndexHTML())
	case http.MethodPost:
		return h.Submit(c)
	default:
		return response.MethodNotAllowed(c)
	}
}

// Submit validates the posted application, records it and reports the assigned id.
func (h *IntakeHandler) Submit(c echo.Context) (err error) {
	reqID := c.Response().Header().Get(echo.HeaderXRequestID)
	log := h.Logger.With().Str("request_id", reqID).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("submission handler panicked")
			h.Metrics.ObserveSubmission(observability.OutcomeError)
			if c.Response().Committed {
				err = nil
				return
			}
			err = response.ServerError(c)
		}
	}()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		if isBodyTooLarge(err) {
			log.Info().Msg("submission body over limit")
			h.Metrics.ObserveSubmission(observability.OutcomeInvalid)
			return response.MissingFields(c)
		}
		return h.fail(c, log, fmt.Errorf("read body: %w", err))
	}

	req, err := model.ParseSubmissionRequest(body)
	if err != nil {
		log.Debug().Err(err).Msg("unparseable submission body")
	}
	if err := req.Validate(); err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			log.Info().Strs("missing", verr.Fields).Msg("submission rejected")
		}
		h.Metrics.ObserveSubmission(observability.OutcomeInvalid)
		return response.MissingFields(c)
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	receivedAt := now()
	rec := model.NewSubmissionRecord(req, h.IDs.Next(receivedAt), receivedAt, SourceIP(c.Request()), h.DefaultCountryCode)

	if err := h.Recorder.Record(c.Request().Context(), rec); err != nil {
		return h.fail(c, log.With().Str("application_id", rec.ID).Logger(), fmt.Errorf("record submission: %w", err))
	}

	h.Metrics.ObserveSubmission(observability.OutcomeAccepted)
	return response.Accepted(c, rec.ID)
}

func (h *IntakeHandler) fail(c echo.Context, log zerolog.Logger, err error) error {
	log.Error().Err(err).Msg("submission failed")
	h.Metrics.ObserveSubmission(observability.OutcomeError)
	return response.ServerError(c)
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.Is(err, echo.ErrStatusRequestEntityTooLarge) || errors.As(err, &maxErr)
}

// ErrorHandler keeps the intake contract on paths routed to Handle for errors
// raised before the handler runs: a method echo cannot route gets the 405
// body and a body over the limit gets the 400 body. Everything else goes to next.
func ErrorHandler(next echo.HTTPErrorHandler, paths ...string) echo.HTTPErrorHandler {
	intake := make(map[string]bool, len(paths))
	for _, p := range paths {
		intake[p] = true
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed || !intake[c.Request().URL.Path] {
			next(err, c)
			return
		}
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			next(err, c)
			return
		}
		var sendErr error
		switch he.Code {
		case http.StatusMethodNotAllowed:
			sendErr = response.MethodNotAllowed(c)
		case http.StatusRequestEntityTooLarge:
			sendErr = response.MissingFields(c)
		default:
			next(err, c)
			return
		}
		if sendErr != nil {
			c.Logger().Error(sendErr)
		}
	}
}

// SourceIP returns the best-effort client address: the first X-Forwarded-For entry,
// then X-Real-IP, then the host of the connection address, else "unknown".
// The headers are client controlled and not trusted for anything but the record.
func SourceIP(r *http.Request) string {
	if xff := r.Header.Get(echo.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get(echo.HeaderXRealIP)); ip != "" {
		return ip
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}
	return model.UnknownSourceIP
}
