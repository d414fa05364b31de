package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/bot"
	"github.com/rustyeddy/papertrader/feed"
)

type StateResponse struct {
	broker.Account
	Equity    float64  `json:"equity"`
	Running   bool     `json:"running"`
	Watchlist []string `json:"watchlist"`
}

type KlinesRequest struct {
	Symbol   string `query:"symbol" validate:"required,alphanum"`
	Interval string `query:"interval" default:"1m" validate:"oneof=1m 5m 15m 1h 4h 1d 1w"`
	Limit    int    `query:"limit" default:"300" validate:"gte=1,lte=1000"`
	// EndTime is unix seconds; zero means the latest bars.
	EndTime int64 `query:"end_time" validate:"gte=0"`
}

type SignalRequest struct {
	Symbol   string `param:"symbol" validate:"required,alphanum"`
	Interval string `query:"interval" default:"1m" validate:"oneof=1m 5m 15m 1h 4h 1d 1w"`
	Limit    int    `query:"limit" default:"300" validate:"gte=1,lte=1000"`
}

func (s *Server) state() StateResponse {
	return StateResponse{
		Account:   s.bot.State(),
		Equity:    s.bot.Engine().Equity(),
		Running:   s.bot.Running(),
		Watchlist: s.bot.Config().Watchlist,
	}
}

func (s *Server) State(c echo.Context) error {
	return successResponse(c, s.state())
}

func (s *Server) History(c echo.Context) error {
	return successResponse(c, s.bot.History())
}

func (s *Server) Start(c echo.Context) error {
	if err := s.bot.Start(c.Request().Context()); err != nil {
		s.log.Error().Err(err).Msg("start")
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return successResponse(c, s.state())
}

// Stop halts scanning and force-closes open positions.
func (s *Server) Stop(c echo.Context) error {
	closed := s.bot.Stop(c.Request().Context())
	return successResponse(c, map[string]any{
		"state":  s.state(),
		"closed": closed,
	})
}

func (s *Server) Toggle(c echo.Context) error {
	if _, err := s.bot.Toggle(c.Request().Context()); err != nil {
		s.log.Error().Err(err).Msg("toggle")
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return successResponse(c, s.state())
}

func (s *Server) Reset(c echo.Context) error {
	s.bot.Reset(c.Request().Context())
	return successResponse(c, s.state())
}

// Scan runs one tick now. It answers 409 when the bot is stopped or a
// tick is already running.
func (s *Server) Scan(c echo.Context) error {
	report, err := s.bot.ScanOnce(c.Request().Context())
	switch {
	case errors.Is(err, bot.ErrInactive), errors.Is(err, bot.ErrTickInProgress):
		return errorResponse(c, http.StatusConflict, err.Error())
	case err != nil:
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return successResponse(c, report)
}

func (s *Server) Klines(c echo.Context) error {
	req := &KlinesRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}

	var end *time.Time
	if req.EndTime > 0 {
		t := time.Unix(req.EndTime, 0).UTC()
		end = &t
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.FeedTimeout)
	defer cancel()

	candles, err := s.feed.FetchHistory(ctx, strings.ToUpper(req.Symbol), req.Interval, req.Limit, end)
	if err != nil {
		return s.feedError(c, req.Symbol, err)
	}
	return successResponse(c, candles)
}

// Signal runs the strategy once over fresh candles without touching the
// account.
func (s *Server) Signal(c echo.Context) error {
	req := &SignalRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.FeedTimeout)
	defer cancel()
	candles, err := s.feed.FetchHistory(ctx, symbol, req.Interval, req.Limit, nil)
	if err != nil {
		return s.feedError(c, symbol, err)
	}
	return successResponse(c, s.gen.Generate(c.Request().Context(), symbol, candles))
}

func (s *Server) feedError(c echo.Context, symbol string, err error) error {
	s.log.Warn().Err(err).Str("symbol", symbol).Msg("feed request failed")
	var se *feed.StatusError
	switch {
	case errors.As(err, &se) && se.RateLimited():
		return errorResponse(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return errorResponse(c, http.StatusGatewayTimeout, err.Error())
	}
	return errorResponse(c, http.StatusBadGateway, err.Error())
}
