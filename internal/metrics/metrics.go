package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BetsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casino_bets_settled_total",
			Help: "Settled bets by game mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	Wagered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casino_wagered_cents_total",
			Help: "Total amount wagered in cents",
		},
		[]string{"mode"},
	)

	PaidOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casino_paid_out_cents_total",
			Help: "Total amount paid out in cents",
		},
		[]string{"mode"},
	)

	CrashRounds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "casino_crash_rounds_total",
			Help: "Completed crash rounds",
		},
	)

	CrashPoints = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "casino_crash_point",
			Help:    "Crash points of completed rounds",
			Buckets: []float64{1.01, 1.5, 2, 3, 5, 10, 20, 50, 100, 500, 1000},
		},
	)

	ActiveCrashBets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "casino_crash_active_bets",
			Help: "Bets riding the current crash round",
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		BetsSettled,
		Wagered,
		PaidOut,
		CrashRounds,
		CrashPoints,
		ActiveCrashBets,
		HTTPRequests,
	)
}

func Outcome(isWin bool) string {
	if isWin {
		return "win"
	}
	return "loss"
}

// Middleware counts requests by matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
