package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/exp/slices"

	"github.com/dreamware/knotdc/internal/crystal"
	"github.com/dreamware/knotdc/internal/protocol"
)

// Alert thresholds for /analisis.
const (
	OccupancyAlert = 90.0  // percent
	EnergyAlert    = 900.0 // total crystal energy
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "knotdc",
	Subsystem: "dashboard",
	Name:      "requests_total",
	Help:      "Dashboard HTTP requests by route and status code",
}, []string{"route", "code"})

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "knotdc",
	Subsystem: "dashboard",
	Name:      "request_duration_seconds",
	Help:      "Dashboard HTTP request latency in seconds",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})

func (d *Dashboard) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// fail maps a backend error onto an HTTP status.
func (d *Dashboard) fail(c *gin.Context, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, protocol.ErrCrystalNotFound):
		code = http.StatusNotFound
	case errors.Is(err, protocol.ErrTransientIO):
		code = http.StatusServiceUnavailable
	}
	d.logger.Warn("backend request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(code, gin.H{"error": err.Error()})
}

func (d *Dashboard) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (d *Dashboard) index(c *gin.Context) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (d *Dashboard) status(c *gin.Context) {
	st, err := d.backend.Status(c.Request.Context())
	if err != nil {
		d.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Analysis is the /analisis payload.
type Analysis struct {
	Crystals map[string]crystal.State `json:"cristales"`
	Alerts   []string                 `json:"alertas"`
}

// Analyze flags crystals whose occupancy or energy exceed the alert
// thresholds, in crystal name order.
func Analyze(st protocol.StatusResponse) Analysis {
	a := Analysis{Crystals: st.Details, Alerts: []string{}}
	if a.Crystals == nil {
		a.Crystals = map[string]crystal.State{}
	}

	names := make([]string, 0, len(st.Details))
	for name := range st.Details {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		cs := st.Details[name]
		if occ := cs.OccupancyPercent(); occ > OccupancyAlert {
			a.Alerts = append(a.Alerts, fmt.Sprintf("Cristal '%s' con ocupación crítica: %s%%", name, decimal(occ)))
		}
		if cs.Energy > EnergyAlert {
			a.Alerts = append(a.Alerts, fmt.Sprintf("Cristal '%s' con energía elevada: %s", name, decimal(cs.Energy)))
		}
	}
	return a
}

// decimal prints f in shortest form but always with a fractional part.
func decimal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}

func (d *Dashboard) analysis(c *gin.Context) {
	st, err := d.backend.Status(c.Request.Context())
	if err != nil {
		d.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Analyze(st))
}

func (d *Dashboard) crystals(c *gin.Context) {
	names, err := d.backend.List(c.Request.Context())
	if err != nil {
		d.fail(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"cristales": names})
}

func (d *Dashboard) crystal(c *gin.Context) {
	st, err := d.backend.Info(c.Request.Context(), c.Param("name"))
	if err != nil {
		d.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (d *Dashboard) aiStatus(c *gin.Context) {
	m, err := d.backend.AIStatus(c.Request.Context())
	if err != nil {
		d.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (d *Dashboard) aiReport(c *gin.Context) {
	report, err := d.backend.AIReport(c.Request.Context())
	if err != nil {
		d.fail(c, err)
		return
	}
	c.String(http.StatusOK, report)
}

func (d *Dashboard) aiOptimize(c *gin.Context) {
	res, err := d.backend.AIOptimize(c.Request.Context())
	if err != nil {
		d.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
