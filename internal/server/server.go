package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/KaramelBytes/wellrisk-cli/internal/analysis"
	"github.com/KaramelBytes/wellrisk-cli/internal/dataset"
	"github.com/KaramelBytes/wellrisk-cli/internal/report"
	"github.com/KaramelBytes/wellrisk-cli/internal/risk"
)

// DefaultMaxBodyBytes caps uploads when Options.MaxBodyBytes is 0.
const DefaultMaxBodyBytes = 32 << 20

// Options configures the HTTP surface.
type Options struct {
	Pipeline risk.Options
	Dataset  dataset.Options
	Summary  analysis.Options
	// MaxBodyBytes limits request bodies; 0 means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// Quiet disables per-request logging.
	Quiet bool
}

// Server runs one independent pipeline per request. It holds no batch or
// model state between requests.
type Server struct {
	opt      Options
	pipeline *risk.Pipeline
	engine   *gin.Engine
}

// New validates the pipeline options and builds the router.
func New(opt Options) (*Server, error) {
	p, err := risk.NewPipeline(opt.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if opt.MaxBodyBytes <= 0 {
		opt.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{opt: opt, pipeline: p}

	r := gin.New()
	r.Use(gin.Recovery())
	if !opt.Quiet {
		r.Use(gin.Logger())
	}
	r.Use(bodyLimit(opt.MaxBodyBytes))
	r.GET("/healthz", s.health)
	v1 := r.Group("/v1")
	{
		v1.POST("/analyze", s.analyze)
	}
	s.engine = r
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run listens on addr until the server fails.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "request body too large",
				"max_bytes": n,
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// recordView is the JSON shape of one annotated employee.
type recordView struct {
	EmployeeID    string             `json:"employee_id"`
	HeartRate     float64            `json:"heart_rate"`
	BloodPressure float64            `json:"blood_pressure"`
	FatigueScore  float64            `json:"fatigue_score"`
	JobRole       string             `json:"job_role,omitempty"`
	Scaled        map[string]float64 `json:"scaled"`
	AnomalyScore  float64            `json:"anomaly_score"`
	IsAnomaly     bool               `json:"is_anomaly"`
	RiskGroup     int                `json:"risk_group"`
	RiskTier      string             `json:"risk_tier"`
	Intervention  string             `json:"intervention"`
}

func (s *Server) analyze(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "json"))
	switch format {
	case "json", "csv", "png":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json, csv or png"})
		return
	}
	name, data, err := readUpload(c)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large", "max_bytes": mbe.Limit})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw, err := dataset.ParseBytes(name, data, s.opt.Dataset)
	if err != nil {
		c.JSON(statusFor(err, http.StatusBadRequest), gin.H{"error": err.Error()})
		return
	}
	out, err := s.pipeline.Run(c.Request.Context(), raw)
	if err != nil {
		c.JSON(statusFor(err, http.StatusInternalServerError), gin.H{"error": err.Error()})
		return
	}
	for _, w := range out.Warnings {
		c.Writer.Header().Add("X-Wellrisk-Warning", w)
	}
	c.Header("X-Wellrisk-Run-Id", out.RunID)

	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := dataset.Write(&buf, out); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	case "png":
		counts, err := report.TierCounts(out)
		if err != nil {
			c.JSON(statusFor(err, http.StatusInternalServerError), gin.H{"error": err.Error()})
			return
		}
		png, err := report.RenderRiskChart(counts, report.DefaultChartOptions())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	default:
		sum, err := analysis.Summarize(out, s.opt.Summary)
		if err != nil {
			c.JSON(statusFor(err, http.StatusInternalServerError), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id":   out.RunID,
			"name":     out.Name,
			"records":  views(out),
			"summary":  sum,
			"warnings": out.Warnings,
		})
	}
}

// readUpload takes the multipart "file" field when present, otherwise the
// raw body. The ?name= query parameter names a raw body; it defaults to a CSV.
func readUpload(c *gin.Context) (string, []byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("file required: %w", err)
		}
		f, err := fh.Open()
		if err != nil {
			return "", nil, fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", nil, fmt.Errorf("read upload: %w", err)
		}
		return fh.Filename, data, nil
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", nil, errors.New("empty request body")
	}
	return c.DefaultQuery("name", "upload.csv"), data, nil
}

// statusFor maps core errors onto HTTP statuses; anything else gets fallback.
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, risk.ErrSchema),
		errors.Is(err, risk.ErrDegenerateBatch),
		errors.Is(err, risk.ErrInvalidLabel):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dataset.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	default:
		return fallback
	}
}

func views(b *risk.Batch) []recordView {
	out := make([]recordView, len(b.Records))
	for i, r := range b.Records {
		scaled := make(map[string]float64, len(risk.FeatureColumns))
		for j, col := range risk.FeatureColumns {
			scaled[col] = r.Scaled[j]
		}
		out[i] = recordView{
			EmployeeID:    r.EmployeeID,
			HeartRate:     r.Metrics[0],
			BloodPressure: r.Metrics[1],
			FatigueScore:  r.Metrics[2],
			JobRole:       r.JobRole,
			Scaled:        scaled,
			AnomalyScore:  r.AnomalyScore,
			IsAnomaly:     r.IsAnomaly,
			RiskGroup:     r.RiskGroup,
			RiskTier:      risk.TierLabel(r.RiskGroup),
			Intervention:  r.Intervention,
		}
	}
	return out
}
