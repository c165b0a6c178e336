// Package devserver serves a store over the annotation service HTTP API so
// the review client can run against a local dataset.
//
// Next-sample selection is deliberately simple: the first unlabeled sample
// that was never served, then the one served longest ago.
package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JackEngelmann/nlpanno/internal/logging"
	"github.com/JackEngelmann/nlpanno/internal/sample"
	"github.com/JackEngelmann/nlpanno/internal/store"
)

// Variant selects the prediction wire shape samples are served in.
type Variant string

const (
	// VariantCandidates serves availableTextClasses with ids and names.
	VariantCandidates Variant = "candidates"
	// VariantVector serves textClassPredictions parallel to the task classes.
	VariantVector Variant = "vector"
)

// ParseVariant validates a variant name. Empty selects VariantCandidates.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "", VariantCandidates:
		return VariantCandidates, nil
	case VariantVector:
		return VariantVector, nil
	}
	return "", fmt.Errorf("unknown variant %q (want candidates or vector)", s)
}

// DefaultBusyWindow is how long the worker reports busy after a label
// change, standing in for the model re-estimation a real server runs.
const DefaultBusyWindow = 3 * time.Second

// Options configure a Server.
type Options struct {
	Variant    Variant
	BusyWindow time.Duration
}

// Server is the development annotation service.
type Server struct {
	store   *store.Store
	variant Variant
	busy    time.Duration
	now     func() time.Time

	mu        sync.Mutex
	busyUntil time.Time
}

// New creates a Server backed by st.
func New(st *store.Store, opts Options) *Server {
	if opts.Variant == "" {
		opts.Variant = VariantCandidates
	}
	if opts.BusyWindow <= 0 {
		opts.BusyWindow = DefaultBusyWindow
	}
	return &Server{
		store:   st,
		variant: opts.Variant,
		busy:    opts.BusyWindow,
		now:     time.Now,
	}
}

// Handler returns the gin engine serving the API under /api.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	api := router.Group("/api")
	{
		api.GET("/tasks", s.getTasks)
		api.GET("/taskConfig", s.getTaskConfig)
		api.GET("/nextSample", s.getNextSample)
		api.GET("/tasks/:id/nextSample", s.getNextSample)
		api.PATCH("/samples/:id", s.patchSample)
		api.GET("/status", s.getStatus)
	}
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"dur", time.Since(start))
	}
}

func (s *Server) getTasks(c *gin.Context) {
	tasks, err := s.store.Tasks()
	if err != nil {
		s.fail(c, err)
		return
	}
	if tasks == nil {
		tasks = []sample.AnnotationTask{}
	}
	c.JSON(http.StatusOK, tasks)
}

// getTaskConfig serves one task: ?taskId= or the first task.
func (s *Server) getTaskConfig(c *gin.Context) {
	task, err := s.resolveTask(c.Query("taskId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// getNextSample serves the next sample of the task in the path, ?taskId=,
// or the first task. Answers null when every sample is labeled.
func (s *Server) getNextSample(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		taskID = c.Query("taskId")
	}
	task, err := s.resolveTask(taskID)
	if err != nil {
		s.fail(c, err)
		return
	}

	smp, ok, err := s.store.NextSample(task.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, s.render(c, smp, task))
}

func (s *Server) patchSample(c *gin.Context) {
	id := c.Param("id")

	// Bound manually: textClassId must be present, and null means clear.
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("invalid body: %v", err)})
		return
	}
	if raw, ok := body["id"]; ok {
		var echo string
		if err := json.Unmarshal(raw, &echo); err != nil || echo != id {
			c.JSON(http.StatusBadRequest, gin.H{"message": "body id does not match path"})
			return
		}
	}
	raw, ok := body["textClassId"]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "textClassId is required"})
		return
	}
	var classID *string
	if err := json.Unmarshal(raw, &classID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "textClassId must be a string or null"})
		return
	}

	task, err := s.store.TaskOf(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	smp, err := s.store.SetLabel(id, classID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.mu.Lock()
	s.busyUntil = s.now().Add(s.busy)
	s.mu.Unlock()

	label := "<none>"
	if smp.TextClass != nil {
		label = smp.TextClass.Name
	}
	logging.Info("Label updated", "sample", id, "class", label)
	c.JSON(http.StatusOK, s.render(c, smp, task))
}

func (s *Server) getStatus(c *gin.Context) {
	s.mu.Lock()
	busy := s.now().Before(s.busyUntil)
	s.mu.Unlock()
	c.JSON(http.StatusOK, sample.Status{Worker: sample.WorkerStatus{IsWorking: busy}})
}

func (s *Server) resolveTask(id string) (sample.AnnotationTask, error) {
	if id != "" {
		return s.store.Task(id)
	}
	tasks, err := s.store.Tasks()
	if err != nil {
		return sample.AnnotationTask{}, err
	}
	if len(tasks) == 0 {
		return sample.AnnotationTask{}, fmt.Errorf("%w: no tasks", store.ErrNotFound)
	}
	return tasks[0], nil
}

// render converts a stored sample to the requested variant (?variant=
// overrides the server default).
func (s *Server) render(c *gin.Context, smp sample.Sample, task sample.AnnotationTask) sample.Sample {
	variant := s.variant
	if q := c.Query("variant"); q != "" {
		if v, err := ParseVariant(q); err == nil {
			variant = v
		}
	}
	if variant != VariantVector || smp.Predictions.Kind() == sample.PredictionsNone {
		return smp
	}

	normalized := smp.Predictions.Normalize(task.TextClasses)
	vector := make([]float64, len(normalized))
	for i, cand := range normalized {
		vector[i] = cand.Confidence
	}
	smp.Predictions = sample.VectorPredictions(vector)
	return smp
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrUnknownClass):
		status = http.StatusUnprocessableEntity
	default:
		logging.Error("Request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"message": err.Error()})
}
