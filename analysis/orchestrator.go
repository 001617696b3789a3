package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	iface "TableDetFront/interface"
	"TableDetFront/logger"
	"TableDetFront/monitor"

	"go.uber.org/zap"
)

const (
	IDLE    = 0x3001
	RUNNING = 0x3002
)

const (
	ModeSingle = "single"
	ModeBatch  = "batch"
)

var (
	ErrBusy    = errors.New("an analysis is already running")
	ErrNoFiles = errors.New("no files selected")
)

// Detector is the part of the detection API the orchestrator needs.
type Detector interface {
	Detect(ctx context.Context, file iface.SelectedFile, confidence float64, visualize bool) (*iface.DetectionResult, error)
	DetectBatch(ctx context.Context, files []iface.SelectedFile, confidence float64) (*iface.BatchResponse, error)
}

type Request struct {
	Files      []iface.SelectedFile
	Confidence float64
	Visualize  bool
}

// Pair is one API result with the selected file it came from. File is nil
// when the API reports a name that is not in the selection.
type Pair struct {
	Result iface.DetectionResult
	File   *iface.SelectedFile
}

type Outcome struct {
	Mode    string
	Pairs   []Pair
	Batch   *iface.BatchResponse
	Elapsed time.Duration
}

// Orchestrator runs one analysis at a time. The running flag is owned here,
// not by whatever UI control triggered the run.
type Orchestrator struct {
	mu    sync.Mutex
	state int
	det   Detector
	log   *zap.Logger
}

func New(det Detector) *Orchestrator {
	return &Orchestrator{state: IDLE, det: det, log: logger.Named("analysis")}
}

func (o *Orchestrator) State() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Running() bool {
	return o.State() == RUNNING
}

// Run sends the selection to /detect (one file) or /detect-batch (several).
// Any error discards the whole run. The state returns to IDLE on every path.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}
	o.mu.Lock()
	if o.state == RUNNING {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	o.state = RUNNING
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.state = IDLE
		o.mu.Unlock()
	}()

	mode := ModeSingle
	if len(req.Files) > 1 {
		mode = ModeBatch
	}
	start := time.Now()
	out, err := o.dispatch(ctx, mode, req)
	elapsed := time.Since(start)
	monitor.AnalysisSeconds.WithLabelValues(mode).Observe(elapsed.Seconds())
	if err != nil {
		monitor.AnalysesTotal.WithLabelValues(mode, "error").Inc()
		o.log.Warn("analysis failed", zap.String("mode", mode), zap.Int("files", len(req.Files)), zap.Error(err))
		return nil, err
	}
	out.Elapsed = elapsed
	monitor.AnalysesTotal.WithLabelValues(mode, "ok").Inc()
	o.log.Info("analysis finished", zap.String("mode", mode), zap.Int("files", len(req.Files)),
		zap.Int("results", len(out.Pairs)), zap.Duration("elapsed", elapsed))
	return out, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, mode string, req Request) (*Outcome, error) {
	out := &Outcome{Mode: mode}
	if mode == ModeSingle {
		res, err := o.det.Detect(ctx, req.Files[0], req.Confidence, req.Visualize)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, fmt.Errorf("detect %s: empty response", req.Files[0].Name)
		}
		if res.Filename == "" {
			res.Filename = req.Files[0].Name
		}
		out.Pairs = pair([]iface.DetectionResult{*res}, req.Files)
		return out, nil
	}
	batch, err := o.det.DetectBatch(ctx, req.Files, req.Confidence)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, errors.New("detect batch: empty response")
	}
	out.Batch = batch
	out.Pairs = pair(batch.Results, req.Files)
	return out, nil
}

func pair(results []iface.DetectionResult, files []iface.SelectedFile) []Pair {
	byName := make(map[string]int, len(files))
	for i, f := range files {
		byName[f.Name] = i
	}
	pairs := make([]Pair, 0, len(results))
	for _, r := range results {
		p := Pair{Result: r}
		if i, ok := byName[r.Filename]; ok {
			f := files[i]
			p.File = &f
		}
		pairs = append(pairs, p)
	}
	return pairs
}

// ConfidenceFromPercent maps the 0-100 slider value to the API's fraction.
func ConfidenceFromPercent(percent float64) float64 {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 1
	}
	return percent / 100
}
