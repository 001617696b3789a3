// Package app applies user actions to a session's state and builds the view
// the page renders from it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"TableDetFront/analysis"
	"TableDetFront/detclient"
	iface "TableDetFront/interface"
	"TableDetFront/intake"
	"TableDetFront/logger"
	"TableDetFront/notify"
	"TableDetFront/preview"
	"TableDetFront/render"
	"TableDetFront/session"

	"go.uber.org/zap"
)

const (
	DefaultConfidencePercent = 50

	msgNoFiles     = "Please select at least one image"
	msgBusy        = "An analysis is already running"
	msgFileMissing = "That file is no longer in the selection"
	msgTimeout     = "The detection API did not answer in time (%s). Try fewer or smaller images."
	msgFailed      = "Analysis failed: %v"
	MsgUnexpected  = "Something went wrong, please try again"
)

// Thumbnailer attaches a preview image to a freshly selected file.
type Thumbnailer interface {
	Prepare(f *iface.SelectedFile)
}

type Options struct {
	APIBase        string
	MaxFileSize    int64
	NameLimit      int
	NoticeTTLs     notify.TTLs
	RequestTimeout time.Duration
}

type Controller struct {
	det      analysis.Detector
	pub      notify.Publisher
	thumbs   Thumbnailer
	previews *preview.Registry
	health   func() (healthy bool, checked bool)
	opts     Options
	log      *zap.Logger
}

func New(det analysis.Detector, pub notify.Publisher, thumbs Thumbnailer, previews *preview.Registry, opts Options) *Controller {
	if opts.NameLimit <= 0 {
		opts.NameLimit = 20
	}
	if opts.NoticeTTLs == (notify.TTLs{}) {
		opts.NoticeTTLs = notify.DefaultTTLs()
	}
	return &Controller{
		det:      det,
		pub:      pub,
		thumbs:   thumbs,
		previews: previews,
		opts:     opts,
		log:      logger.Named("app"),
	}
}

// SetHealth installs the source of the upstream status shown on the page.
func (c *Controller) SetHealth(fn func() (bool, bool)) {
	c.health = fn
}

// NewState is the session factory: an empty selection, no results and the
// default slider settings.
func (c *Controller) NewState(id string) *session.State {
	return &session.State{
		ID:                id,
		Selection:         intake.NewSelection(c.opts.MaxFileSize),
		Notices:           notify.NewCenter(id, c.opts.NoticeTTLs, c.pub),
		Analyzer:          analysis.New(c.det),
		ConfidencePercent: DefaultConfidencePercent,
		Visualize:         true,
	}
}

// AddFiles validates and appends candidates. Rejected files raise one error
// banner, duplicates one warning, and accepted files one success banner.
func (c *Controller) AddFiles(st *session.State, candidates []iface.Candidate) intake.Report {
	var prepare func(*iface.SelectedFile)
	if c.thumbs != nil {
		prepare = c.thumbs.Prepare
	}
	st.Lock()
	rep := st.Selection.AddFiles(candidates, prepare)
	total := st.Selection.Len()
	st.Unlock()

	rejected, duplicates := rep.Message()
	if rejected != "" {
		st.Notices.Error(rejected)
	}
	if duplicates != "" {
		st.Notices.Warning(duplicates)
	}
	if len(rep.Added) > 0 {
		st.Notices.Success(fmt.Sprintf("%d image(s) added, %d selected", len(rep.Added), total))
	}
	c.log.Debug("files added", zap.String("session", st.ID), zap.Int("added", len(rep.Added)),
		zap.Int("rejected", len(rep.Rejected)), zap.Int("duplicates", len(rep.Duplicates)))
	return rep
}

// RemoveFile drops the file at index. An emptied selection hides results.
func (c *Controller) RemoveFile(st *session.State, index int) error {
	st.Lock()
	_, err := st.Selection.Remove(index)
	if err == nil && st.Selection.Empty() {
		st.ResultsVisible = false
	}
	st.Unlock()
	if err != nil {
		st.Notices.Error(msgFileMissing)
		return err
	}
	return nil
}

// Reset clears the selection and any shown results.
func (c *Controller) Reset(st *session.State) {
	st.Lock()
	defer st.Unlock()
	st.Selection.Reset()
	st.Pairs, st.Batch, st.Mode = nil, nil, ""
	st.ResultsVisible = false
}

// Analyze sends the current selection to the detection API. The session
// lock is not held during the call. On failure prior results are kept.
func (c *Controller) Analyze(ctx context.Context, st *session.State, confidencePercent int, visualize bool) error {
	st.Lock()
	st.ConfidencePercent = confidencePercent
	st.Visualize = visualize
	files := st.Selection.Files()
	st.Unlock()

	if len(files) == 0 {
		st.Notices.Error(msgNoFiles)
		return analysis.ErrNoFiles
	}
	out, err := st.Analyzer.Run(ctx, analysis.Request{
		Files:      files,
		Confidence: analysis.ConfidenceFromPercent(float64(confidencePercent)),
		Visualize:  visualize,
	})
	if err != nil {
		c.reportFailure(st, err)
		return err
	}

	st.Lock()
	st.Pairs, st.Batch, st.Mode = out.Pairs, out.Batch, out.Mode
	st.ResultsVisible = true
	st.Unlock()
	st.Notices.Success(fmt.Sprintf("Analysis complete: %d image(s) processed", len(out.Pairs)))
	return nil
}

func (c *Controller) reportFailure(st *session.State, err error) {
	switch {
	case errors.Is(err, analysis.ErrBusy):
		st.Notices.Warning(msgBusy)
	case errors.Is(err, detclient.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		st.Notices.Error(fmt.Sprintf(msgTimeout, c.opts.RequestTimeout))
	default:
		st.Notices.Error(fmt.Sprintf(msgFailed, err))
	}
}

// Unexpected surfaces a generic banner for a recovered panic.
func (c *Controller) Unexpected(st *session.State) {
	st.Notices.Error(MsgUnexpected)
}

func (c *Controller) DismissNotice(st *session.State, id string) bool {
	return st.Notices.Dismiss(id)
}

// View builds the page model. Preview handles of the previous view are
// released once the new ones are acquired.
func (c *Controller) View(st *session.State) render.Page {
	scope := c.previews.NewScope()
	thumbURL := func(f *iface.SelectedFile) string {
		if len(f.Thumb) == 0 {
			return preview.PlaceholderURL
		}
		if h := scope.Acquire(f.Thumb, f.ThumbMIME); h.URL != "" {
			return h.URL
		}
		return preview.PlaceholderURL
	}
	links := render.Links{Thumb: thumbURL, Visualization: VisualizationLink}

	st.Lock()
	defer st.Unlock()
	page := render.Page{
		ConfidencePercent: st.ConfidencePercent,
		Visualize:         st.Visualize,
		Running:           st.Analyzer.Running(),
		ResultsVisible:    st.ResultsVisible,
		Mode:              st.Mode,
		APIBase:           c.opts.APIBase,
		MaxFileSizeMB:     int(c.opts.MaxFileSize / (1024 * 1024)),
		PlaceholderURL:    preview.PlaceholderURL,
	}
	files := st.Selection.Files()
	page.Files = make([]render.FileItem, 0, len(files))
	for i := range files {
		f := &files[i]
		page.Files = append(page.Files, render.FileItem{
			Index:       i,
			Name:        f.Name,
			DisplayName: preview.TruncateName(f.Name, c.opts.NameLimit),
			SizeLabel:   render.SizeLabel(f.Size),
			ThumbURL:    thumbURL(f),
		})
	}
	page.CanAnalyze = len(files) > 0 && !page.Running
	if st.ResultsVisible {
		if st.Mode == analysis.ModeBatch {
			page.Summary = render.BuildSummary(st.Batch)
		}
		page.Cards = make([]render.Card, 0, len(st.Pairs))
		for _, p := range st.Pairs {
			page.Cards = append(page.Cards, render.BuildCard(p.Result, p.File, links))
		}
	}
	if c.health != nil {
		page.APIHealthy, page.APIChecked = c.health()
	}
	page.Notices = st.Notices.Active()
	st.SwapScope(scope)
	return page
}

// VisualizationLink routes a visualization_url through the local proxy.
func VisualizationLink(path string) string {
	return "/visualization?path=" + url.QueryEscape(path)
}
