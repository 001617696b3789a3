// Package web is the browser-facing gin surface: the page, its form actions,
// preview and visualization images, and the notification websocket.
package web

import (
	"context"
	"embed"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"TableDetFront/analysis"
	"TableDetFront/app"
	"TableDetFront/detclient"
	iface "TableDetFront/interface"
	"TableDetFront/logger"
	"TableDetFront/notify"
	"TableDetFront/preview"
	"TableDetFront/render"
	"TableDetFront/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

//go:embed static
var staticFS embed.FS

const (
	sessionKey = "session"
	pongWait   = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Visualizer fetches visualization images from the detection API.
type Visualizer interface {
	Visualization(ctx context.Context, path string) ([]byte, string, error)
}

type Deps struct {
	Controller  *app.Controller
	Store       *session.Store
	Previews    *preview.Registry
	Visualizer  Visualizer
	Hub         *notify.Hub
	Health      func() (healthy bool, checked bool)
	APIBase     string
	Cookie      string
	MaxFileSize int64
	Release     bool
}

type server struct {
	Deps
	log *zap.Logger
}

// NewRouter wires every route of the front end onto a fresh gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Cookie == "" {
		d.Cookie = "tdsid"
	}
	s := &server{Deps: d, log: logger.Named("web")}

	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.SetHTMLTemplate(render.MustTemplates())
	r.Use(requestLogger(s.log), s.sessions(), gin.CustomRecovery(s.recovered))

	static, _ := fs.Sub(staticFS, "static")
	r.StaticFS("/static", http.FS(static))

	r.GET("/", s.index)
	r.POST("/files", s.addFiles)
	r.POST("/files/:index/delete", s.removeFile)
	r.POST("/reset", s.reset)
	r.POST("/analyze", s.analyze)
	r.POST("/notices/:id/dismiss", s.dismiss)
	r.GET("/preview/:id", s.preview)
	r.GET("/visualization", s.visualization)
	r.GET("/ws", s.websocket)
	r.GET("/api/state", s.snapshot)
	r.GET("/healthz", s.healthz)
	return r
}

func state(c *gin.Context) *session.State {
	return c.MustGet(sessionKey).(*session.State)
}

// respond finishes a form action: JSON clients get the new view, browsers
// are redirected back to the page.
func (s *server) respond(c *gin.Context, status int) {
	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		c.JSON(status, s.Controller.View(state(c)))
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index", s.Controller.View(state(c)))
}

func (s *server) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.Controller.View(state(c)))
}

func (s *server) addFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		s.log.Warn("bad upload form", zap.Error(err))
		state(c).Notices.Error("The upload could not be read")
		s.respond(c, http.StatusBadRequest)
		return
	}
	headers := form.File["files"]
	candidates := make([]iface.Candidate, 0, len(headers))
	for _, h := range headers {
		cand := iface.Candidate{Name: h.Filename, Size: h.Size, DeclaredType: h.Header.Get("Content-Type")}
		// oversized files are rejected on Size; reading a prefix is enough
		if f, err := h.Open(); err == nil {
			cand.Content, err = io.ReadAll(io.LimitReader(f, s.MaxFileSize))
			_ = f.Close()
			if err != nil {
				s.log.Warn("reading upload failed", zap.String("file", h.Filename), zap.Error(err))
			}
		}
		candidates = append(candidates, cand)
	}
	s.Controller.AddFiles(state(c), candidates)
	s.respond(c, http.StatusOK)
}

func (s *server) removeFile(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		index = -1
	}
	if err := s.Controller.RemoveFile(state(c), index); err != nil {
		s.respond(c, http.StatusNotFound)
		return
	}
	s.respond(c, http.StatusOK)
}

func (s *server) reset(c *gin.Context) {
	s.Controller.Reset(state(c))
	s.respond(c, http.StatusOK)
}

func (s *server) analyze(c *gin.Context) {
	st := state(c)
	st.Lock()
	percent := st.ConfidencePercent
	st.Unlock()
	if v, err := strconv.Atoi(c.PostForm("confidence")); err == nil {
		percent = v
	}
	visualize := c.PostForm("visualize") == "true" || c.PostForm("visualize") == "on"

	err := s.Controller.Analyze(c.Request.Context(), st, percent, visualize)
	s.respond(c, analyzeStatus(err))
}

func analyzeStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, analysis.ErrNoFiles):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, detclient.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *server) dismiss(c *gin.Context) {
	if !s.Controller.DismissNotice(state(c), c.Param("id")) {
		s.respond(c, http.StatusNotFound)
		return
	}
	s.respond(c, http.StatusOK)
}

func (s *server) preview(c *gin.Context) {
	data, mime, ok := s.Previews.Serve(c.Param("id"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, mime, data)
}

func (s *server) visualization(c *gin.Context) {
	data, contentType, err := s.Visualizer.Visualization(c.Request.Context(), c.Query("path"))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, detclient.ErrBadPath) {
			status = http.StatusBadRequest
		}
		s.log.Warn("visualization unavailable", zap.String("path", c.Query("path")), zap.Error(err))
		c.String(status, "visualization unavailable")
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// websocket subscribes the page to its session's banner events. The client
// never sends anything; reads only detect the close.
func (s *server) websocket(c *gin.Context) {
	st := state(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	if !s.Hub.Register(st.ID, conn) {
		_ = conn.Close()
		return
	}
	defer s.Hub.Unregister(st.ID, conn)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (s *server) healthz(c *gin.Context) {
	var healthy, checked bool
	if s.Health != nil {
		healthy, checked = s.Health()
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"api": gin.H{
			"url":     s.APIBase,
			"healthy": healthy,
			"checked": checked,
		},
		"sessions": s.Store.Len(),
		"previews": s.Previews.Live(),
	})
}
