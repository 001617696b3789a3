package detclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	iface "TableDetFront/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngFile(name string) iface.SelectedFile {
	return iface.SelectedFile{Name: name, MIME: "image/png", Content: []byte("\x89PNG fake " + name)}
}

func TestDetect_SendsMultipartFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "0.35", r.FormValue("confidence"))
		assert.Equal(t, "true", r.FormValue("visualize"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "scan.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		assert.Contains(t, string(body), "scan.png")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"processing_time":0.5,"num_detections":1,
			"detections":[{"confidence":0.8,"bbox":[1,2,3,4],"label":"table"}],
			"visualization_url":"/static/visualizations/vis_1.jpg"}`)
	}))
	defer srv.Close()

	res, err := New(srv.URL, time.Second).Detect(context.Background(), pngFile("scan.png"), 0.35, true)
	require.NoError(t, err)
	assert.Equal(t, "scan.png", res.Filename)
	assert.True(t, res.Success)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, iface.BBox{X1: 1, Y1: 2, X2: 3, Y2: 4}, *res.Detections[0].BBox)
	assert.Equal(t, "/static/visualizations/vis_1.jpg", res.VisualizationURL)
}

func TestDetectBatch_SendsAllFilesWithoutVisualize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect-batch", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Len(t, r.MultipartForm.File["files"], 2)
		assert.Equal(t, "0.5", r.FormValue("confidence"))
		_, hasVisualize := r.MultipartForm.Value["visualize"]
		assert.False(t, hasVisualize)
		_, _ = io.WriteString(w, `{"total_images":2,"results":[
			{"filename":"a.png","success":true,"processing_time":1.23,
			 "detections":[{"confidence":0.91,"bbox":{"x1":10,"y1":20,"x2":110,"y2":220}}]},
			{"filename":"b.png","success":false,"error":"no table"}]}`)
	}))
	defer srv.Close()

	batch, err := New(srv.URL, time.Second).DetectBatch(context.Background(),
		[]iface.SelectedFile{pngFile("a.png"), pngFile("b.png")}, 0.5)
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, 2, *batch.TotalImages)
	assert.Equal(t, 110.0, batch.Results[0].Detections[0].BBox.X2)
	assert.Equal(t, "no table", batch.Results[1].Error)
}

func TestErrors_DetailAndStatusFallback(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"string detail", 400, `{"detail":"Image too large"}`, "Image too large"},
		{"validation list", 422, `{"detail":[{"msg":"field required"},{"msg":"bad float"}]}`, "field required; bad float"},
		{"not json", 502, `<html>bad gateway</html>`, "HTTP status 502"},
		{"empty detail", 500, `{"detail":""}`, "HTTP status 500"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL, time.Second).Detect(context.Background(), pngFile("x.png"), 0.5, false)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.want, apiErr.Error())
		})
	}
}

func TestDetect_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := New(srv.URL, 100*time.Millisecond).Detect(context.Background(), pngFile("slow.png"), 0.5, false)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "100ms")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDetectBatch_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results": "nope"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).DetectBatch(context.Background(), []iface.SelectedFile{pngFile("a.png")}, 0.5)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVisualization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/static/visualizations/vis_1.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpegdata"))
	}))
	defer srv.Close()
	c := New(srv.URL+"/", time.Second)

	data, ct, err := c.Visualization(context.Background(), "/static/visualizations/vis_1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ct)
	assert.Equal(t, "jpegdata", string(data))

	_, _, err = c.Visualization(context.Background(), "/static/missing.jpg")
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))

	for _, bad := range []string{"http://evil/x.jpg", "//evil/x.jpg", "/static/../secret"} {
		_, _, err = c.Visualization(context.Background(), bad)
		assert.ErrorIs(t, err, ErrBadPath, bad)
	}
}

func TestWatcher_ReportsTransitions(t *testing.T) {
	var mu sync.Mutex
	up := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if !up {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	changes := make(chan bool, 4)
	w := NewWatcher(New(srv.URL, time.Second), 20*time.Millisecond, func(h bool) { changes <- h })
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go w.Run(ctx, &wg)

	assert.True(t, <-changes)
	healthy, checked := w.Healthy()
	assert.True(t, healthy)
	assert.True(t, checked)

	mu.Lock()
	up = false
	mu.Unlock()
	select {
	case h := <-changes:
		assert.False(t, h)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report the outage")
	}
	cancel()
	wg.Wait()
}
