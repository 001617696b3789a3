package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"TableDetFront/detclient"
	iface "TableDetFront/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDetector struct {
	singleCalls int
	batchCalls  int
	gotVis      bool
	gotConf     float64
	block       chan struct{}
	started     chan struct{}
	err         error
	single      *iface.DetectionResult
	batch       *iface.BatchResponse
}

func (m *mockDetector) wait(ctx context.Context) error {
	if m.started != nil {
		close(m.started)
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *mockDetector) Detect(ctx context.Context, f iface.SelectedFile, conf float64, vis bool) (*iface.DetectionResult, error) {
	m.singleCalls++
	m.gotVis, m.gotConf = vis, conf
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.single, nil
}

func (m *mockDetector) DetectBatch(ctx context.Context, files []iface.SelectedFile, conf float64) (*iface.BatchResponse, error) {
	m.batchCalls++
	m.gotConf = conf
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.batch, nil
}

func files(names ...string) []iface.SelectedFile {
	out := make([]iface.SelectedFile, 0, len(names))
	for _, n := range names {
		out = append(out, iface.SelectedFile{Name: n, MIME: "image/png", Content: []byte(n)})
	}
	return out
}

func TestRun_OneFileUsesSingleEndpoint(t *testing.T) {
	m := &mockDetector{single: &iface.DetectionResult{Success: true}}
	o := New(m)

	out, err := o.Run(context.Background(), Request{Files: files("a.png"), Confidence: 0.4, Visualize: true})
	require.NoError(t, err)
	assert.Equal(t, 1, m.singleCalls)
	assert.Equal(t, 0, m.batchCalls)
	assert.True(t, m.gotVis)
	assert.Equal(t, 0.4, m.gotConf)
	assert.Equal(t, ModeSingle, out.Mode)
	require.Len(t, out.Pairs, 1)
	assert.Equal(t, "a.png", out.Pairs[0].Result.Filename)
	require.NotNil(t, out.Pairs[0].File)
	assert.Equal(t, "a.png", out.Pairs[0].File.Name)
	assert.Equal(t, IDLE, o.State())
}

func TestRun_SeveralFilesUseBatchAndPairByName(t *testing.T) {
	m := &mockDetector{batch: &iface.BatchResponse{Results: []iface.DetectionResult{
		{Filename: "b.png", Success: true},
		{Filename: "a.png", Success: false, Error: "no table"},
		{Filename: "ghost.png", Success: true},
	}}}
	out, err := New(m).Run(context.Background(), Request{Files: files("a.png", "b.png"), Confidence: 0.5, Visualize: true})
	require.NoError(t, err)
	assert.Equal(t, 0, m.singleCalls)
	assert.Equal(t, 1, m.batchCalls)
	assert.Equal(t, ModeBatch, out.Mode)
	require.Len(t, out.Pairs, 3)
	assert.Equal(t, "b.png", out.Pairs[0].File.Name)
	assert.Equal(t, "a.png", out.Pairs[1].File.Name)
	assert.Nil(t, out.Pairs[2].File)
}

func TestRun_ErrorDiscardsRunAndReturnsToIdle(t *testing.T) {
	m := &mockDetector{err: &detclient.APIError{Status: 500, Message: "model not loaded"}}
	o := New(m)
	out, err := o.Run(context.Background(), Request{Files: files("a.png", "b.png")})
	assert.Nil(t, out)
	var apiErr *detclient.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, IDLE, o.State())
}

func TestRun_RejectsReentry(t *testing.T) {
	m := &mockDetector{
		single:  &iface.DetectionResult{Success: true},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	o := New(m)
	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), Request{Files: files("a.png")})
		done <- err
	}()
	<-m.started
	assert.True(t, o.Running())

	_, err := o.Run(context.Background(), Request{Files: files("a.png")})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, m.singleCalls)

	close(m.block)
	assert.NoError(t, <-done)
	assert.False(t, o.Running())
}

func TestRun_TimeoutRestoresIdle(t *testing.T) {
	m := &mockDetector{block: make(chan struct{})}
	o := New(m)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := o.Run(ctx, Request{Files: files("a.png")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, IDLE, o.State())
}

func TestRun_EmptySelection(t *testing.T) {
	_, err := New(&mockDetector{}).Run(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestConfidenceFromPercent(t *testing.T) {
	assert.Equal(t, 0.5, ConfidenceFromPercent(50))
	assert.Equal(t, 0.0, ConfidenceFromPercent(-3))
	assert.Equal(t, 1.0, ConfidenceFromPercent(140))
}
