package preview

import (
	"testing"
	"time"

	iface "TableDetFront/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func encodedImage(t *testing.T, w, h int) []byte {
	t.Helper()
	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	defer mat.Close()
	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	require.NoError(t, err)
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func TestThumbnail_ScalesLongestEdge(t *testing.T) {
	r := NewRenderer(100)
	thumb, err := r.Thumbnail(encodedImage(t, 400, 200))
	require.NoError(t, err)

	mat, err := gocv.IMDecode(thumb, gocv.IMReadColor)
	require.NoError(t, err)
	defer mat.Close()
	assert.Equal(t, 100, mat.Cols())
	assert.Equal(t, 50, mat.Rows())
}

func TestPrepare_FallsBackOnDecodeFailure(t *testing.T) {
	r := NewRenderer(100)
	bad := iface.SelectedFile{Name: "broken.png", Content: []byte("\x89PNG\r\n\x1a\ntruncated")}
	r.Prepare(&bad)
	assert.Nil(t, bad.Thumb)

	good := iface.SelectedFile{Name: "ok.png", Content: encodedImage(t, 32, 32)}
	r.Prepare(&good)
	assert.NotEmpty(t, good.Thumb)
	assert.Equal(t, ThumbMIME, good.ThumbMIME)
}

func TestScope_CloseReleasesEveryHandle(t *testing.T) {
	reg := NewRegistry("/preview/", 0)
	s := reg.NewScope()
	h1 := s.Acquire([]byte("one"), "image/jpeg")
	h2 := s.Acquire([]byte("two"), "image/jpeg")
	other := reg.NewScope()
	h3 := other.Acquire([]byte("three"), "image/jpeg")

	assert.Equal(t, "/preview/"+h1.ID, h1.URL)
	assert.Equal(t, 3, reg.Live())

	s.Close()
	assert.Equal(t, 1, reg.Live())
	_, _, ok := reg.Serve(h1.ID)
	assert.False(t, ok)
	_, _, ok = reg.Serve(h2.ID)
	assert.False(t, ok)
	data, mime, ok := reg.Serve(h3.ID)
	assert.True(t, ok)
	assert.Equal(t, "three", string(data))
	assert.Equal(t, "image/jpeg", mime)

	assert.Equal(t, Handle{}, s.Acquire([]byte("late"), "image/jpeg"))
	other.Close()
	assert.Equal(t, 0, reg.Live())
}

func TestScope_EmptyDataGetsNoHandle(t *testing.T) {
	reg := NewRegistry("/preview/", 0)
	assert.Equal(t, Handle{}, reg.NewScope().Acquire(nil, ""))
	assert.Equal(t, 0, reg.Live())
}

func TestRegistry_TimerReleasesAfterFirstServe(t *testing.T) {
	reg := NewRegistry("/preview/", 20*time.Millisecond)
	s := reg.NewScope()
	h := s.Acquire([]byte("img"), "image/jpeg")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, reg.Live(), "unserved handles wait for their scope")

	_, _, ok := reg.Serve(h.ID)
	require.True(t, ok)
	assert.Eventually(t, func() bool { return reg.Live() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, s.Len())
}
