package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	iface "TableDetFront/interface"
	"TableDetFront/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	PlaceholderURL = "/static/placeholder.svg"
	ThumbMIME      = "image/jpeg"
)

var ErrUndecodable = errors.New("decoded image is empty or unsupported format")

// Renderer turns uploaded image bytes into JPEG thumbnails.
type Renderer struct {
	MaxEdge int
	log     *zap.Logger
}

func NewRenderer(maxEdge int) *Renderer {
	return &Renderer{MaxEdge: maxEdge, log: logger.Named("preview")}
}

// Thumbnail decodes data and scales it down so the longest edge is at most
// MaxEdge. Smaller images are re-encoded as is.
func (p *Renderer) Thumbnail(data []byte) ([]byte, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, ErrUndecodable
	}

	out := mat
	w, h := mat.Cols(), mat.Rows()
	if longest := max(w, h); p.MaxEdge > 0 && longest > p.MaxEdge {
		nw := max(1, w*p.MaxEdge/longest)
		nh := max(1, h*p.MaxEdge/longest)
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, image.Point{X: nw, Y: nh}, 0, 0, gocv.InterpolationArea)
		out = resized
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, out)
	if err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes()), nil
}

// Prepare attaches a thumbnail to f. On decode failure the thumbnail stays
// empty and the page falls back to the placeholder image.
func (p *Renderer) Prepare(f *iface.SelectedFile) {
	thumb, err := p.Thumbnail(f.Content)
	if err != nil {
		p.log.Warn("thumbnail failed, using placeholder", zap.String("file", f.Name), zap.Error(err))
		f.Thumb, f.ThumbMIME = nil, ""
		return
	}
	f.Thumb, f.ThumbMIME = thumb, ThumbMIME
}
