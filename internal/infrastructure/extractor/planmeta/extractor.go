// Package planmeta reads dimensions and page data from stored map assets.
// It never interprets drawing content.
package planmeta

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/ledongthuc/pdf"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

// DefaultMaxPDFBytes bounds how much of a PDF is buffered for parsing.
const DefaultMaxPDFBytes int64 = 256 << 20

type Extractor struct {
	maxPDFBytes int64
}

func NewExtractor(maxPDFBytes int64) *Extractor {
	if maxPDFBytes <= 0 {
		maxPDFBytes = DefaultMaxPDFBytes
	}
	return &Extractor{maxPDFBytes: maxPDFBytes}
}

func (e *Extractor) Extract(ctx context.Context, m *domain.Map, body io.Reader) (domain.MapMetadata, error) {
	if err := ctx.Err(); err != nil {
		return domain.MapMetadata{}, err
	}
	switch m.File.Type {
	case domain.FileTypeImage:
		return extractImage(body)
	case domain.FileTypePDF:
		return e.extractPDF(body)
	case domain.FileTypeCAD:
		return domain.MapMetadata{}, nil
	default:
		return domain.MapMetadata{}, fmt.Errorf("extract metadata: unsupported file type %q", m.File.Type)
	}
}

func extractImage(body io.Reader) (domain.MapMetadata, error) {
	cfg, format, err := image.DecodeConfig(body)
	if err != nil {
		return domain.MapMetadata{}, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return domain.MapMetadata{}, fmt.Errorf("decode %s header: empty image", format)
	}
	return domain.MapMetadata{WidthPx: cfg.Width, HeightPx: cfg.Height, PageCount: 1}, nil
}

func (e *Extractor) extractPDF(body io.Reader) (domain.MapMetadata, error) {
	raw, err := io.ReadAll(io.LimitReader(body, e.maxPDFBytes+1))
	if err != nil {
		return domain.MapMetadata{}, fmt.Errorf("read pdf: %w", err)
	}
	if int64(len(raw)) > e.maxPDFBytes {
		return domain.MapMetadata{}, fmt.Errorf("read pdf: document exceeds %d bytes", e.maxPDFBytes)
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return domain.MapMetadata{}, fmt.Errorf("parse pdf: %w", err)
	}
	pages := reader.NumPage()
	if pages == 0 {
		return domain.MapMetadata{}, fmt.Errorf("parse pdf: no pages")
	}

	meta := domain.MapMetadata{PageCount: pages}
	width, height := mediaBox(reader.Page(1))
	meta.PageWidth, meta.PageHeight = width, height
	return meta, nil
}

// mediaBox returns the first page size in points, or zeros when the page
// carries no usable MediaBox (it may be inherited in ways the parser hides).
func mediaBox(page pdf.Page) (float64, float64) {
	box := page.V.Key("MediaBox")
	if box.Kind() != pdf.Array || box.Len() != 4 {
		return 0, 0
	}
	llx, lly := box.Index(0).Float64(), box.Index(1).Float64()
	urx, ury := box.Index(2).Float64(), box.Index(3).Float64()
	w, h := urx-llx, ury-lly
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	return w, h
}
