// Package filetype maps uploaded file names to supported map file types.
package filetype

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

var extensions = map[string]domain.FileType{
	".dwg":  domain.FileTypeCAD,
	".dxf":  domain.FileTypeCAD,
	".dgn":  domain.FileTypeCAD,
	".pdf":  domain.FileTypePDF,
	".png":  domain.FileTypeImage,
	".jpg":  domain.FileTypeImage,
	".jpeg": domain.FileTypeImage,
	".tif":  domain.FileTypeImage,
	".tiff": domain.FileTypeImage,
	".bmp":  domain.FileTypeImage,
	".webp": domain.FileTypeImage,
	".gif":  domain.FileTypeImage,
}

type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

func (Classifier) Classify(filename string) (domain.FileType, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if t, ok := extensions[ext]; ok {
		return t, nil
	}
	return "", domain.Validationf("classify map file", "unsupported file extension %q (accepted: %s)",
		ext, strings.Join(SupportedExtensions(), ", "))
}

func SupportedExtensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
