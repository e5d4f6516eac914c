package render

import (
	"fmt"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	fontOnce   sync.Once
	fontSource *text.FontSource
	fontErr    error
)

// labelFont returns the Go Regular face at size. The font source is parsed
// once per process.
func labelFont(size float64) (text.Face, error) {
	fontOnce.Do(func() {
		fontSource, fontErr = text.NewFontSource(goregular.TTF)
		if fontErr != nil {
			fontErr = fmt.Errorf("failed to load label font: %w", fontErr)
		}
	})
	if fontErr != nil {
		return nil, fontErr
	}
	return fontSource.Face(size), nil
}
