package compositing

import (
	"bytes"
	"image"
	"sync"
)

// Memory pools for buffer reuse across render passes.
// Photo cells of one layout all share a size, so pools are keyed by size.

// BufferPool provides reusable byte buffers for JPEG and PNG encoding
var BufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

var (
	rgbaPoolsMu sync.Mutex
	rgbaPools   = map[image.Point]*sync.Pool{}
)

func rgbaPool(size image.Point) *sync.Pool {
	rgbaPoolsMu.Lock()
	defer rgbaPoolsMu.Unlock()
	p, ok := rgbaPools[size]
	if !ok {
		w, h := size.X, size.Y
		p = &sync.Pool{
			New: func() interface{} {
				return image.NewRGBA(image.Rect(0, 0, w, h))
			},
		}
		rgbaPools[size] = p
	}
	return p
}

// GetPooledImageForSize returns a cleared RGBA surface of the given size.
func GetPooledImageForSize(width, height int) *image.RGBA {
	img := rgbaPool(image.Pt(width, height)).Get().(*image.RGBA)
	clear(img.Pix)
	return img
}

// ReturnPooledImageForSize returns a surface obtained from GetPooledImageForSize.
func ReturnPooledImageForSize(img *image.RGBA) {
	if img == nil {
		return
	}
	rgbaPool(img.Bounds().Size()).Put(img)
}
