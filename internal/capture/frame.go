package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/framescope/framescope/internal/platform"
)

// Frame is an immutable handle to one captured image. It starts GPU-only,
// holding just the surface reference plus the content size observed at
// capture time, and materializes into a CPU buffer on demand. Frames are
// replaced, never mutated; the next arrival overwrites this one in the
// mailbox.
type Frame struct {
	device  platform.Device
	surface platform.Surface
	width   int
	height  int

	once sync.Once
	img  *image.RGBA
	err  error
}

// NewFrame wraps a surface at the given content size.
func NewFrame(device platform.Device, surface platform.Surface, content platform.Size) *Frame {
	return &Frame{
		device:  device,
		surface: surface,
		width:   content.Width,
		height:  content.Height,
	}
}

// Width is the content width in pixels at capture time.
func (f *Frame) Width() int { return f.width }

// Height is the content height in pixels at capture time.
func (f *Frame) Height() int { return f.height }

// Materialize copies the frame into a CPU image. The result is cached, so
// repeated calls return the same buffer. The returned image is exactly
// width x height RGBA8 with stride width*4; the surface's row pitch padding
// and any allocation border are cropped away.
func (f *Frame) Materialize() (*image.RGBA, error) {
	f.once.Do(func() {
		f.img, f.err = f.convert()
		if f.err != nil {
			f.err = fmt.Errorf("%w: %v", ErrFrameConversion, f.err)
		}
	})
	return f.img, f.err
}

// convert runs the staging copy + map via the device, then crops the mapped
// bytes to the content rectangle. The mapping's apparent width is
// rowPitch/4 pixels, which can exceed the content width; skipping the crop
// would leave a spurious right-edge border, so it is not optional.
func (f *Frame) convert() (*image.RGBA, error) {
	mapping, err := f.device.ReadSurface(f.surface)
	if err != nil {
		return nil, err
	}

	pitch := mapping.RowPitch
	rowBytes := f.width * 4
	if pitch < rowBytes {
		return nil, fmt.Errorf("row pitch %d smaller than content row %d", pitch, rowBytes)
	}
	if len(mapping.Data) < f.height*pitch {
		return nil, fmt.Errorf("mapping holds %d bytes, need %d for %d rows", len(mapping.Data), f.height*pitch, f.height)
	}

	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	for y := 0; y < f.height; y++ {
		copy(img.Pix[y*rowBytes:(y+1)*rowBytes], mapping.Data[y*pitch:y*pitch+rowBytes])
	}
	return img, nil
}
