package ocr

import "image"

// Rectangular structuring elements of kw x kh with the anchor at (kw/2, kh/2).
// Pixels outside the image are ignored.

func erode(src *image.Gray, kw, kh int) *image.Gray {
	return morph(src, kw, kh, func(a, b uint8) uint8 { return min(a, b) }, 255)
}

func dilate(src *image.Gray, kw, kh int) *image.Gray {
	return morph(src, kw, kh, func(a, b uint8) uint8 { return max(a, b) }, 0)
}

// opening removes bright features smaller than the kernel.
func opening(src *image.Gray, kw, kh int) *image.Gray {
	return dilate(erode(src, kw, kh), kw, kh)
}

// closing removes dark features smaller than the kernel.
func closing(src *image.Gray, kw, kh int) *image.Gray {
	return erode(dilate(src, kw, kh), kw, kh)
}

func morph(src *image.Gray, kw, kh int, pick func(a, b uint8) uint8, init uint8) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	ax, ay := kw/2, kh/2
	out := image.NewGray(image.Rect(0, 0, w, h))
	parallelRows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				v := init
				for dy := 0; dy < kh; dy++ {
					yy := y + dy - ay
					if yy < 0 || yy >= h {
						continue
					}
					for dx := 0; dx < kw; dx++ {
						xx := x + dx - ax
						if xx < 0 || xx >= w {
							continue
						}
						v = pick(v, src.Pix[yy*src.Stride+xx])
					}
				}
				out.Pix[y*out.Stride+x] = v
			}
		}
	})
	return out
}

func invert(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[y*out.Stride+x] = 255 - src.Pix[y*src.Stride+x]
		}
	}
	return out
}

// pad surrounds src with n pixels of value on every side.
func pad(src *image.Gray, n int, value uint8) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w+2*n, h+2*n))
	for i := range out.Pix {
		out.Pix[i] = value
	}
	for y := 0; y < h; y++ {
		copy(out.Pix[(y+n)*out.Stride+n:(y+n)*out.Stride+n+w], src.Pix[y*src.Stride:y*src.Stride+w])
	}
	return out
}
