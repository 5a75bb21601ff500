package ocr

import (
	"image"
	"math"
	"runtime"
	"sync"
)

// parallelRows splits [0,h) into contiguous bands and runs fn on each band
// concurrently. fn must only write rows inside its band.
func parallelRows(h int, fn func(y0, y1 int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers > h {
		workers = h
	}
	if workers <= 1 {
		fn(0, h)
		return
	}
	chunk := (h + workers - 1) / workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < h; y0 += chunk {
		y1 := min(y0+chunk, h)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			fn(y0, y1)
		}(y0, y1)
	}
	wg.Wait()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// bilateral smooths flat regions while keeping edges. Neighbours inside a disc
// of the given diameter are weighted by spatial distance and by intensity
// difference. Borders replicate the edge pixel.
func bilateral(src *image.Gray, diameter int, sigmaColor, sigmaSpace float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	radius := diameter / 2
	type tap struct {
		dx, dy int
		w      float64
	}
	var taps []tap
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			if d2 > float64(radius*radius) {
				continue
			}
			taps = append(taps, tap{dx, dy, math.Exp(-d2 / (2 * sigmaSpace * sigmaSpace))})
		}
	}
	var colorW [256]float64
	for i := range colorW {
		colorW[i] = math.Exp(-float64(i*i) / (2 * sigmaColor * sigmaColor))
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	parallelRows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				c := int(src.Pix[y*src.Stride+x])
				var sum, norm float64
				for _, t := range taps {
					xx := clampInt(x+t.dx, 0, w-1)
					yy := clampInt(y+t.dy, 0, h-1)
					v := int(src.Pix[yy*src.Stride+xx])
					d := v - c
					if d < 0 {
						d = -d
					}
					wt := t.w * colorW[d]
					sum += wt * float64(v)
					norm += wt
				}
				out.Pix[y*out.Stride+x] = uint8(clampInt(int(math.Round(sum/norm)), 0, 255))
			}
		}
	})
	return out
}

// clahe applies contrast limited adaptive histogram equalization over a
// tilesX x tilesY grid, blending neighbouring tile mappings bilinearly.
func clahe(src *image.Gray, clipLimit float64, tilesX, tilesY int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	tileW := (w + tilesX - 1) / tilesX
	tileH := (h + tilesY - 1) / tilesY
	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, w), min(y0+tileH, h)
			luts[ty*tilesX+tx] = tileLUT(src, x0, y0, x1, y1, clipLimit)
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	parallelRows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			fy := (float64(y)+0.5)/float64(tileH) - 0.5
			ty1 := int(math.Floor(fy))
			ya := fy - float64(ty1)
			ty2 := clampInt(ty1+1, 0, tilesY-1)
			ty1 = clampInt(ty1, 0, tilesY-1)
			for x := 0; x < w; x++ {
				fx := (float64(x)+0.5)/float64(tileW) - 0.5
				tx1 := int(math.Floor(fx))
				xa := fx - float64(tx1)
				tx2 := clampInt(tx1+1, 0, tilesX-1)
				tx1 = clampInt(tx1, 0, tilesX-1)

				v := src.Pix[y*src.Stride+x]
				tl := float64(luts[ty1*tilesX+tx1][v])
				tr := float64(luts[ty1*tilesX+tx2][v])
				bl := float64(luts[ty2*tilesX+tx1][v])
				br := float64(luts[ty2*tilesX+tx2][v])
				val := (1-ya)*((1-xa)*tl+xa*tr) + ya*((1-xa)*bl+xa*br)
				out.Pix[y*out.Stride+x] = uint8(clampInt(int(math.Round(val)), 0, 255))
			}
		}
	})
	return out
}

// tileLUT builds the clipped, equalized mapping for one tile. Counts above the
// clip limit are spread evenly over all bins.
func tileLUT(src *image.Gray, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var lut [256]uint8
	var hist [256]int
	area := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[src.Pix[y*src.Stride+x]]++
			area++
		}
	}
	if area == 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	limit := int(clipLimit * float64(area) / 256)
	if limit < 1 {
		limit = 1
	}
	clipped := 0
	for i := range hist {
		if hist[i] > limit {
			clipped += hist[i] - limit
			hist[i] = limit
		}
	}
	batch := clipped / 256
	residual := clipped - batch*256
	for i := range hist {
		hist[i] += batch
	}
	if residual > 0 {
		step := max(256/residual, 1)
		for i := 0; i < 256 && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}

	scale := 255.0 / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = uint8(clampInt(int(math.Round(float64(sum)*scale)), 0, 255))
	}
	return lut
}

// adaptiveGaussian thresholds each pixel against the Gaussian-weighted mean of
// its block x block neighbourhood minus c. Pixels above that level turn white.
func adaptiveGaussian(src *image.Gray, block int, c float64) *image.Gray {
	if block < 3 {
		block = 3
	}
	if block%2 == 0 {
		block++
	}
	sigma := 0.3*(float64(block-1)*0.5-1) + 0.8
	mean := gaussianBlur(src, gaussianKernel(block, sigma))
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			level := math.Round(mean[i]) - c
			if float64(src.Pix[y*src.Stride+x]) > level {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

func gaussianKernel(size int, sigma float64) []float64 {
	k := make([]float64, size)
	half := size / 2
	sum := 0.0
	for i := range k {
		d := float64(i - half)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// gaussianBlur runs a separable convolution with replicated borders and
// returns the blurred values row-major.
func gaussianBlur(src *image.Gray, k []float64) []float64 {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	half := len(k) / 2
	tmp := make([]float64, w*h)
	parallelRows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				s := 0.0
				for i, kv := range k {
					xx := clampInt(x+i-half, 0, w-1)
					s += kv * float64(src.Pix[y*src.Stride+xx])
				}
				tmp[y*w+x] = s
			}
		}
	})
	out := make([]float64, w*h)
	parallelRows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				s := 0.0
				for i, kv := range k {
					yy := clampInt(y+i-half, 0, h-1)
					s += kv * tmp[yy*w+x]
				}
				out[y*w+x] = s
			}
		}
	})
	return out
}

// otsuThreshold returns the level that maximizes between-class variance.
func otsuThreshold(src *image.Gray) uint8 {
	var hist [256]float64
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hist[src.Pix[y*src.Stride+x]]++
		}
	}
	total := float64(w * h)
	sumAll := 0.0
	for i, n := range hist {
		sumAll += float64(i) * n
	}
	var sumB, wB, best float64
	threshold := 0
	for i := 0; i < 256; i++ {
		wB += hist[i]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * hist[i]
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = i
		}
	}
	return uint8(threshold)
}
