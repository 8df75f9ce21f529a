package preprocess

import (
	"image"
	"image/color"
	"math"
	"sort"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// darkThreshold separates ink from background in 8-bit gray.
const darkThreshold = 128

func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// estimateSkew searches [-maxDeg, maxDeg] for the angle whose row projection of
// dark pixels is sharpest. Text lines tilted by that angle become horizontal
// when the image is rotated by its negation.
func estimateSkew(img *image.Gray, maxDeg, stepDeg float64) float64 {
	if maxDeg <= 0 || stepDeg <= 0 {
		return 0
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := 1
	if w > 800 {
		stride = (w + 799) / 800
	}

	type point struct{ x, y float64 }
	var pts []point
	for y := 0; y < h; y += stride {
		for x := 0; x < w; x += stride {
			if img.GrayAt(b.Min.X+x, b.Min.Y+y).Y < darkThreshold {
				pts = append(pts, point{float64(x), float64(y)})
			}
		}
	}
	if len(pts) < 50 {
		return 0
	}

	offset := float64(w) + 1
	bins := make([]int, (h+2*w)/stride+4)
	best, bestScore := 0.0, -1.0
	steps := int(math.Round(2 * maxDeg / stepDeg))
	for i := 0; i <= steps; i++ {
		deg := -maxDeg + float64(i)*stepDeg
		rad := deg * math.Pi / 180
		sin, cos := math.Sin(rad), math.Cos(rad)
		for j := range bins {
			bins[j] = 0
		}
		for _, p := range pts {
			yr := p.y*cos - p.x*sin + offset
			idx := int(yr) / stride
			if idx >= 0 && idx < len(bins) {
				bins[idx]++
			}
		}
		var score float64
		for _, c := range bins {
			score += float64(c) * float64(c)
		}
		if score > bestScore || (score == bestScore && math.Abs(deg) < math.Abs(best)) {
			best, bestScore = deg, score
		}
	}
	if math.Abs(best) < stepDeg/2 {
		return 0
	}
	return best
}

// rotate turns the image by -deg around its center, filling uncovered
// pixels with white.
func rotate(src *image.Gray, deg float64) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)

	rad := deg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := float64(b.Dx())/2, float64(b.Dy())/2
	s2d := f64.Aff3{
		cos, sin, cx - cx*cos - cy*sin,
		-sin, cos, cy + cx*sin - cy*cos,
	}
	draw.BiLinear.Transform(dst, s2d, src, b, draw.Over, nil)
	return dst
}

// medianFilter applies a 3x3 median filter; border pixels are copied.
func medianFilter(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	copy(dst.Pix, grayPixels(src))
	if w < 3 || h < 3 {
		return dst
	}
	var win [9]uint8
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					win[n] = src.GrayAt(b.Min.X+x+dx, b.Min.Y+y+dy).Y
					n++
				}
			}
			dst.Pix[y*dst.Stride+x] = median9(win)
		}
	}
	return dst
}

func median9(win [9]uint8) uint8 {
	s := win[:]
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	return s[4]
}

// grayPixels returns the pixel rows of src packed without stride padding.
func grayPixels(src *image.Gray) []uint8 {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		off := src.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out[y*w:(y+1)*w], src.Pix[off:off+w])
	}
	return out
}

// stretchContrast maps the [lo, hi] percentile range of the histogram onto
// the full 0..255 range. Flat images are returned unchanged.
func stretchContrast(src *image.Gray, lo, hi float64) *image.Gray {
	b := src.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return src
	}
	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[src.GrayAt(x, y).Y]++
		}
	}
	low := percentile(hist, total, lo)
	high := percentile(hist, total, hi)
	if high-low < 10 {
		return src
	}

	var lut [256]uint8
	span := float64(high - low)
	for v := 0; v < 256; v++ {
		scaled := (float64(v) - float64(low)) * 255 / span
		lut[v] = uint8(math.Max(0, math.Min(255, math.Round(scaled))))
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.Pix[y*dst.Stride+x] = lut[src.GrayAt(b.Min.X+x, b.Min.Y+y).Y]
		}
	}
	return dst
}

func percentile(hist [256]int, total int, q float64) int {
	target := int(math.Ceil(q * float64(total)))
	if target < 1 {
		target = 1
	}
	acc := 0
	for v, c := range hist {
		acc += c
		if acc >= target {
			return v
		}
	}
	return 255
}

// scale resizes the image by factor with Catmull-Rom resampling.
func scale(src *image.Gray, factor float64) *image.Gray {
	b := src.Bounds()
	w := int(math.Round(float64(b.Dx()) * factor))
	h := int(math.Round(float64(b.Dy()) * factor))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
