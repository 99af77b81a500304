package capture

// scaledDims applies a capture scale to client-area dimensions. Results are
// floored and clamped to at least 2 px per axis so the encoder never sees a
// degenerate size.
func scaledDims(w, h int, scale float64) (int, int) {
	if scale <= 0 || scale >= 1.0 {
		return w, h
	}
	sw := int(float64(w) * scale)
	sh := int(float64(h) * scale)
	if sw < 2 {
		sw = 2
	}
	if sh < 2 {
		sh = 2
	}
	return sw, sh
}

// scaleBGRA downsamples src (sw x sh BGRA) into dst (dw x dh BGRA) with
// nearest-neighbor sampling. dst must be dw*dh*4 bytes. Nearest is chosen
// over filtering because this runs per frame on the capture goroutine and
// the encoder's own scaler owns quality.
func scaleBGRA(src []byte, sw, sh int, dst []byte, dw, dh int) {
	for dy := 0; dy < dh; dy++ {
		sy := dy * sh / dh
		srcRow := sy * sw * 4
		dstRow := dy * dw * 4
		for dx := 0; dx < dw; dx++ {
			sx := dx * sw / dw
			copy(dst[dstRow+dx*4:dstRow+dx*4+4], src[srcRow+sx*4:srcRow+sx*4+4])
		}
	}
}

// rgbaToBGRA swaps the R and B channels in place. The screenshot fallback
// returns RGBA while the encoder pipeline expects BGRA, matching what DXGI
// produces natively.
func rgbaToBGRA(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
