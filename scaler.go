package media

import "image"

// FitSize returns the largest even size that fits within maxW x maxH while
// keeping the source aspect ratio. Frames are never upscaled; a zero
// bound leaves that dimension unconstrained.
func FitSize(srcW, srcH, maxW, maxH int) (w, h int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}
	if maxW <= 0 {
		maxW = srcW
	}
	if maxH <= 0 {
		maxH = srcH
	}
	w, h = srcW, srcH
	if w > maxW {
		h = h * maxW / w
		w = maxW
	}
	if h > maxH {
		w = w * maxH / h
		h = maxH
	}
	return max(w&^1, 2), max(h&^1, 2)
}

// frameScaler converts I420 frames into a reusable 4:2:0 image of a fixed
// size. The image is overwritten by the next call to scale.
type frameScaler struct {
	dstW, dstH int
	img        *image.YCbCr
}

func newFrameScaler(dstW, dstH int) *frameScaler {
	return &frameScaler{
		dstW: dstW,
		dstH: dstH,
		img:  image.NewYCbCr(image.Rect(0, 0, dstW, dstH), image.YCbCrSubsampleRatio420),
	}
}

// scale writes frame into the scaler's image and returns it. Only I420
// frames are supported.
func (s *frameScaler) scale(frame *VideoFrame) (*image.YCbCr, error) {
	if frame.Format != PixelFormatI420 || len(frame.Data) < 3 || len(frame.Stride) < 3 {
		return nil, ErrNotSupported
	}
	cw, ch := (frame.Width+1)/2, (frame.Height+1)/2
	scalePlane(frame.Data[0], frame.Stride[0], frame.Width, frame.Height,
		s.img.Y, s.img.YStride, s.dstW, s.dstH)
	scalePlane(frame.Data[1], frame.Stride[1], cw, ch,
		s.img.Cb, s.img.CStride, (s.dstW+1)/2, (s.dstH+1)/2)
	scalePlane(frame.Data[2], frame.Stride[2], cw, ch,
		s.img.Cr, s.img.CStride, (s.dstW+1)/2, (s.dstH+1)/2)
	return s.img, nil
}

// scalePlane resamples one plane with bilinear filtering in 16.16 fixed
// point. Equal sizes degrade to a row copy.
func scalePlane(src []byte, srcStride, srcW, srcH int, dst []byte, dstStride, dstW, dstH int) {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}
	if srcW == dstW && srcH == dstH {
		for y := range dstH {
			copy(dst[y*dstStride:y*dstStride+dstW], src[y*srcStride:y*srcStride+srcW])
		}
		return
	}

	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := range dstH {
		sy := y * yRatio
		y0 := sy >> 16
		y1 := min(y0+1, srcH-1)
		fy := sy & 0xFFFF
		row0 := src[y0*srcStride:]
		row1 := src[y1*srcStride:]
		out := dst[y*dstStride:]

		for x := range dstW {
			sx := x * xRatio
			x0 := sx >> 16
			x1 := min(x0+1, srcW-1)
			fx := sx & 0xFFFF

			top := (int(row0[x0])*(0x10000-fx) + int(row0[x1])*fx) >> 16
			bottom := (int(row1[x0])*(0x10000-fx) + int(row1[x1])*fx) >> 16
			out[x] = byte((top*(0x10000-fy) + bottom*fy) >> 16)
		}
	}
}
