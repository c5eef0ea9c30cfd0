// Package imaging implements the bounded two-pass compression step of the
// scan pipeline. The degradation policy is deliberately fixed: one resize at
// standard quality, at most one more at reduced quality, then give up. It is
// not an iterative search.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// MaxPayloadBytes is the hard transfer ceiling. Anything still larger
	// after both passes is rejected.
	MaxPayloadBytes = 6 << 20

	firstPassEdge     = 1280
	firstPassQuality  = 75
	secondPassEdge    = 1024
	secondPassQuality = 70

	// secondPassThreshold triggers the degraded second pass: 1.5 MB.
	secondPassThreshold = 3 << 19
)

// Reason classifies a sizer failure.
type Reason string

const (
	ReasonUnreadable Reason = "source_unreadable"
	ReasonTooLarge   Reason = "payload_too_large"
)

// Error is the structured sizer failure.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("imaging: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("imaging: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is a compressed JPEG payload guaranteed to be under the limit.
type Result struct {
	Data    []byte
	Width   int
	Height  int
	Quality int
	Passes  int
}

// Sizer holds the compression constants. The zero value is not usable; use
// NewSizer. Fields are exported so tests can shrink the thresholds instead
// of synthesizing multi-megabyte fixtures.
type Sizer struct {
	FirstPassEdge       int
	FirstPassQuality    int
	SecondPassEdge      int
	SecondPassQuality   int
	SecondPassThreshold int
	MaxBytes            int
}

func NewSizer() *Sizer {
	return &Sizer{
		FirstPassEdge:       firstPassEdge,
		FirstPassQuality:    firstPassQuality,
		SecondPassEdge:      secondPassEdge,
		SecondPassQuality:   secondPassQuality,
		SecondPassThreshold: secondPassThreshold,
		MaxBytes:            MaxPayloadBytes,
	}
}

// Compress decodes src and re-encodes it under the configured byte ceiling.
// Pass 1 scales the longest edge to FirstPassEdge at FirstPassQuality; if
// the encoding exceeds SecondPassThreshold, pass 2 retries at SecondPassEdge
// and SecondPassQuality. A result still over MaxBytes fails with
// ReasonTooLarge; there is never a third pass.
func (s *Sizer) Compress(src []byte) (*Result, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, &Error{Reason: ReasonUnreadable, Err: err}
	}

	res, err := s.encodePass(img, s.FirstPassEdge, s.FirstPassQuality)
	if err != nil {
		return nil, err
	}
	res.Passes = 1
	if len(res.Data) <= s.SecondPassThreshold {
		return res, nil
	}

	res, err = s.encodePass(img, s.SecondPassEdge, s.SecondPassQuality)
	if err != nil {
		return nil, err
	}
	res.Passes = 2
	if len(res.Data) > s.MaxBytes {
		return nil, &Error{Reason: ReasonTooLarge}
	}
	return res, nil
}

func (s *Sizer) encodePass(img image.Image, maxEdge, quality int) (*Result, error) {
	scaled := scaleToEdge(img, maxEdge)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: quality}); err != nil {
		return nil, &Error{Reason: ReasonUnreadable, Err: err}
	}

	b := scaled.Bounds()
	return &Result{
		Data:    buf.Bytes(),
		Width:   b.Dx(),
		Height:  b.Dy(),
		Quality: quality,
	}, nil
}

// scaleToEdge shrinks img so its longest edge is maxEdge. Images already
// within bounds are returned unscaled; the sizer never upscales.
func scaleToEdge(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxEdge {
		return img
	}

	scale := float64(maxEdge) / float64(longest)
	dw := int(float64(w)*scale + 0.5)
	dh := int(float64(h)*scale + 0.5)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
