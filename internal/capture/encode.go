package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when asked to encode a nil or empty Mat.
var ErrEmptyFrame = errors.New("frame is empty")

// EncodeJPEG compresses frame to JPEG at the given quality (1-100).
func EncodeJPEG(frame *gocv.Mat, quality int) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return bytes.Clone(buf.GetBytes()), nil
}

// EncodeBase64JPEG returns the frame as base64 JPEG, the image format
// carried by sign frames.
func EncodeBase64JPEG(frame *gocv.Mat, quality int) (string, error) {
	data, err := EncodeJPEG(frame, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
