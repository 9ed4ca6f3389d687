package backend

import (
	"bytes"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

// ResizePreview decodes an image stream and scales it down to fit within
// opts. Drivers without a native preview endpoint use it.
func ResizePreview(r io.Reader, mimeType string, opts PreviewOptions) (*Blob, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, NewError(400, "storage_file_type_unsupported", fmt.Sprintf("decode image: %v", err))
	}
	if opts.Width > 0 || opts.Height > 0 {
		img = imaging.Fit(img, dimension(opts.Width, img.Bounds().Dx()), dimension(opts.Height, img.Bounds().Dy()), imaging.Lanczos)
	}

	format, contentType := imaging.JPEG, "image/jpeg"
	switch mimeType {
	case "image/png":
		format, contentType = imaging.PNG, "image/png"
	case "image/gif":
		format, contentType = imaging.GIF, "image/gif"
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return &Blob{
		Body:        io.NopCloser(&buf),
		ContentType: contentType,
		Size:        int64(buf.Len()),
	}, nil
}

func dimension(requested, actual int) int {
	if requested <= 0 {
		return actual
	}
	return requested
}
