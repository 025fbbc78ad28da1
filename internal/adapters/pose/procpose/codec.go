package procpose

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	frameHeaderSize = 4
	maxFrameSize    = 64 << 20
)

// request is one crop sent to the worker process.
type request struct {
	FrameData []byte `msgpack:"frame_data"`
	Width     int    `msgpack:"width"`
	Height    int    `msgpack:"height"`
	Format    string `msgpack:"format"`
}

type wireLandmark struct {
	X          float64  `msgpack:"x"`
	Y          float64  `msgpack:"y"`
	Z          float64  `msgpack:"z"`
	Visibility *float64 `msgpack:"visibility,omitempty"`
}

// response is what the worker answers for one request.
type response struct {
	Landmarks []wireLandmark `msgpack:"landmarks"`
	Error     string         `msgpack:"error,omitempty"`
}

func newRequest(img image.Image) request {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return request{
		FrameData: rgba.Pix,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Format:    "rgba",
	}
}

// writeFrame writes v as a 4-byte big-endian length prefix followed by msgpack.
func writeFrame(w io.Writer, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed msgpack message into v.
func readFrame(r io.Reader, v interface{}) error {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("read length: %w", err)
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}
