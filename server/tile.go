package server

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/png"
)

const tileHeaderSize = 16

var tileEncoder = png.Encoder{CompressionLevel: png.BestSpeed}

// EncodeTile encodes the tile region of img as a binary websocket message:
// the tile's x, y, width and height as big-endian uint32s followed by the
// tile as a PNG.
func EncodeTile(img *image.NRGBA, tile image.Rectangle) ([]byte, error) {
	var b bytes.Buffer
	var hdr [tileHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:], uint32(tile.Min.X))
	binary.BigEndian.PutUint32(hdr[4:], uint32(tile.Min.Y))
	binary.BigEndian.PutUint32(hdr[8:], uint32(tile.Dx()))
	binary.BigEndian.PutUint32(hdr[12:], uint32(tile.Dy()))
	b.Write(hdr[:])

	if err := tileEncoder.Encode(&b, img.SubImage(tile)); err != nil {
		return nil, fmt.Errorf("encode tile %v: %w", tile, err)
	}
	return b.Bytes(), nil
}

// DecodeTile is the inverse of EncodeTile. The returned image has its
// origin at (0,0).
func DecodeTile(msg []byte) (image.Rectangle, image.Image, error) {
	if len(msg) < tileHeaderSize {
		return image.Rectangle{}, nil, errors.New("tile message too short")
	}

	x := int(binary.BigEndian.Uint32(msg[0:]))
	y := int(binary.BigEndian.Uint32(msg[4:]))
	w := int(binary.BigEndian.Uint32(msg[8:]))
	h := int(binary.BigEndian.Uint32(msg[12:]))
	tile := image.Rect(x, y, x+w, y+h)

	img, err := png.Decode(bytes.NewReader(msg[tileHeaderSize:]))
	if err != nil {
		return image.Rectangle{}, nil, fmt.Errorf("decode tile %v: %w", tile, err)
	}
	if img.Bounds().Size() != tile.Size() {
		return image.Rectangle{}, nil, fmt.Errorf("tile %v carries a %v image", tile, img.Bounds().Size())
	}
	return tile, img, nil
}
