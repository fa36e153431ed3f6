package custom_workflow

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/go-errors/errors"
)

// 89 50 4E 47 0D 0A 1A 0A
const pngSignature = "\x89PNG\r\n\x1a\n"

const (
	chunkIHDR = "IHDR"
	chunkTEXT = "tEXt"
	chunkIEND = "IEND"
)

// maxChunkLength guards against corrupt length fields.
const maxChunkLength = 64 << 20

// A chunk is a big-endian uint32 length, a 4 byte type, the data and a
// CRC32 of type and data. The CRC is not checked.
type chunk struct {
	Type string
	Data []byte
}

func readChunk(r io.Reader) (*chunk, error) {
	var header [8]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:4])
	if length > maxChunkLength {
		return nil, errors.Errorf("chunk %q too large: %d bytes", header[4:], length)
	}

	c := &chunk{
		Type: string(header[4:]),
		Data: make([]byte, length),
	}

	if _, err := io.ReadFull(r, c.Data); err != nil {
		return nil, errors.WrapPrefix(err, "reading "+c.Type+" chunk", 0)
	}

	var crc [4]byte

	if _, err := io.ReadFull(r, crc[:]); err != nil {
		return nil, errors.WrapPrefix(err, "reading "+c.Type+" crc", 0)
	}

	return c, nil
}

// textChunks returns the keyword/text pairs of every tEXt chunk. The first
// occurrence of a keyword wins.
func textChunks(data []byte) (map[string]string, error) {
	r := bytes.NewReader(data)

	signature := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, signature); err != nil || string(signature) != pngSignature {
		return nil, ErrNotPNG
	}

	texts := make(map[string]string)

	for i := 0; ; i++ {
		c, err := readChunk(r)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, err
		}

		if i == 0 && c.Type != chunkIHDR {
			return nil, errors.Errorf("first chunk is %q, expected %s", c.Type, chunkIHDR)
		}

		if c.Type == chunkIEND {
			break
		}

		if c.Type != chunkTEXT {
			continue
		}

		keyword, text, found := bytes.Cut(c.Data, []byte{0})
		if !found {
			continue
		}

		if _, seen := texts[string(keyword)]; !seen {
			texts[string(keyword)] = string(text)
		}
	}

	return texts, nil
}
