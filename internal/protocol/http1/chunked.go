package http1

import (
	"bytes"
	"io"

	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/hexconv"
)

type chunkedParserState uint8

const (
	eChunkLength chunkedParserState = iota
	eChunkExt
	eChunkLengthCR
	eChunkBody
	eChunkBodyDone
	eChunkBodyCRLF
	eChunkTrailer
	eChunkTrailerCRLF
	eChunkTrailerFieldLine
)

// maxChunkLengthDigits makes the chunk length fit into uint64 without overflowing.
const maxChunkLengthDigits = 16

type chunkedParser struct {
	state        chunkedParserState
	lengthDigits uint8
	chunkLength  uint64
	// skipped counts the bytes of extensions of the current chunk or of the whole trailer
	// section, as neither of them is stored anywhere.
	skipped int
	limit   int
}

func newChunkedParser(limit int) chunkedParser {
	return chunkedParser{state: eChunkLength, limit: limit}
}

func (c *chunkedParser) reset() {
	*c = newChunkedParser(c.limit)
}

// Parse returns a chunk when it's ready, nil otherwise. io.EOF signals that the body
// is complete. The parser resets automatically.
func (c *chunkedParser) Parse(data []byte) (chunk, extra []byte, err error) {
	switch c.state {
	case eChunkLength:
		goto chunkLength
	case eChunkExt:
		goto chunkExt
	case eChunkLengthCR:
		goto chunkLengthCR
	case eChunkBody:
		goto chunkBody
	case eChunkBodyDone:
		goto chunkBodyDone
	case eChunkBodyCRLF:
		goto chunkBodyCRLF
	case eChunkTrailer:
		goto trailer
	case eChunkTrailerCRLF:
		goto chunkTrailerCRLF
	case eChunkTrailerFieldLine:
		goto chunkTrailerFieldLine
	default:
		panic("unreachable code")
	}

chunkLength:
	for i := 0; i < len(data); i++ {
		switch char := data[i]; char {
		case '\r':
			data = data[i+1:]
			goto chunkLengthCR
		case '\n':
			data = data[i:]
			goto chunkLengthCR
		case ';', ' ', '\t':
			data = data[i+1:]
			goto chunkExt
		default:
			val := hexconv.Halfbyte[char]
			if val == hexconv.Invalid {
				return nil, nil, status.ErrBadChunk
			}

			c.chunkLength = (c.chunkLength << 4) | uint64(val)
			if c.lengthDigits++; c.lengthDigits > maxChunkLengthDigits {
				return nil, nil, status.ErrBadChunk
			}
		}
	}

	c.state = eChunkLength
	return nil, nil, nil

chunkExt:
	{
		if c.lengthDigits == 0 {
			return nil, nil, status.ErrBadChunk
		}

		// extensions carry nothing we're interested in, so they're skipped entirely.
		boundary := bytes.IndexByte(data, '\n')
		if boundary == -1 {
			if c.skipped += len(data); c.skipped > c.limit {
				return nil, nil, status.ErrBadChunk
			}

			c.state = eChunkExt
			return nil, nil, nil
		}

		if c.skipped += boundary; c.skipped > c.limit {
			return nil, nil, status.ErrBadChunk
		}

		data = data[boundary+1:]
		c.skipped = 0
		if c.chunkLength == 0 {
			goto trailer
		}

		goto chunkBody
	}

chunkLengthCR:
	if len(data) == 0 {
		c.state = eChunkLengthCR
		return nil, nil, nil
	}

	if data[0] != '\n' || c.lengthDigits == 0 {
		return nil, nil, status.ErrBadChunk
	}

	data = data[1:]

	if c.chunkLength == 0 {
		goto trailer
	}

	goto chunkBody

chunkBody:
	{
		n := min(c.chunkLength, uint64(len(data)))
		c.chunkLength -= n
		chunk = data[:n]

		if c.chunkLength == 0 {
			c.state = eChunkBodyDone
		} else {
			c.state = eChunkBody
		}

		return chunk, data[n:], nil
	}

chunkBodyDone:
	if len(data) == 0 {
		c.state = eChunkBodyDone
		return nil, nil, nil
	}

	c.lengthDigits = 0
	switch data[0] {
	case '\r':
		data = data[1:]
		goto chunkBodyCRLF
	case '\n':
		data = data[1:]
		goto chunkLength
	default:
		return nil, nil, status.ErrBadChunk
	}

chunkBodyCRLF:
	if len(data) == 0 {
		c.state = eChunkBodyCRLF
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	data = data[1:]
	goto chunkLength

trailer:
	if len(data) == 0 {
		c.state = eChunkTrailer
		return nil, nil, nil
	}

	switch data[0] {
	case '\r':
		data = data[1:]
		goto chunkTrailerCRLF
	case '\n':
		c.reset()
		return nil, data[1:], io.EOF
	default:
		// we've got some field lines
		goto chunkTrailerFieldLine
	}

chunkTrailerCRLF:
	if len(data) == 0 {
		c.state = eChunkTrailerCRLF
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	c.reset()
	return nil, data[1:], io.EOF

chunkTrailerFieldLine:
	{
		boundary := bytes.IndexByte(data, '\n')
		if boundary == -1 {
			if c.skipped += len(data); c.skipped > c.limit {
				return nil, nil, status.ErrTrailerTooLarge
			}

			c.state = eChunkTrailerFieldLine
			return nil, nil, nil
		}

		if c.skipped += boundary + 1; c.skipped > c.limit {
			return nil, nil, status.ErrTrailerTooLarge
		}

		data = data[boundary+1:]
		goto trailer
	}
}
