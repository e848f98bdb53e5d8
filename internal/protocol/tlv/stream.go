package tlv

import (
	"errors"
	"io"
)

// ReadStreamFrame reads one whole frame from r. It returns io.EOF only when
// r is exhausted before the first header byte; a partial header or payload
// is ErrTruncatedFrame.
func ReadStreamFrame(r io.Reader) (Frame, error) {
	var hb [HeaderLen]byte
	n, err := io.ReadFull(r, hb[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortFrameHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(hb[:])
	if err != nil {
		return Frame{}, err
	}

	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{}, ErrShortFramePayload
			}
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteStreamFrame writes f to w. Header.Length is taken from the payload.
func WriteStreamFrame(w io.Writer, f Frame) error {
	buf, err := EncodeFrame(f.KeyID, f.Tag, f.Payload)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Bytes re-encodes f as a standalone frame.
func (f Frame) Bytes() ([]byte, error) {
	return EncodeFrame(f.KeyID, f.Tag, f.Payload)
}
