package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	sessionFormatVersionCurrent = 1

	maxUserIDLen    = 255
	maxIPLen        = 255
	maxUserAgentLen = 1024
)

// ErrInvalidSessionVersion is returned by Decode for unknown blob versions.
var ErrInvalidSessionVersion = errors.New("invalid session version")

// Encode serializes s as:
//
//	version(1) | len(1) userID | len(1) ip | len(2) userAgent | createdAt(8) | expiresAt(8)
//
// Integers are big-endian. A user agent longer than 1024 bytes is truncated.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if s.UserID == "" {
		return nil, errors.New("userID is required")
	}
	if len(s.UserID) > maxUserIDLen {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	if len(s.IP) > maxIPLen {
		return nil, errors.New("ip too long")
	}
	buf.WriteByte(byte(len(s.IP)))
	buf.WriteString(s.IP)

	ua := s.UserAgent
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(ua))); err != nil {
		return nil, err
	}
	buf.WriteString(ua)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, ErrInvalidSessionVersion
	}

	s := &Session{}

	userID, err := readShortString(reader)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, errors.New("empty userID")
	}
	s.UserID = userID

	if s.IP, err = readShortString(reader); err != nil {
		return nil, err
	}

	var uaLen uint16
	if err := binary.Read(reader, binary.BigEndian, &uaLen); err != nil {
		return nil, err
	}
	if uaLen > maxUserAgentLen {
		return nil, errors.New("user agent too long")
	}
	ua := make([]byte, uaLen)
	if _, err := io.ReadFull(reader, ua); err != nil {
		return nil, err
	}
	s.UserAgent = string(ua)

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session blob")
	}

	return s, nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
