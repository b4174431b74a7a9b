package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const recordVersionV1 = 1

// Fast-tier wire format, big-endian:
//
//	version(1) createdAt(8) expiresAt(8) lastActivityAt(8)
//	then length-prefixed id, userID, tenantID, email, role, status,
//	ipAddress, userAgent, deviceFingerprint.
func encodeRecord(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	for _, ts := range []int64{s.CreatedAt.Unix(), s.ExpiresAt.Unix(), s.LastActivityAt.Unix()} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	fields := []string{
		s.ID, s.UserID, s.TenantID, s.Email, s.Role, s.Status,
		s.IPAddress, s.UserAgent, s.DeviceFingerprint,
	}
	for _, field := range fields {
		if len(field) > 65535 {
			return nil, errors.New("session record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	var createdAt, expiresAt, lastActivityAt int64
	for _, ts := range []*int64{&createdAt, &expiresAt, &lastActivityAt} {
		if err := binary.Read(reader, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	s := &Session{
		CreatedAt:      time.Unix(createdAt, 0).UTC(),
		ExpiresAt:      time.Unix(expiresAt, 0).UTC(),
		LastActivityAt: time.Unix(lastActivityAt, 0).UTC(),
	}

	fields := []*string{
		&s.ID, &s.UserID, &s.TenantID, &s.Email, &s.Role, &s.Status,
		&s.IPAddress, &s.UserAgent, &s.DeviceFingerprint,
	}
	for _, field := range fields {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	return s, nil
}
