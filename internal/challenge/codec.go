package challenge

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
//	version(1) used(1) attempts(2) createdAt(8) expiresAt(8)
//	codeHash(32) then length-prefixed id, token, email, userID,
//	tenantID, ipAddress, userAgent.
func encodeRecord(ch *Challenge) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	if ch.Used {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if ch.Attempts < 0 || ch.Attempts > 65535 {
		return nil, errors.New("challenge attempts out of range")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(ch.Attempts)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, ch.CreatedAt.Unix()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, ch.ExpiresAt.Unix()); err != nil {
		return nil, err
	}
	buf.Write(ch.CodeHash[:])

	for _, field := range []string{ch.ID, ch.Token, ch.Email, ch.UserID, ch.TenantID, ch.IPAddress, ch.UserAgent} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Challenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	used, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	ch := &Challenge{Used: used == 1}

	var attempts uint16
	if err := binary.Read(reader, binary.BigEndian, &attempts); err != nil {
		return nil, err
	}
	ch.Attempts = int(attempts)

	var createdAt, expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	ch.CreatedAt = time.Unix(createdAt, 0).UTC()
	ch.ExpiresAt = time.Unix(expiresAt, 0).UTC()

	if _, err := io.ReadFull(reader, ch.CodeHash[:]); err != nil {
		return nil, err
	}

	for _, field := range []*string{&ch.ID, &ch.Token, &ch.Email, &ch.UserID, &ch.TenantID, &ch.IPAddress, &ch.UserAgent} {
		if *field, err = readString(reader); err != nil {
			return nil, err
		}
	}

	return ch, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("challenge record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return "", err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
