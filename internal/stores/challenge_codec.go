package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	slotVersionV1 = 1

	slotFlagHasCurrent = 1 << 0
	recordFlagUsed     = 1 << 0
)

var errSlotCorrupt = errors.New("challenge slot corrupt")

func encodeSlot(slot *challengeSlot) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(slotVersionV1)

	var flags byte
	if slot.Current != nil {
		flags |= slotFlagHasCurrent
	}
	buf.WriteByte(flags)

	if slot.Current != nil {
		if err := encodeRecord(&buf, slot.Current); err != nil {
			return nil, err
		}
	}

	if len(slot.Retired) > math.MaxUint16 {
		return nil, errors.New("challenge slot retired list too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(slot.Retired))); err != nil {
		return nil, err
	}
	for _, r := range slot.Retired {
		buf.Write(r.Hash[:])
		if err := binary.Write(&buf, binary.BigEndian, r.RetiredAt); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func encodeRecord(buf *bytes.Buffer, record *ChallengeRecord) error {
	var flags byte
	if record.Used {
		flags |= recordFlagUsed
	}
	buf.WriteByte(flags)

	if err := binary.Write(buf, binary.BigEndian, record.Attempts); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.BigEndian, record.CreatedAt); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return err
	}
	for _, s := range []string{record.ID, record.Phone, record.Purpose} {
		if err := writeString16(buf, s); err != nil {
			return err
		}
	}
	buf.Write(record.CodeHash[:])

	if uint64(len(record.Payload)) > math.MaxUint32 {
		return errors.New("challenge payload too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(record.Payload))); err != nil {
		return err
	}
	buf.Write(record.Payload)
	return nil
}

func decodeSlot(data []byte) (*challengeSlot, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errSlotCorrupt
	}
	if version != slotVersionV1 {
		return nil, errors.New("invalid challenge slot version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, errSlotCorrupt
	}

	slot := &challengeSlot{}
	if flags&slotFlagHasCurrent != 0 {
		slot.Current, err = decodeRecord(reader)
		if err != nil {
			return nil, err
		}
	}

	var retiredCount uint16
	if err := binary.Read(reader, binary.BigEndian, &retiredCount); err != nil {
		return nil, errSlotCorrupt
	}
	if retiredCount > 0 {
		slot.Retired = make([]retiredCode, retiredCount)
	}
	for i := range slot.Retired {
		if _, err := io.ReadFull(reader, slot.Retired[i].Hash[:]); err != nil {
			return nil, errSlotCorrupt
		}
		if err := binary.Read(reader, binary.BigEndian, &slot.Retired[i].RetiredAt); err != nil {
			return nil, errSlotCorrupt
		}
	}

	return slot, nil
}

func decodeRecord(reader *bytes.Reader) (*ChallengeRecord, error) {
	flags, err := reader.ReadByte()
	if err != nil {
		return nil, errSlotCorrupt
	}

	record := &ChallengeRecord{Used: flags&recordFlagUsed != 0}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, errSlotCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, errSlotCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, errSlotCorrupt
	}
	if record.ID, err = readString16(reader); err != nil {
		return nil, err
	}
	if record.Phone, err = readString16(reader); err != nil {
		return nil, err
	}
	if record.Purpose, err = readString16(reader); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, errSlotCorrupt
	}

	var payloadLen uint32
	if err := binary.Read(reader, binary.BigEndian, &payloadLen); err != nil {
		return nil, errSlotCorrupt
	}
	if int64(payloadLen) > int64(reader.Len()) {
		return nil, errSlotCorrupt
	}
	if payloadLen > 0 {
		record.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(reader, record.Payload); err != nil {
			return nil, errSlotCorrupt
		}
	}

	return record, nil
}

func writeString16(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.New("challenge field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString16(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", errSlotCorrupt
	}
	if int(n) > reader.Len() {
		return "", errSlotCorrupt
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", errSlotCorrupt
	}
	return string(b), nil
}
