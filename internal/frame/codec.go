package frame

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Wire format constants.
const (
	StartByte       byte = 0x68
	ProtocolVersion byte = 0x01

	// MaxIDLength bounds both the device id and the device message id.
	MaxIDLength = 64

	// headerSize is start + version + device type.
	headerSize = 4

	// minFrameSize is the smallest well-formed frame: header, two one-byte
	// ids with their lengths, timestamp, empty record list, checksum.
	minFrameSize = headerSize + 2 + 2 + 4 + 1 + 1

	maxRecords  = math.MaxUint8
	maxReadings = math.MaxUint8
)

// Parse decodes one frame body (without the stream length prefix).
//
// Parameters:
//   - raw: Frame bytes, starting with StartByte and ending with the checksum
//
// Returns:
//   - *Message: Decoded message
//   - error: Wraps ErrMalformedFrame on any structural problem
func Parse(raw []byte) (*Message, error) {
	if len(raw) < minFrameSize {
		return nil, fmt.Errorf("%w: too short (%d bytes, need at least %d)", ErrMalformedFrame, len(raw), minFrameSize)
	}

	body := raw[:len(raw)-1]
	if want, got := checksum(body), raw[len(raw)-1]; want != got {
		return nil, fmt.Errorf("%w: checksum 0x%02x, want 0x%02x", ErrMalformedFrame, got, want)
	}

	if body[0] != StartByte {
		return nil, fmt.Errorf("%w: start byte 0x%02x", ErrMalformedFrame, body[0])
	}
	if body[1] != ProtocolVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedFrame, body[1])
	}

	msg := &Message{
		DeviceType: DeviceType(binary.BigEndian.Uint16(body[2:4])),
	}
	if msg.DeviceType == 0 {
		return nil, fmt.Errorf("%w: missing device type", ErrMalformedFrame)
	}

	r := reader{buf: body, off: headerSize}

	var err error
	if msg.DeviceID, err = r.id("device id"); err != nil {
		return nil, err
	}
	if msg.DeviceMessageID, err = r.id("message id"); err != nil {
		return nil, err
	}

	ts, ok := r.readUint32()
	if !ok {
		return nil, fmt.Errorf("%w: truncated timestamp", ErrMalformedFrame)
	}
	if ts != 0 {
		msg.CapturedAt = time.Unix(int64(ts), 0).UTC()
	}

	count, ok := r.readByte()
	if !ok {
		return nil, fmt.Errorf("%w: missing record count", ErrMalformedFrame)
	}

	msg.Records = make([]DataRecord, 0, count)
	for i := 0; i < int(count); i++ {
		rec, err := r.record(i)
		if err != nil {
			return nil, err
		}
		msg.Records = append(msg.Records, rec)
	}

	if r.off != len(body) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedFrame, len(body)-r.off)
	}

	return msg, nil
}

// Encode renders a Message in the wire format, including the checksum.
// A zero CapturedAt is encoded as 0.
//
// Returns:
//   - []byte: Frame body without the stream length prefix
//   - error: Wraps ErrEncodingFailed when a field cannot be represented
func Encode(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrEncodingFailed)
	}
	if msg.DeviceType == 0 {
		return nil, fmt.Errorf("%w: missing device type", ErrEncodingFailed)
	}
	if err := validID(msg.DeviceID); err != nil {
		return nil, fmt.Errorf("%w: device id: %v", ErrEncodingFailed, err)
	}
	if err := validID(msg.DeviceMessageID); err != nil {
		return nil, fmt.Errorf("%w: message id: %v", ErrEncodingFailed, err)
	}
	if len(msg.Records) > maxRecords {
		return nil, fmt.Errorf("%w: %d records", ErrEncodingFailed, len(msg.Records))
	}

	var ts uint32
	if !msg.CapturedAt.IsZero() {
		unix := msg.CapturedAt.Unix()
		if unix <= 0 || unix > math.MaxUint32 {
			return nil, fmt.Errorf("%w: captured-at out of range", ErrEncodingFailed)
		}
		ts = uint32(unix)
	}

	out := make([]byte, 0, minFrameSize+len(msg.DeviceID)+len(msg.DeviceMessageID)+8*len(msg.Records))
	out = append(out, StartByte, ProtocolVersion)
	out = binary.BigEndian.AppendUint16(out, uint16(msg.DeviceType))
	out = append(out, byte(len(msg.DeviceID)))
	out = append(out, msg.DeviceID...)
	out = append(out, byte(len(msg.DeviceMessageID)))
	out = append(out, msg.DeviceMessageID...)
	out = binary.BigEndian.AppendUint32(out, ts)
	out = append(out, byte(len(msg.Records)))

	for i, rec := range msg.Records {
		if rec.Type == 0 {
			return nil, fmt.Errorf("%w: record %d has no type", ErrEncodingFailed, i)
		}
		if len(rec.Readings) > maxReadings {
			return nil, fmt.Errorf("%w: record %d has %d readings", ErrEncodingFailed, i, len(rec.Readings))
		}
		out = append(out, byte(rec.Type), byte(len(rec.Readings)))
		for _, v := range rec.Readings {
			if v < math.MinInt16 || v > math.MaxInt16 {
				return nil, fmt.Errorf("%w: record %d reading %d out of int16 range", ErrEncodingFailed, i, v)
			}
			out = binary.BigEndian.AppendUint16(out, uint16(int16(v)))
		}
	}

	return append(out, checksum(out)), nil
}

// checksum is the sum of all bytes modulo 256.
func checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return sum
}

func validID(id string) error {
	if id == "" || len(id) > MaxIDLength {
		return fmt.Errorf("length %d not in 1..%d", len(id), MaxIDLength)
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return fmt.Errorf("non-printable byte 0x%02x at %d", id[i], i)
		}
	}
	return nil
}

// reader walks a frame body. Every accessor reports whether enough bytes remained.
type reader struct {
	buf []byte
	off int
}

func (r *reader) readByte() (byte, bool) {
	if r.off >= len(r.buf) {
		return 0, false
	}
	b := r.buf[r.off]
	r.off++
	return b, true
}

func (r *reader) next(n int) ([]byte, bool) {
	if n > len(r.buf)-r.off {
		return nil, false
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, true
}

func (r *reader) readUint32() (uint32, bool) {
	b, ok := r.next(4)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}

func (r *reader) id(field string) (string, error) {
	n, ok := r.readByte()
	if !ok {
		return "", fmt.Errorf("%w: missing %s length", ErrMalformedFrame, field)
	}
	b, ok := r.next(int(n))
	if !ok {
		return "", fmt.Errorf("%w: truncated %s", ErrMalformedFrame, field)
	}
	id := string(b)
	if err := validID(id); err != nil {
		return "", fmt.Errorf("%w: %s %v", ErrMalformedFrame, field, err)
	}
	return id, nil
}

func (r *reader) record(i int) (DataRecord, error) {
	hdr, ok := r.next(2)
	if !ok {
		return DataRecord{}, fmt.Errorf("%w: truncated record %d header", ErrMalformedFrame, i)
	}
	if hdr[0] == 0 {
		return DataRecord{}, fmt.Errorf("%w: record %d has no type", ErrMalformedFrame, i)
	}

	n := int(hdr[1])
	data, ok := r.next(2 * n)
	if !ok {
		return DataRecord{}, fmt.Errorf("%w: truncated record %d readings", ErrMalformedFrame, i)
	}

	readings := make([]int, n)
	for j := range readings {
		readings[j] = int(int16(binary.BigEndian.Uint16(data[2*j:])))
	}
	return DataRecord{Type: DataType(hdr[0]), Readings: readings}, nil
}
