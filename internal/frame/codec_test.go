package frame

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func sampleMessage() *Message {
	return &Message{
		DeviceID:        "DTU-0001",
		DeviceMessageID: "smoke-17",
		DeviceType:      DeviceTypeSmokeSensor,
		CapturedAt:      time.Unix(1767225600, 0).UTC(),
		Records: []DataRecord{
			{Type: DataTypePT, Readings: []int{412}},
			{Type: DataTypeY1, Readings: []int{-7, 3}},
			{Type: DataTypeWarning, Readings: []int{3, 1}},
		},
	}
}

func mustEncode(t *testing.T, msg *Message) []byte {
	t.Helper()
	raw, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return raw
}

// reseal recomputes the trailing checksum after a test mutates a frame.
func reseal(raw []byte) []byte {
	raw[len(raw)-1] = checksum(raw[:len(raw)-1])
	return raw
}

// recordCountOffset returns the index of the record count byte.
func recordCountOffset(msg *Message) int {
	return headerSize + 1 + len(msg.DeviceID) + 1 + len(msg.DeviceMessageID) + 4
}

func TestEncodeParseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{name: "smoke sensor", msg: sampleMessage()},
		{
			name: "screen monitor without timestamp",
			msg: &Message{
				DeviceID:        "DTU-0002",
				DeviceMessageID: "screen-1",
				DeviceType:      DeviceTypeScreenMonitor,
				Records: []DataRecord{
					{Type: DataTypeStatus, Readings: []int{1}},
				},
			},
		},
		{
			name: "no records",
			msg: &Message{
				DeviceID:        "d",
				DeviceMessageID: "m",
				DeviceType:      DeviceTypeScreenMonitor,
				Records:         []DataRecord{},
			},
		},
		{
			name: "empty reading list and int16 bounds",
			msg: &Message{
				DeviceID:        "d",
				DeviceMessageID: "m",
				DeviceType:      0x0999,
				Records: []DataRecord{
					{Type: 0x42, Readings: []int{}},
					{Type: DataTypePT, Readings: []int{-32768, 32767}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(mustEncode(t, tt.msg))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.msg) {
				t.Errorf("Parse() = %+v, want %+v", got, tt.msg)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	msg := sampleMessage()
	countAt := recordCountOffset(msg)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{
			name:   "too short",
			mutate: func(b []byte) []byte { return b[:minFrameSize-1] },
		},
		{
			name: "checksum mismatch",
			mutate: func(b []byte) []byte {
				b[len(b)-1]++
				return b
			},
		},
		{
			name: "bad start byte",
			mutate: func(b []byte) []byte {
				b[0] = 0x69
				return reseal(b)
			},
		},
		{
			name: "unsupported version",
			mutate: func(b []byte) []byte {
				b[1] = 0x02
				return reseal(b)
			},
		},
		{
			name: "zero device type",
			mutate: func(b []byte) []byte {
				b[2], b[3] = 0, 0
				return reseal(b)
			},
		},
		{
			name: "empty device id",
			mutate: func(b []byte) []byte {
				b[headerSize] = 0
				return reseal(b)
			},
		},
		{
			name: "device id longer than frame",
			mutate: func(b []byte) []byte {
				b[headerSize] = 0xff
				return reseal(b)
			},
		},
		{
			name: "record count exceeds records",
			mutate: func(b []byte) []byte {
				b[countAt]++
				return reseal(b)
			},
		},
		{
			name: "zero record type",
			mutate: func(b []byte) []byte {
				b[countAt+1] = 0
				return reseal(b)
			},
		},
		{
			name: "truncated readings",
			mutate: func(b []byte) []byte {
				b[countAt+2] = 40
				return reseal(b)
			},
		},
		{
			name: "trailing bytes",
			mutate: func(b []byte) []byte {
				b = append(b[:len(b)-1], 0x00, 0x00)
				return reseal(b)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.mutate(mustEncode(t, msg))
			got, err := Parse(raw)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("Parse() error = %v, want ErrMalformedFrame", err)
			}
			if got != nil {
				t.Errorf("Parse() returned message %+v alongside error", got)
			}
		})
	}
}

func TestParse_ZeroTimestampLeavesCapturedAtUnset(t *testing.T) {
	msg := sampleMessage()
	msg.CapturedAt = time.Time{}

	got, err := Parse(mustEncode(t, msg))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !got.CapturedAt.IsZero() {
		t.Errorf("CapturedAt = %v, want zero", got.CapturedAt)
	}
}

func TestEncode_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Message)
	}{
		{name: "zero device type", mutate: func(m *Message) { m.DeviceType = 0 }},
		{name: "empty device id", mutate: func(m *Message) { m.DeviceID = "" }},
		{name: "space in message id", mutate: func(m *Message) { m.DeviceMessageID = "smoke 17" }},
		{name: "reading out of range", mutate: func(m *Message) { m.Records[0].Readings[0] = 40000 }},
		{name: "zero record type", mutate: func(m *Message) { m.Records[1].Type = 0 }},
		{name: "timestamp before epoch", mutate: func(m *Message) { m.CapturedAt = time.Unix(-5, 0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := sampleMessage()
			tt.mutate(msg)
			if _, err := Encode(msg); !errors.Is(err, ErrEncodingFailed) {
				t.Errorf("Encode() error = %v, want ErrEncodingFailed", err)
			}
		})
	}

	if _, err := Encode(nil); !errors.Is(err, ErrEncodingFailed) {
		t.Errorf("Encode(nil) error = %v, want ErrEncodingFailed", err)
	}
}

func TestDataRecord_Reading(t *testing.T) {
	rec := DataRecord{Type: DataTypePT, Readings: []int{5, 6}}

	if v, ok := rec.Reading(1); !ok || v != 6 {
		t.Errorf("Reading(1) = %d, %v; want 6, true", v, ok)
	}
	if _, ok := rec.Reading(2); ok {
		t.Error("Reading(2) ok = true, want false")
	}
	if _, ok := rec.Reading(-1); ok {
		t.Error("Reading(-1) ok = true, want false")
	}
}

func TestDeviceType_String(t *testing.T) {
	tests := []struct {
		in   DeviceType
		want string
	}{
		{DeviceTypeSmokeSensor, "smoke_sensor"},
		{DeviceTypeScreenMonitor, "screen_monitor"},
		{0x0abc, "unknown_0abc"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("DeviceType(%#x).String() = %q, want %q", uint16(tt.in), got, tt.want)
		}
	}
}
