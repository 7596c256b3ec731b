package devicelink

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
)

// Record is one decoded entry of a terminal's punch log.
type Record struct {
	UserID     uint32
	Timestamp  time.Time
	VerifyMode uint8
	InOut      uint8
}

// Codec isolates vendor differences in the record layout of a get-log reply.
type Codec interface {
	Name() string
	RecordSize() int
	// Decode reads one record of exactly RecordSize bytes. loc is the terminal's
	// time zone, used by codecs whose timestamps are local wall-clock values.
	Decode(b []byte, loc *time.Location) Record
	Encode(r Record, loc *time.Location) []byte
}

// unixCodec: {4B user id}{4B epoch seconds}{1B verify}{1B in/out}{2B reserved}.
type unixCodec struct{}

func (unixCodec) Name() string    { return "standard" }
func (unixCodec) RecordSize() int { return 12 }

func (unixCodec) Decode(b []byte, _ *time.Location) Record {
	return Record{
		UserID:     binary.LittleEndian.Uint32(b[0:4]),
		Timestamp:  time.Unix(int64(binary.LittleEndian.Uint32(b[4:8])), 0).UTC(),
		VerifyMode: b[8],
		InOut:      b[9],
	}
}

func (unixCodec) Encode(r Record, _ *time.Location) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:4], r.UserID)
	binary.LittleEndian.PutUint32(b[4:8], uint32(r.Timestamp.Unix()))
	b[8] = r.VerifyMode
	b[9] = r.InOut
	return b
}

// unix64Codec widens the timestamp to 8 bytes: 16-byte records.
type unix64Codec struct{}

func (unix64Codec) Name() string    { return "standard64" }
func (unix64Codec) RecordSize() int { return 16 }

func (unix64Codec) Decode(b []byte, _ *time.Location) Record {
	return Record{
		UserID:     binary.LittleEndian.Uint32(b[0:4]),
		Timestamp:  time.Unix(int64(binary.LittleEndian.Uint64(b[4:12])), 0).UTC(),
		VerifyMode: b[12],
		InOut:      b[13],
	}
}

func (unix64Codec) Encode(r Record, _ *time.Location) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:4], r.UserID)
	binary.LittleEndian.PutUint64(b[4:12], uint64(r.Timestamp.Unix()))
	b[12] = r.VerifyMode
	b[13] = r.InOut
	return b
}

// zkCodec counts seconds from 2000-01-01 00:00:00 on the terminal's own clock.
type zkCodec struct{}

func (zkCodec) Name() string    { return "zk" }
func (zkCodec) RecordSize() int { return 12 }

func zkEpoch(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(2000, 1, 1, 0, 0, 0, 0, loc)
}

func (zkCodec) Decode(b []byte, loc *time.Location) Record {
	secs := binary.LittleEndian.Uint32(b[4:8])
	return Record{
		UserID:     binary.LittleEndian.Uint32(b[0:4]),
		Timestamp:  zkEpoch(loc).Add(time.Duration(secs) * time.Second),
		VerifyMode: b[8],
		InOut:      b[9],
	}
}

func (zkCodec) Encode(r Record, loc *time.Location) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:4], r.UserID)
	binary.LittleEndian.PutUint32(b[4:8], uint32(r.Timestamp.Sub(zkEpoch(loc))/time.Second))
	b[8] = r.VerifyMode
	b[9] = r.InOut
	return b
}

var codecs = map[string]Codec{
	"standard":   unixCodec{},
	"standard64": unix64Codec{},
	"zk":         zkCodec{},
}

// CodecByName returns the codec registered under name. An empty name selects "standard".
func CodecByName(name string) (Codec, error) {
	if name == "" {
		name = "standard"
	}
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", device.ErrUnknownCodec, name)
	}
	return c, nil
}

// CodecNames lists the registered codecs.
func CodecNames() []string {
	names := make([]string, 0, len(codecs))
	for n := range codecs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
