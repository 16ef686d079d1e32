package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDatagram(t *testing.T) {
	arrival := time.Date(2013, time.June, 15, 14, 7, 9, 42*int(time.Millisecond), time.FixedZone("CEST", 2*3600))
	payload := []byte{0x30, 0x00, 0x1c, 0xfd, 0xf7}

	tests := []struct {
		name      string
		verbosity int
		want      string
	}{
		{"header only", 1, "RX:12:07:09.042:239.64.64.1:7150:   5"},
		{"with hex", 2, "RX:12:07:09.042:239.64.64.1:7150:   5:30 00 1c fd f7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDatagram(arrival, "239.64.64.1", 7150, payload, tt.verbosity))
		})
	}
}

func TestHexPrefix(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = byte(i)
	}

	assert.Equal(t, "", HexPrefix(nil, hexDumpBytes))
	assert.Equal(t, "ff", HexPrefix([]byte{0xff}, hexDumpBytes))
	assert.Equal(t, "00 01 02", HexPrefix(long, 3))

	dump := HexPrefix(long, hexDumpBytes)
	assert.Len(t, dump, hexDumpBytes*3-1)
	assert.Equal(t, "00 01 02 03 04 05 06 07 08 09 0a 0b 0c 0d 0e 0f 10 11 12 13", dump)
}
