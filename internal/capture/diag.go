package capture

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	hexDumpBytes = 20
	diagLayout   = "15:04:05.000"
)

// FormatDatagram renders the per-datagram diagnostic line. verbosity 1
// prints time, group, port and length; 2 appends the leading payload bytes.
func FormatDatagram(arrival time.Time, group string, port int, payload []byte, verbosity int) string {
	line := fmt.Sprintf("RX:%s:%s:%d:%4d", arrival.UTC().Format(diagLayout), group, port, len(payload))
	if verbosity >= 2 {
		line += ":" + HexPrefix(payload, hexDumpBytes)
	}
	return line
}

// HexPrefix returns up to max leading bytes of p as lower-case hex pairs
// separated by single spaces.
func HexPrefix(p []byte, max int) string {
	if len(p) > max {
		p = p[:max]
	}
	var b strings.Builder
	b.Grow(len(p) * 3)
	for i := range p {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(hex.EncodeToString(p[i : i+1]))
	}
	return b.String()
}
