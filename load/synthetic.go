// Package load generates a synthetic ASTERIX multicast feed for exercising
// a recorder without live surveillance data.
package load

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/time/rate"

	"Kakofonix/astrec/internal/capture"
)

// Config controls the synthetic feed.
type Config struct {
	Interface string // outgoing interface for multicast, name or IPv4 address
	Group     string // destination; unicast addresses are accepted too
	Port      int
	TTL       int
	Rate      int // datagrams per second
	Duration  time.Duration

	Category        byte
	SAC, SIC        byte
	RecordsPerBlock int
}

// Stats summarizes what was sent.
type Stats struct {
	Datagrams int64
	Bytes     int64
}

func (c *Config) setDefaults() {
	if c.Duration <= 0 {
		c.Duration = 5 * time.Second
	}
	if c.Rate <= 0 {
		c.Rate = 10
	}
	if c.TTL <= 0 {
		c.TTL = 1
	}
	if c.Category == 0 {
		c.Category = 48
	}
	if c.RecordsPerBlock <= 0 {
		c.RecordsPerBlock = 1
	}
}

// Block builds one ASTERIX data block: category, two byte length covering
// the whole block, then records each made of a FSPEC announcing the data
// source identifier and time of day items, SAC/SIC and a 1/128 s time of day.
func Block(category, sac, sic byte, at time.Time, records int) []byte {
	const recordLen = 1 + 2 + 3
	b := make([]byte, 3, 3+records*recordLen)
	b[0] = category

	at = at.UTC()
	midnight := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	tod := uint32(at.Sub(midnight) * 128 / time.Second)
	for i := 0; i < records; i++ {
		b = append(b, 0xA0, sac, sic, byte(tod>>16), byte(tod>>8), byte(tod))
	}
	binary.BigEndian.PutUint16(b[1:3], uint16(len(b)))
	return b
}

// RunSyntheticFeed sends blocks at the configured rate until the duration
// elapses or ctx is cancelled.
func RunSyntheticFeed(ctx context.Context, cfg Config) (Stats, error) {
	cfg.setDefaults()
	var stats Stats

	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.Group, strconv.Itoa(cfg.Port)))
	if err != nil {
		return stats, fmt.Errorf("invalid destination %s:%d: %w", cfg.Group, cfg.Port, err)
	}

	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return stats, fmt.Errorf("failed to open UDP socket: %w", err)
	}
	defer conn.Close()

	if dst.IP.IsMulticast() {
		p := ipv4.NewPacketConn(conn)
		if err := p.SetMulticastTTL(cfg.TTL); err != nil {
			return stats, fmt.Errorf("failed to set multicast TTL: %w", err)
		}
		if err := p.SetMulticastLoopback(true); err != nil {
			return stats, fmt.Errorf("failed to enable multicast loopback: %w", err)
		}
		ifi, err := capture.ResolveInterface(cfg.Interface)
		if err != nil {
			return stats, err
		}
		if ifi != nil {
			if err := p.SetMulticastInterface(ifi); err != nil {
				return stats, fmt.Errorf("failed to select interface %s: %w", ifi.Name, err)
			}
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	for {
		if err := limiter.Wait(genCtx); err != nil {
			// Wait also fails early when the next token lies past the deadline.
			return stats, nil
		}
		block := Block(cfg.Category, cfg.SAC, cfg.SIC, time.Now(), cfg.RecordsPerBlock)
		n, err := conn.WriteTo(block, dst)
		if err != nil {
			return stats, fmt.Errorf("failed to send to %s: %w", dst, err)
		}
		stats.Datagrams++
		stats.Bytes += int64(n)
	}
}
