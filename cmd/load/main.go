package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"Kakofonix/astrec/load"
)

func main() {
	iface := flag.String("i", "", "outgoing network interface (name or IPv4 address)")
	group := flag.String("m", "239.64.64.1", "destination multicast group")
	port := flag.Int("p", 7150, "destination UDP port")
	rate := flag.Int("rate", 10, "datagrams per second")
	duration := flag.Duration("duration", 5*time.Second, "how long to send")
	records := flag.Int("records", 1, "ASTERIX records per data block")
	category := flag.Int("cat", 48, "ASTERIX category")
	ttl := flag.Int("ttl", 1, "multicast TTL")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := load.Config{
		Interface:       *iface,
		Group:           *group,
		Port:            *port,
		TTL:             *ttl,
		Rate:            *rate,
		Duration:        *duration,
		Category:        byte(*category),
		SAC:             0x19,
		SIC:             0xC9,
		RecordsPerBlock: *records,
	}
	stats, err := load.RunSyntheticFeed(ctx, cfg)
	if err != nil {
		log.Fatalf("synthetic feed failed: %v", err)
	}
	log.Printf("Sent %d datagrams (%d bytes) to %s:%d", stats.Datagrams, stats.Bytes, *group, *port)
}
