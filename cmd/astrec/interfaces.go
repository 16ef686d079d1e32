package main

import (
	"fmt"
	"io"
	"net"
)

func listInterfaces(w io.Writer) error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("unable to find network interfaces: %w", err)
	}
	fmt.Fprintln(w, "Available network interfaces:")
	for _, ifi := range ifaces {
		fmt.Fprintln(w, formatInterface(ifi))
	}
	return nil
}

func formatInterface(ifi net.Interface) string {
	up := "[DOWN]"
	if ifi.Flags&net.FlagUp != 0 {
		up = "[UP]"
	}
	mcast := "[NO MCAST]"
	if ifi.Flags&net.FlagMulticast != 0 {
		mcast = "[MCAST]"
	}
	loopback := ""
	if ifi.Flags&net.FlagLoopback != 0 {
		loopback = " [loopback]"
	}
	return fmt.Sprintf("- %-5s %-6s %-10s %s", ifi.Name, up, mcast, loopback)
}
