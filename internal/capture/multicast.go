package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/net/ipv4"
)

// PacketSource is the receive side of the multicast socket. Close must
// unblock a pending ReadFrom.
type PacketSource interface {
	ReadFrom(b []byte) (n int, src net.Addr, err error)
	Close() error
}

// JoinRequest describes the group to join.
type JoinRequest struct {
	Interface       string // name or IPv4 address, empty for the default route
	Group           string
	Port            int
	ReadBufferBytes int
}

func (r JoinRequest) String() string {
	return net.JoinHostPort(r.Group, strconv.Itoa(r.Port))
}

// ListenFunc opens a PacketSource for a join request.
type ListenFunc func(ctx context.Context, req JoinRequest) (PacketSource, error)

type multicastConn struct {
	net.PacketConn
	p     *ipv4.PacketConn
	ifi   *net.Interface
	group net.Addr
}

// Close leaves the group before closing the socket.
func (c *multicastConn) Close() error {
	_ = c.p.LeaveGroup(c.ifi, c.group)
	return c.PacketConn.Close()
}

// JoinMulticast binds the UDP port on all addresses and joins the group on
// the requested interface.
func JoinMulticast(ctx context.Context, req JoinRequest) (PacketSource, error) {
	group := net.ParseIP(req.Group).To4()
	if group == nil || !group.IsMulticast() {
		return nil, fmt.Errorf("invalid multicast IP: %s", req.Group)
	}

	ifi, err := ResolveInterface(req.Interface)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: reuseAddr}
	pc, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(req.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP port %d: %w", req.Port, err)
	}

	if req.ReadBufferBytes > 0 {
		if udpConn, ok := pc.(*net.UDPConn); ok {
			if err := udpConn.SetReadBuffer(req.ReadBufferBytes); err != nil {
				pc.Close()
				return nil, fmt.Errorf("failed to set read buffer: %w", err)
			}
		}
	}

	p := ipv4.NewPacketConn(pc)
	groupAddr := &net.UDPAddr{IP: group}
	if err := p.JoinGroup(ifi, groupAddr); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to join multicast group %s: %w", req.Group, err)
	}

	return &multicastConn{PacketConn: pc, p: p, ifi: ifi, group: groupAddr}, nil
}

// ResolveInterface accepts an interface name or one of its IPv4 addresses.
// An empty name returns nil, which lets the kernel pick the interface.
func ResolveInterface(name string) (*net.Interface, error) {
	if name == "" {
		return nil, nil
	}

	var ifi *net.Interface
	if ip := net.ParseIP(name); ip != nil {
		found, err := interfaceByAddr(ip)
		if err != nil {
			return nil, err
		}
		ifi = found
	} else {
		found, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("unknown network interface %s: %w", name, err)
		}
		ifi = found
	}

	if ifi.Flags&net.FlagUp == 0 {
		return nil, fmt.Errorf("network interface %s is down", ifi.Name)
	}
	if ifi.Flags&net.FlagMulticast == 0 {
		return nil, fmt.Errorf("network interface %s does not support multicast", ifi.Name)
	}
	return ifi, nil
}

func interfaceByAddr(ip net.IP) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("unable to list network interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, errors.New("no network interface has address " + ip.String())
}
