package capture

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinRequestString(t *testing.T) {
	req := JoinRequest{Group: "239.64.64.1", Port: 7150}
	assert.Equal(t, "239.64.64.1:7150", req.String())
}

func TestJoinMulticast_RejectsNonMulticastGroup(t *testing.T) {
	for _, group := range []string{"", "10.1.2.3", "ff02::1", "not-an-ip"} {
		_, err := JoinMulticast(context.Background(), JoinRequest{Group: group, Port: 7150})
		require.Error(t, err, group)
		assert.Contains(t, err.Error(), "invalid multicast IP")
	}
}

func TestJoinMulticast_UnknownInterface(t *testing.T) {
	_, err := JoinMulticast(context.Background(), JoinRequest{
		Interface: "astrec-nosuch0",
		Group:     "239.64.64.1",
		Port:      7150,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown network interface astrec-nosuch0")
}

func TestResolveInterface(t *testing.T) {
	ifi, err := ResolveInterface("")
	require.NoError(t, err)
	assert.Nil(t, ifi)

	_, err = ResolveInterface("203.0.113.77")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no network interface has address 203.0.113.77")
}

func TestResolveInterface_ByAddress(t *testing.T) {
	ifaces, err := net.Interfaces()
	require.NoError(t, err)
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			got, err := ResolveInterface(ipnet.IP.String())
			require.NoError(t, err)
			assert.Equal(t, ifi.Name, got.Name)
			return
		}
	}
	t.Skip("no multicast-capable IPv4 interface available")
}
