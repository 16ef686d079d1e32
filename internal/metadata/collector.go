// Package metadata identifies the host a recording was made on.
package metadata

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"

	"Kakofonix/astrec/internal/version"
)

// maxHostIPs caps the address list so segment events stay small on hosts
// with many bridges or VPN links.
const maxHostIPs = 10

// Host describes the recording host. It is attached to every segment event.
type Host struct {
	MachineID string   `json:"machine_id"`
	Hostname  string   `json:"hostname,omitempty"`
	OS        string   `json:"os_name"`
	OSVersion string   `json:"os_version"`
	Arch      string   `json:"architecture"`
	IPs       []string `json:"host_ips,omitempty"`
	Version   string   `json:"recorder_version"`
}

// Collect gathers the host identity. captureInterface is the configured
// interface name or address; its IPv4 address is listed first.
func Collect(captureInterface string) Host {
	hostname, _ := os.Hostname()
	return Host{
		MachineID: generateMachineID(),
		Hostname:  hostname,
		OS:        runtime.GOOS,
		OSVersion: getOSVersion(),
		Arch:      runtime.GOARCH,
		IPs:       getHostIPAddresses(captureInterface),
		Version:   version.Version,
	}
}

// getHostIPAddresses returns the capture interface's IPv4 address followed
// by the other private addresses of up, non-loopback interfaces.
func getHostIPAddresses(captureInterface string) []string {
	var ips []string
	seen := make(map[string]bool)
	add := func(ip net.IP) bool {
		s := ip.String()
		if !seen[s] {
			seen[s] = true
			ips = append(ips, s)
		}
		return len(ips) >= maxHostIPs
	}

	if ip := net.ParseIP(captureInterface); ip != nil && ip.To4() != nil {
		add(ip.To4())
	}

	interfaces, err := net.Interfaces()
	if err != nil {
		return ips
	}

	if captureInterface != "" {
		for _, iface := range interfaces {
			if iface.Name != captureInterface || iface.Flags&net.FlagUp == 0 {
				continue
			}
			for _, ip := range ipv4Addrs(iface) {
				add(ip)
			}
		}
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		for _, ip := range ipv4Addrs(iface) {
			if ip.IsPrivate() && add(ip) {
				return ips
			}
		}
	}
	return ips
}

func ipv4Addrs(iface net.Interface) []net.IP {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil
	}
	var out []net.IP
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			if ip := ipnet.IP.To4(); ip != nil {
				out = append(out, ip)
			}
		}
	}
	return out
}

// generateMachineID hashes the primary MAC address so the raw address is
// never published.
func generateMachineID() string {
	macAddr := getPrimaryMACAddress()
	if macAddr == "" {
		macAddr = "unknown-device"
	}
	sum := sha256.Sum256([]byte(macAddr))
	return hex.EncodeToString(sum[:])
}

// getPrimaryMACAddress prefers wired, then wireless, then any interface.
func getPrimaryMACAddress() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	sort.Slice(interfaces, func(i, j int) bool {
		return interfaces[i].Name < interfaces[j].Name
	})

	for _, priority := range []string{"eth", "en", "wlan", "wl"} {
		for _, iface := range interfaces {
			if strings.HasPrefix(iface.Name, priority) &&
				iface.Flags&net.FlagLoopback == 0 &&
				len(iface.HardwareAddr) > 0 {
				return iface.HardwareAddr.String()
			}
		}
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback == 0 && len(iface.HardwareAddr) > 0 {
			return iface.HardwareAddr.String()
		}
	}
	return ""
}

func getOSVersion() string {
	if runtime.GOOS != "linux" {
		return runtime.GOOS
	}
	return parseOSRelease("/etc/os-release")
}

// parseOSRelease returns "NAME VERSION" from an os-release file.
func parseOSRelease(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return "Linux"
	}
	defer file.Close()

	var name, ver string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "NAME=") {
			name = strings.Trim(strings.TrimPrefix(line, "NAME="), "\"")
		} else if strings.HasPrefix(line, "VERSION=") {
			ver = strings.Trim(strings.TrimPrefix(line, "VERSION="), "\"")
		}
	}

	switch {
	case name != "" && ver != "":
		return name + " " + ver
	case name != "":
		return name
	}
	return "Linux"
}
