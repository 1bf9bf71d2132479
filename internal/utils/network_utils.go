package utils

import (
	"net"
	"strings"
)

// CGNAT range used by Cloudflare WARP, Tailscale and carrier-grade NAT.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// tunnelHints are interface name fragments of VPNs and virtual adapters.
var tunnelHints = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or CGNAT,
// where direct peer connections usually fail and TURN should be used.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		var ips []net.IP
		if addrs, err := iface.Addrs(); err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					ips = append(ips, v.IP)
				case *net.IPAddr:
					ips = append(ips, v.IP)
				}
			}
		}

		if looksTunneled(iface.Name, ips) {
			return true
		}
	}

	return false
}

// looksTunneled reports whether an interface name or address suggests a
// tunnel or CGNAT.
func looksTunneled(name string, ips []net.IP) bool {
	name = strings.ToLower(name)
	for _, hint := range tunnelHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	for _, ip := range ips {
		if cgnatBlock.Contains(ip) {
			return true
		}
	}
	return false
}
