package capture

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Interface name prefixes that never carry monitorable traffic: container
// bridges, virtual pairs, tunnels, and VPNs.
var excludedPrefixes = []string{
	"docker",
	"veth",
	"br-",
	"tun",
	"tap",
	"utun",
	"vmnet",
	"vbox",
	"wg",
	"tailscale",
	"zt",
	"ppp",
}

// InterfaceInfo describes one candidate capture interface.
type InterfaceInfo struct {
	Index int
	Name  string
	MAC   string
	IPs   []string
	Up    bool
}

// ListInterfaces enumerates all host interfaces with their addresses, for
// --list-interfaces output and selection.
func ListInterfaces() ([]InterfaceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerating interfaces: %w", err)
	}

	infos := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		info := InterfaceInfo{
			Index: iface.Index,
			Name:  iface.Name,
			MAC:   iface.HardwareAddr.String(),
			Up:    iface.Flags&net.FlagUp != 0,
		}
		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				info.IPs = append(info.IPs, addr.String())
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// isRealInterface applies the selection policy: no loopback, no excluded
// prefixes, must be up, must carry at least one unicast address.
func isRealInterface(name string, flags net.Flags, hasUnicast bool) bool {
	if flags&net.FlagLoopback != 0 {
		return false
	}
	if flags&net.FlagUp == 0 {
		return false
	}
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "lo") && (len(lower) == 2 || lower[2] >= '0' && lower[2] <= '9') {
		return false
	}
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return hasUnicast
}

func hasUnicastAddr(iface net.Interface) bool {
	addrs, err := iface.Addrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ipNet.IP.IsGlobalUnicast() || ipNet.IP.IsPrivate() {
			return true
		}
	}
	return false
}

// SelectInterfaces picks the interfaces to capture on. selections may name
// interfaces directly or reference them by 1-based index from
// --list-interfaces; empty selections means auto-select every real interface.
func SelectInterfaces(selections []string) ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerating interfaces: %w", err)
	}

	if len(selections) > 0 {
		wanted := resolveSelections(selections, ifaces)
		var names []string
		for _, iface := range ifaces {
			if _, ok := wanted[iface.Name]; ok {
				names = append(names, iface.Name)
			}
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: no interface matches %v", ErrCaptureUnavailable, selections)
		}
		return names, nil
	}

	var names []string
	for _, iface := range ifaces {
		if isRealInterface(iface.Name, iface.Flags, hasUnicastAddr(iface)) {
			names = append(names, iface.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no capture-capable interface found", ErrCaptureUnavailable)
	}
	return names, nil
}

// resolveSelections turns a mix of names and 1-based indices into a name set.
func resolveSelections(selections []string, ifaces []net.Interface) map[string]struct{} {
	wanted := make(map[string]struct{}, len(selections))
	for _, sel := range selections {
		if idx, err := strconv.Atoi(sel); err == nil {
			if idx > 0 && idx <= len(ifaces) {
				wanted[ifaces[idx-1].Name] = struct{}{}
			}
			continue
		}
		wanted[sel] = struct{}{}
	}
	return wanted
}
