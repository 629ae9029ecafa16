// Package classify assigns a device-type category to an endpoint from the
// identity signals gathered about it: mDNS services, hostname, SSDP model,
// MAC vendor, open ports, and addresses. A user override always wins.
package classify

import (
	"strings"

	"github.com/InfraSecConsult/netwatch-go/lib/helper"
	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

// Input carries every signal the classifier consults.
type Input struct {
	ManualType string
	Hostname   string
	Services   []string
	Model      string
	MACs       []string
	IPs        []string
	Ports      []int
}

// Classify evaluates the rules in precedence order and always returns a
// category. The fallthrough for an unrecognized device is "local" for private
// addresses, "internet" for public ones, and "other" when no address is
// known.
func Classify(in Input) string {
	if in.ManualType != "" {
		return in.ManualType
	}

	lower := strings.ToLower(in.Hostname)

	if deviceType := classifyByServices(in.Services, lower); deviceType != "" {
		return deviceType
	}
	if deviceType := classifyByModel(in.Model); deviceType != "" {
		return deviceType
	}
	if deviceType := classifyByHostname(lower); deviceType != "" {
		return deviceType
	}
	if deviceType := classifyByMAC(in.MACs, in.Services, lower); deviceType != "" {
		return deviceType
	}
	if deviceType := classifyByPorts(in.Ports); deviceType != "" {
		return deviceType
	}

	for _, ip := range in.IPs {
		if helper.IsPrivateIP(ip) {
			return model.DeviceTypeLocal
		}
	}
	if len(in.IPs) > 0 {
		return model.DeviceTypeInternet
	}
	return model.DeviceTypeOther
}

// classifyByServices checks mDNS service advertisements. More specific
// families first; the phone services are skipped for Mac-pattern hostnames
// because Macs advertise _companion-link too.
func classifyByServices(services []string, hostname string) string {
	for _, service := range services {
		if contains(applianceServices, service) {
			return model.DeviceTypeAppliance
		}
		if contains(phoneServices, service) {
			if isMacComputerHostname(hostname) {
				continue
			}
			return model.DeviceTypePhone
		}
		if contains(soundbarServices, service) {
			return model.DeviceTypeSoundbar
		}
		if contains(printerServices, service) {
			return model.DeviceTypePrinter
		}
		if contains(tvServices, service) {
			return model.DeviceTypeTV
		}
	}
	return ""
}

func classifyByModel(modelName string) string {
	if modelName == "" {
		return ""
	}
	if isSoundbarModel(modelName) {
		return model.DeviceTypeSoundbar
	}
	if isTVModel(modelName) {
		return model.DeviceTypeTV
	}
	return ""
}

func classifyByHostname(hostname string) string {
	if hostname == "" {
		return ""
	}
	if isLGAppliance(hostname) {
		return model.DeviceTypeAppliance
	}
	// Order matters: more specific patterns first.
	if matchesAny(hostname, printerPatterns) || matchesPrefix(hostname, printerPrefixes) {
		return model.DeviceTypePrinter
	}
	if isMacComputerHostname(hostname) {
		return model.DeviceTypeLocal
	}
	if matchesAny(hostname, phonePatterns) || matchesPrefix(hostname, phonePrefixes) {
		return model.DeviceTypePhone
	}
	if matchesAny(hostname, gamingPatterns) {
		return model.DeviceTypeGaming
	}
	if matchesAny(hostname, tvPatterns) {
		return model.DeviceTypeTV
	}
	if matchesAny(hostname, vmPatterns) {
		return model.DeviceTypeVirtualization
	}
	if matchesAny(hostname, soundbarPatterns) {
		return model.DeviceTypeSoundbar
	}
	if matchesAny(hostname, appliancePatterns) {
		return model.DeviceTypeAppliance
	}
	return ""
}

func classifyByMAC(macs []string, services []string, hostname string) string {
	if vendorIn(macs, gatewayVendors) {
		return model.DeviceTypeGateway
	}
	if isPhoneMAC(macs, services, hostname) {
		return model.DeviceTypePhone
	}
	if vendorIn(macs, gamingVendors) {
		return model.DeviceTypeGaming
	}
	if vendorIn(macs, tvVendors) {
		return model.DeviceTypeTV
	}
	if vendorIn(macs, applianceVendors) {
		return model.DeviceTypeAppliance
	}
	return ""
}

// isPhoneMAC treats Apple devices without desktop services as iPhones/iPads.
func isPhoneMAC(macs []string, services []string, hostname string) bool {
	if !vendorIn(macs, []string{"Apple"}) {
		return false
	}
	if isMacComputerHostname(hostname) {
		return false
	}
	for _, service := range services {
		if contains(macDesktopServices, service) {
			return false
		}
	}
	return true
}

// classifyByPorts is the least reliable signal and runs last. A computer
// needs both a remote-access and a file-sharing port; single ports only
// identify single-purpose devices.
func classifyByPorts(ports []int) string {
	if isComputerByPorts(ports) {
		return model.DeviceTypeLocal
	}
	for _, port := range ports {
		switch port {
		case 9100, 631, 515:
			return model.DeviceTypePrinter
		case 9295, 9296, 9297, 3478, 3479, 3480, 3074:
			return model.DeviceTypeGaming
		case 8008, 8009, 7000, 7001, 8001, 8002, 3000, 3001, 6466, 6467, 8060:
			return model.DeviceTypeTV
		case 902, 903, 8006, 2179, 2375, 2376, 6443, 10250:
			return model.DeviceTypeVirtualization
		}
	}
	return ""
}

func isComputerByPorts(ports []int) bool {
	hasRemoteAccess := containsInt(ports, 3389) || containsInt(ports, 5900) || containsInt(ports, 22)
	hasFileSharing := containsInt(ports, 445) || containsInt(ports, 548) || containsInt(ports, 139)
	return hasRemoteAccess && hasFileSharing
}

func isLGAppliance(hostname string) bool {
	if matchesPrefix(hostname, lgAppliancePrefixes) {
		return true
	}
	// WM with a digit third character is a washer model.
	return strings.HasPrefix(hostname, "wm") && hasDigitAt(hostname, 2)
}

func isMacComputerHostname(hostname string) bool {
	return matchesAny(hostname, macComputerPatterns)
}

func matchesAny(hostname string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(hostname, p) {
			return true
		}
	}
	return false
}

func matchesPrefix(hostname string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(hostname, p) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
