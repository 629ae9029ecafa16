package classify

import (
	"strings"
)

// ouiVendors maps the first three MAC octets to a vendor name. The table is
// the working subset of the IEEE registry this tool actually classifies on;
// unknown prefixes simply yield no vendor.
var ouiVendors = map[string]string{
	// Apple
	"a4:83:e7": "Apple", "f0:18:98": "Apple", "3c:22:fb": "Apple",
	"dc:a9:04": "Apple", "14:7d:da": "Apple", "a8:5c:2c": "Apple",
	"f4:0f:24": "Apple", "68:d9:3c": "Apple", "90:dd:5d": "Apple",
	"b8:e8:56": "Apple", "ac:bc:32": "Apple", "28:f0:76": "Apple",

	// Samsung (phones, TVs, SmartThings)
	"8c:79:67": "Samsung", "5c:49:7d": "Samsung", "e8:50:8b": "Samsung",
	"fc:03:9f": "Samsung", "70:2c:1f": "Samsung", "28:6d:97": "Samsung",
	"78:bd:bc": "Samsung", "b4:79:a7": "Samsung", "cc:6e:a4": "Samsung",

	// Google / Nest
	"18:d6:c7": "Google", "54:60:09": "Google", "f4:f5:d8": "Google",
	"1c:f2:9a": "Google", "30:fd:38": "Google", "64:16:66": "Nest",
	"18:b4:30": "Nest",

	// Amazon (Echo, FireTV, Ring is separate)
	"3c:5c:c4": "Amazon", "74:c2:46": "Amazon", "f0:d2:f1": "Amazon",
	"fc:65:de": "Amazon", "a0:02:dc": "Amazon", "0c:47:c9": "Amazon",
	"ac:63:be": "Amazon", "68:37:e9": "Amazon",

	// Ring doorbells and cameras
	"34:3e:a4": "Ring", "9c:76:13": "Ring", "54:e0:19": "Ring",

	// Gaming
	"7c:bb:8a": "Nintendo", "98:b6:e9": "Nintendo", "00:1f:32": "Nintendo",
	"58:2f:40": "Nintendo", "e8:4e:ce": "Nintendo", "04:03:d6": "Nintendo",
	"28:0d:fc": "Sony", "00:d9:d1": "Sony", "78:c8:81": "Sony",
	"f8:46:1c": "Sony", "84:e6:57": "Sony",
	"98:5f:d3": "Microsoft", "58:82:a8": "Microsoft", "c8:3f:26": "Microsoft",

	// TV and streaming
	"d8:31:34": "Roku", "b0:a7:37": "Roku", "cc:6d:a0": "Roku",
	"ac:3a:7a": "Roku", "08:05:81": "Roku",
	"10:08:c1": "TCL", "c0:79:82": "TCL",
	"68:a0:3e": "Hisense", "a0:62:fb": "Hisense",
	"00:19:9d": "Vizio", "c4:e0:32": "Vizio",
	"cc:7e:e7": "FN-Link",
	"a8:23:fe": "LG", "cc:2d:8c": "LG", "64:bc:0c": "LG", "10:f1:f2": "LG",
	"34:4d:f7": "LG",

	// Printers
	"3c:d9:2b": "HP", "94:57:a5": "HP", "00:21:5a": "HP", "fc:3f:db": "HP",
	"00:1e:8f": "Canon", "18:0c:ac": "Canon",
	"9c:ae:d3": "Epson", "44:d2:44": "Epson",
	"00:80:77": "Brother", "30:05:5c": "Brother",

	// Networking gear
	"00:ab:48": "eero", "f8:bb:bf": "eero", "60:5f:8d": "eero",
	"a0:40:a0": "Netgear", "c0:ff:d4": "Netgear", "9c:3d:cf": "Netgear",
	"58:ef:68": "Linksys", "c4:41:1e": "Linksys",
	"74:ac:b9": "Ubiquiti", "f0:9f:c2": "Ubiquiti", "78:8a:20": "Ubiquiti",
	"18:fd:74": "Ubiquiti",
	"4c:5e:0c": "MikroTik", "cc:2d:e0": "MikroTik",
	"00:40:96": "Cisco", "58:97:bd": "Cisco", "f4:ee:31": "Cisco",
	"2c:30:33": "ARRIS", "fc:51:a4": "ARRIS", "90:1a:ca": "ARRIS",
	"10:93:97": "Commscope", "84:e0:58": "Commscope",
	"04:d9:f5": "Asus", "2c:fd:a1": "Asus",
	"e0:28:6d": "AVM", "3c:a6:2f": "AVM",
	"00:09:0f": "Fortinet", "70:4c:a5": "Fortinet",

	// Smart home / IoT
	"d8:a0:11": "WiZ",
	"00:17:88": "Philips Hue", "ec:b5:fa": "Philips Hue",
	"44:61:32": "Ecobee", "20:f8:5e": "Ecobee",
	"50:c7:bf": "TP-Link", "1c:61:b4": "TP-Link", "b0:be:76": "TP-Link",
	"c0:06:c3": "TP-Link",
	"94:10:3e": "Belkin", "14:91:82": "Belkin",
	"2c:aa:8e": "Wyze", "7c:78:b2": "Wyze",
	"50:14:79": "iRobot", "80:91:33": "iRobot",
	"68:57:2d": "Tuya", "d4:a6:51": "Tuya",
	"c8:ff:77": "Dyson", "60:5b:b4": "Dyson",
	"b0:4a:39": "Roborock",
	"30:8c:fb": "SimpliSafe",
	"3c:ef:8c": "Dahua", "9c:14:63": "Dahua",
	"bc:dd:c2": "Espressif", "24:0a:c4": "Espressif", "84:cc:a8": "Espressif",
	"a4:cf:12": "Espressif", "30:ae:a4": "Espressif",
	"00:12:4b": "Texas Instruments", "18:04:ed": "Texas Instruments",
	"2c:f7:f1": "Seeed",
	"5c:aa:fd": "Sonos", "00:0e:58": "Sonos", "b8:e9:37": "Sonos",
	"34:7e:5c": "Sonos",
}

// VendorForMAC returns the vendor name for a MAC address by OUI prefix, or "".
func VendorForMAC(mac string) string {
	if len(mac) < 8 {
		return ""
	}
	return ouiVendors[strings.ToLower(mac[:8])]
}

// vendorIn reports whether any MAC belongs to one of the given vendors.
func vendorIn(macs []string, vendors []string) bool {
	for _, mac := range macs {
		vendor := VendorForMAC(mac)
		if vendor == "" {
			continue
		}
		for _, v := range vendors {
			if vendor == v {
				return true
			}
		}
	}
	return false
}
