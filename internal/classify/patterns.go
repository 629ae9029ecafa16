package classify

// Hostname substrings that identify device families. Checked lowercased.
var printerPatterns = []string{
	"printer", "print", "hp-", "canon", "epson", "brother", "lexmark",
	"xerox", "ricoh", "laserjet", "officejet", "pixma", "mfc-", "dcp-",
	"hpcolor", "hplaserjet", "designjet", "scanjet",
}

var printerPrefixes = []string{"hp", "npi", "brn", "brw", "epson"}

var tvPatterns = []string{
	"tv", "bravia", "vizio", "roku", "chromecast", "appletv", "apple-tv",
	"firetv", "fire-tv", "shield", "androidtv", "the-frame", "theframe",
	"the-serif", "the-sero", "lgwebostv", "webostv",
}

var gamingPatterns = []string{
	"xbox", "playstation", "ps4", "ps5", "nintendo", "switch",
	"steamdeck", "steam-deck",
}

var phonePatterns = []string{
	"iphone", "ipad", "ipod", "oneplus", "motorola", "oppo", "vivo",
	"realme", "redmi", "poco", "galaxy", "pixel",
}

var phonePrefixes = []string{"sm-", "moto"}

var vmPatterns = []string{
	"vmware", "esxi", "vcenter", "proxmox", "hyper-v", "hyperv",
	"virtualbox", "vbox", "kvm", "qemu", "xen", "docker", "container",
	"k8s", "kubernetes", "rancher", "portainer",
}

var soundbarPatterns = []string{
	"soundbar", "sound-bar", "sonos", "bose", "playbar", "playbase", "beam",
	"denon-avr", "denon-", "yamaha-rx", "rx-v", "marantz", "onkyo",
	"pioneer-vsx",
}

var appliancePatterns = []string{
	"dishwasher", "washer", "dryer", "washing", "laundry", "refrigerator",
	"fridge", "oven", "microwave", "maytag", "miele", "electrolux",
	"kenmore", "kitchenaid", "echo", "alexa", "amazon-", "ring-", "nest-",
	"google-home", "homepod", "smartthings", "hue-bridge", "homebridge",
	"home-assistant", "homeassistant", "ratgdo", "myq", "garagedoor",
	"garage-door", "wled", "lifx", "nanoleaf", "wemo", "kasa", "tasmota",
	"shelly", "meross", "ecobee", "roomba", "dyson", "truenas", "synology",
	"qnap", "unraid", "dahua", "hikvision", "simplisafe", "arlo", "blink",
	"lcc-",
}

// LG ThinQ appliance hostname prefixes: washers, dryers, dishwashers,
// ranges. They advertise AirPlay-adjacent services but are not TVs.
var lgAppliancePrefixes = []string{"lma", "lmw", "ldf", "ldt", "ldp", "dle", "dlex", "lrmv"}

// Patterns that identify a Mac computer; these must never classify as phone
// even when the host advertises _companion-link.
var macComputerPatterns = []string{
	"macbook", "mac-book", "imac", "i-mac", "mac-mini", "macmini",
	"mac-pro", "macpro", "mac-studio", "macstudio",
}

// mDNS service types per device family. More specific families first.
var applianceServices = []string{"_lge._tcp", "_xbcs._tcp", "_dyson_mqtt._tcp"}

var phoneServices = []string{"_apple-mobdev2._tcp", "_companion-link._tcp", "_rdlink._tcp"}

var soundbarServices = []string{"_sonos._tcp", "_spotify-connect._tcp"}

var printerServices = []string{"_ipp._tcp", "_printer._tcp", "_pdl-datastream._tcp"}

var tvServices = []string{"_googlecast._tcp", "_roku._tcp", "_webos._tcp"}

// Services advertised by Macs but not by iPhones/iPads.
var macDesktopServices = []string{"_afpovertcp._tcp", "_smb._tcp", "_ssh._tcp", "_sftp-ssh._tcp"}

// Vendors per device family, matched against the OUI table.
var applianceVendors = []string{
	"Amazon", "Google", "Ring", "Philips Hue", "Ecobee", "TP-Link",
	"Belkin", "Wyze", "iRobot", "Tuya", "Dyson", "Roborock", "SimpliSafe",
	"Dahua", "Nest", "Espressif", "Texas Instruments", "Seeed", "WiZ",
}

var gamingVendors = []string{"Nintendo", "Sony"}

var tvVendors = []string{"Roku", "TCL", "Hisense", "Vizio", "FN-Link"}

var gatewayVendors = []string{
	"Commscope", "ARRIS", "Netgear", "Linksys", "Ubiquiti", "MikroTik",
	"Cisco", "Juniper", "Fortinet", "eero", "Asus", "AVM",
}
