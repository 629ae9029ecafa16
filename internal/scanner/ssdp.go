package scanner

import (
	"context"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	liblayers "github.com/InfraSecConsult/netwatch-go/lib/layers"
	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

const (
	ssdpMulticastAddr = "239.255.255.250:1900"
	ssdpListenWindow  = 3 * time.Second
)

var ssdpSearchRequest = strings.Join([]string{
	"M-SEARCH * HTTP/1.1",
	"HOST: 239.255.255.250:1900",
	`MAN: "ssdp:discover"`,
	"MX: 2",
	"ST: ssdp:all",
	"", "",
}, "\r\n")

// deviceDescription is the part of the UPnP description XML the scanner
// extracts.
type deviceDescription struct {
	XMLName xml.Name `xml:"root"`
	Device  struct {
		FriendlyName string `xml:"friendlyName"`
		ModelName    string `xml:"modelName"`
		Manufacturer string `xml:"manufacturer"`
	} `xml:"device"`
}

// ssdpSweep multicasts an M-SEARCH, collects responses within the listen
// window, and enriches each responder from its description XML.
func ssdpSweep(ctx context.Context, record func(model.ScanRecord)) error {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return err
	}
	defer conn.Close()

	target, err := net.ResolveUDPAddr("udp4", ssdpMulticastAddr)
	if err != nil {
		return err
	}
	if _, err := conn.WriteTo([]byte(ssdpSearchRequest), target); err != nil {
		return err
	}

	deadline := time.Now().Add(ssdpListenWindow)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	seen := make(map[string]struct{})
	buf := make([]byte, 4096)
	for ctx.Err() == nil {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			break // deadline reached
		}

		ssdp := &liblayers.SSDP{}
		if err := ssdp.DecodeFromBytes(buf[:n], nil); err != nil || !ssdp.IsResponse {
			continue
		}

		ip, _, _ := net.SplitHostPort(addr.String())
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}

		rec := model.ScanRecord{ScanType: ScanTypeSSDP, IP: ip}
		if location := ssdp.Location(); location != "" {
			friendlyName, modelName := fetchDeviceDescription(ctx, location, ip)
			rec.FriendlyName = friendlyName
			rec.Model = modelName
		}
		record(rec)
	}
	return nil
}

// fetchDeviceDescription retrieves the UPnP description XML behind LOCATION
// and extracts friendlyName and modelName. Only locations pointing back at
// the responder are fetched.
func fetchDeviceDescription(ctx context.Context, location, expectedIP string) (string, string) {
	parsed, err := url.Parse(location)
	if err != nil || parsed.Hostname() != expectedIP {
		return "", ""
	}

	reqCtx, cancel := context.WithTimeout(ctx, perTargetTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, location, nil)
	if err != nil {
		return "", ""
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", ""
	}

	var desc deviceDescription
	if err := xml.Unmarshal(body, &desc); err != nil {
		log.Debug().Err(err).Str("location", location).Msg("unparseable device description")
		return "", ""
	}
	return desc.Device.FriendlyName, desc.Device.ModelName
}
