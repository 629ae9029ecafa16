// Copyright 2025 InfraSecConsult. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file in the root of the source
// tree.

package lib_layers

import (
	"bufio"
	"errors"
	"net/textproto"
	"strings"
)

// HTTPRequest is the parsed first line and headers of a cleartext HTTP/1.x
// request. Only the header block is examined; bodies are never read. The
// monitor uses this solely to bind the Host header to a destination IP.
type HTTPRequest struct {
	Method     string
	RequestURI string
	Version    string
	Host       string
	UserAgent  string
	Headers    map[string]string
}

var httpMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "DELETE": {}, "HEAD": {},
	"OPTIONS": {}, "PATCH": {}, "TRACE": {}, "CONNECT": {},
}

// ParseHTTPRequest parses a TCP payload as an HTTP/1.x request. Returns an
// error when the payload does not start with a known method and version.
func ParseHTTPRequest(data []byte) (*HTTPRequest, error) {
	if len(data) < 16 {
		return nil, errors.New("payload too short for an HTTP request")
	}

	headerEnd := strings.Index(string(data), "\r\n\r\n")
	raw := string(data)
	if headerEnd >= 0 {
		raw = raw[:headerEnd]
	}

	lines := strings.Split(raw, "\r\n")
	parts := strings.SplitN(strings.TrimSpace(lines[0]), " ", 3)
	if len(parts) != 3 {
		return nil, errors.New("malformed HTTP request line")
	}
	if _, ok := httpMethods[parts[0]]; !ok {
		return nil, errors.New("unknown HTTP method")
	}
	if !strings.HasPrefix(parts[2], "HTTP/1.") && parts[2] != "HTTP/0.9" {
		return nil, errors.New("not an HTTP/1.x request")
	}

	req := &HTTPRequest{
		Method:     parts[0],
		RequestURI: parts[1],
		Version:    parts[2],
		Headers:    make(map[string]string),
	}

	tp := textproto.NewReader(bufio.NewReader(strings.NewReader(strings.Join(lines[1:], "\r\n"))))
	for {
		line, err := tp.ReadLine()
		if err != nil || line == "" {
			break
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		req.Headers[key] = value
		switch key {
		case "host":
			req.Host = sanitizeHostname(stripPort(value))
		case "user-agent":
			req.UserAgent = value
		}
	}

	return req, nil
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host, "]") {
		// IPv6 hosts carry brackets; a bare colon means host:port
		if strings.Count(host, ":") == 1 {
			return host[:i]
		}
	}
	return host
}
