// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tls implements a TLS 1.3 client as specified in RFC 8446.
//
// The package speaks only TLS 1.3 and only as a client. Session
// resumption, early data, and earlier protocol versions are not
// supported.
package tls

import (
	"net"
)

// Client returns a new TLS client side connection using conn as the
// underlying transport. The config cannot be nil: users must set either
// ServerName or InsecureSkipVerify in the config.
func Client(conn net.Conn, config *Config) *Conn {
	return &Conn{
		conn:   conn,
		config: config,
	}
}
