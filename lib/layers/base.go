// Copyright 2025 InfraSecConsult. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file in the root of the source
// tree.

package lib_layers

import (
	"github.com/google/gopacket/layers"
)

// BaseLayer is embedded by every custom layer in this package.
type BaseLayer = layers.BaseLayer

// InitLayers registers all custom application layers with their well-known
// ports. Must be called once before building packets from captured frames.
func InitLayers() {
	InitLayerMDNS()
	InitLayerSSDP()
	InitLayerNetBIOS()
}
