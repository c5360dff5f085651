package broker

import (
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICEConfig holds the ICE servers used to gather candidates for every
// peer connection.
type ICEConfig struct {
	Servers []webrtc.ICEServer
}

// DefaultICEConfig uses public STUN servers only. Sessions across symmetric
// NATs need a TURN server on top of these.
func DefaultICEConfig() ICEConfig {
	return ICEConfig{
		Servers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:global.stun.twilio.com:3478"}},
		},
	}
}

// ICEConfigFromURLs builds a config with one server per non-empty URL.
// With no URLs only host candidates are gathered, which is enough on a LAN.
func ICEConfigFromURLs(urls []string) ICEConfig {
	var cfg ICEConfig
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		cfg.Servers = append(cfg.Servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return cfg
}
