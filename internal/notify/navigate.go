package notify

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
)

// Target is an in-app route a tapped notification opens.
type Target struct {
	Path string `json:"path"`
}

// OnUserAction resolves the data payload of a tapped notification. An
// explicit deep link wins; otherwise the payload type picks the screen.
// Malformed payloads resolve to nothing.
func OnUserAction(raw []byte) (Target, bool) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Warn().Err(err).Msg("notify: malformed tap payload")
		return Target{}, false
	}
	if p.OrderID == "" || p.Type == "" {
		log.Warn().Str("order_id", p.OrderID).Str("type", string(p.Type)).Msg("notify: tap payload missing orderId or type")
		return Target{}, false
	}

	if p.DeepLink != "" {
		if !strings.HasPrefix(p.DeepLink, "/") || strings.HasPrefix(p.DeepLink, "//") {
			log.Warn().Str("deep_link", p.DeepLink).Msg("notify: rejected deep link")
			return Target{}, false
		}
		return Target{Path: p.DeepLink}, true
	}

	switch p.Type {
	case TypeOrderStatus:
		return Target{Path: "/orders"}, true
	case TypeNewOrder:
		return Target{Path: "/admin/orders"}, true
	case TypePaymentConfirmed:
		return Target{Path: "/orders/" + p.OrderID}, true
	}
	log.Warn().Str("type", string(p.Type)).Msg("notify: unknown tap payload type")
	return Target{}, false
}
