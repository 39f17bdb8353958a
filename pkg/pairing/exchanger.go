package pairing

import "context"

// Endpoint names the pairing resource a request is sent to.
type Endpoint int

const (
	// EndpointPairSetup is /pair-setup or the Pair Setup characteristic.
	EndpointPairSetup Endpoint = iota

	// EndpointPairVerify is /pair-verify or the Pair Verify characteristic.
	EndpointPairVerify

	// EndpointPairings is /pairings or the Pairings characteristic. It is
	// only reachable over a verified session.
	EndpointPairings
)

// String returns the HTTP path of the endpoint.
func (e Endpoint) String() string {
	switch e {
	case EndpointPairSetup:
		return "/pair-setup"
	case EndpointPairVerify:
		return "/pair-verify"
	case EndpointPairings:
		return "/pairings"
	default:
		return "Unknown"
	}
}

// Exchanger sends a TLV8 request body to an endpoint and returns the
// response body. Implementations must keep the underlying link open
// between calls so a multi-message exchange reaches the same accessory
// session.
type Exchanger interface {
	Exchange(ctx context.Context, endpoint Endpoint, request []byte) ([]byte, error)
}

// ExchangerFunc adapts a function to the Exchanger interface.
type ExchangerFunc func(ctx context.Context, endpoint Endpoint, request []byte) ([]byte, error)

// Exchange calls f.
func (f ExchangerFunc) Exchange(ctx context.Context, endpoint Endpoint, request []byte) ([]byte, error) {
	return f(ctx, endpoint, request)
}
