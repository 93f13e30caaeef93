package payment

import "fmt"

// Registry holds one gateway per provider. Webhooks and redirects are routed
// by provider name; new checkouts go to the active provider.
type Registry struct {
	gateways map[Provider]Gateway
	active   Provider
}

func NewRegistry(active Provider, gateways ...Gateway) (*Registry, error) {
	const op = "payment.NewRegistry"

	r := &Registry{
		gateways: make(map[Provider]Gateway, len(gateways)),
		active:   active,
	}
	for _, g := range gateways {
		r.gateways[g.Provider()] = g
	}

	if _, ok := r.gateways[active]; !ok {
		return nil, fmt.Errorf("%s: active provider %q:%w", op, active, ErrUnknownProvider)
	}

	return r, nil
}

func (r *Registry) Active() Gateway {
	return r.gateways[r.active]
}

func (r *Registry) Get(p Provider) (Gateway, error) {
	g, ok := r.gateways[p]
	if !ok {
		return nil, fmt.Errorf("payment.Registry.Get: %q:%w", p, ErrUnknownProvider)
	}
	return g, nil
}

// Holding returns the gateway that took a payment. Rows recorded before the
// provider was stored carry an empty name and go to the active provider.
func (r *Registry) Holding(p Provider) (Gateway, error) {
	if p == "" {
		return r.Active(), nil
	}
	return r.Get(p)
}
