package config

import (
	"github.com/goccy/go-json"
)

// redactedChain is the loggable form of a Chain. The bank signer key is
// omitted entirely.
type redactedChain struct {
	Endpoint           string `json:"endpoint"`
	Threshold          string `json:"threshold"`
	LowerBound         string `json:"lower_bound"`
	GasPriceWei        string `json:"gas_price_wei"`
	GasLimitMultiplier uint64 `json:"gas_limit_multiplier"`
	BankAddress        string `json:"bank_address"`
}

type redactedHome struct {
	Replicas  []string          `json:"replicas"`
	Addresses map[string]string `json:"addresses"`
}

// Redacted renders the topology as indented JSON with signing keys stripped,
// for --debug output.
func (t *Topology) Redacted() string {
	out := struct {
		Networks map[string]redactedChain `json:"networks"`
		Homes    map[string]redactedHome  `json:"homes"`
	}{
		Networks: make(map[string]redactedChain, len(t.Chains)),
		Homes:    make(map[string]redactedHome, len(t.Homes)),
	}

	for name, c := range t.Chains {
		out.Networks[name] = redactedChain{
			Endpoint:           c.Endpoint,
			Threshold:          c.UpperBound.String(),
			LowerBound:         c.LowerBound.String(),
			GasPriceWei:        c.GasPrice.String(),
			GasLimitMultiplier: c.GasLimitMultiplier,
			BankAddress:        c.BankAddress.Hex(),
		}
	}
	for name, h := range t.Homes {
		rh := redactedHome{
			Replicas:  h.Replicas,
			Addresses: make(map[string]string, len(h.Addresses)),
		}
		for role, addr := range h.Addresses {
			rh.Addresses[role] = addr.Hex()
		}
		out.Homes[name] = rh
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "<unrenderable topology>"
	}
	return string(data)
}
