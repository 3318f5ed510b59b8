// Package config loads and validates the keymaster topology: the set of
// chains ("networks") keymaster operates on and the homes whose agent
// addresses it monitors and funds.
package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the namespace for environment variable overrides,
	// e.g. KEYMASTER_NETWORKS_ALPHA_ENDPOINT.
	EnvPrefix = "KEYMASTER"

	// DefaultLowerBoundWei is the low watermark used when a network does not
	// configure one. Top-ups only trigger once a balance falls below this,
	// so a freshly topped-up wallet is not topped up again on every run.
	DefaultLowerBoundWei = "150000000000000000"

	// DefaultGasPriceWei is the flat gas price used when a network does not
	// configure one. Keymaster does not estimate fees dynamically.
	DefaultGasPriceWei = "20000000000"
)

var ErrInvalidTopology = fmt.Errorf("invalid topology")

// fileBank mirrors the "bank" object of a network entry in the config document.
type fileBank struct {
	Signer  string `mapstructure:"signer" json:"signer"`
	Address string `mapstructure:"address" json:"address"`
}

// fileNetwork mirrors a "networks" entry in the config document. Amounts are
// decimal strings in wei since they routinely exceed float precision.
type fileNetwork struct {
	Endpoint           string   `mapstructure:"endpoint" json:"endpoint"`
	Threshold          string   `mapstructure:"threshold" json:"threshold"`
	LowerBound         string   `mapstructure:"lower_bound" json:"lower_bound"`
	GasPriceWei        string   `mapstructure:"gas_price_wei" json:"gas_price_wei"`
	GasLimitMultiplier uint64   `mapstructure:"gas_limit_multiplier" json:"gas_limit_multiplier"`
	Bank               fileBank `mapstructure:"bank" json:"bank"`
}

// fileHome mirrors a "homes" entry in the config document.
type fileHome struct {
	Replicas  []string          `mapstructure:"replicas" json:"replicas"`
	Addresses map[string]string `mapstructure:"addresses" json:"addresses"`
}

// fileLock mirrors the optional "lock" section enabling the Redis-backed
// advisory bank lock.
type fileLock struct {
	RedisAddr  string `mapstructure:"redis_addr" json:"redis_addr"`
	KeyPrefix  string `mapstructure:"key_prefix" json:"key_prefix"`
	TTLSeconds int64  `mapstructure:"ttl_seconds" json:"ttl_seconds"`
}

type fileTopology struct {
	Networks map[string]fileNetwork `mapstructure:"networks" json:"networks"`
	Homes    map[string]fileHome    `mapstructure:"homes" json:"homes"`
	Lock     *fileLock              `mapstructure:"lock" json:"lock"`
}

// Chain is a validated network entry. Immutable for the duration of a run.
type Chain struct {
	Name               string
	Endpoint           string
	UpperBound         *big.Int
	LowerBound         *big.Int
	GasPrice           *big.Int
	GasLimitMultiplier uint64
	BankAddress        common.Address
	BankKey            *ecdsa.PrivateKey
}

// Home groups the agent addresses monitored on a home chain and the replica
// chains on which the same addresses are independently monitored and funded.
type Home struct {
	Chain     string
	Replicas  []string
	Addresses map[string]common.Address // role -> address
}

// Lock configures the optional Redis advisory bank lock.
type Lock struct {
	RedisAddr string
	KeyPrefix string
	TTL       time.Duration
}

// Topology is the validated configuration consumed by the orchestrator and
// the monitor. Loaded once at startup and never mutated afterwards.
type Topology struct {
	Chains map[string]*Chain
	Homes  map[string]*Home
	Lock   *Lock
}

// Load reads the topology document at path (JSON), applies environment
// overrides under the KEYMASTER_ prefix, and validates it. Any validation
// failure is fatal: keymaster never proceeds on a partially valid topology.
func Load(path string) (*Topology, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("couldn't read config at %s: %w", path, err)
	}

	// Unmarshal only sees environment overrides for bound keys, so bind
	// every key the document defines.
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key)
	}

	var raw fileTopology
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("couldn't decode config at %s: %w", path, err)
	}

	return buildTopology(&raw)
}

func buildTopology(raw *fileTopology) (*Topology, error) {
	if len(raw.Networks) == 0 {
		return nil, fmt.Errorf("%w: no networks configured", ErrInvalidTopology)
	}
	if len(raw.Homes) == 0 {
		return nil, fmt.Errorf("%w: no homes configured", ErrInvalidTopology)
	}

	topo := &Topology{
		Chains: make(map[string]*Chain, len(raw.Networks)),
		Homes:  make(map[string]*Home, len(raw.Homes)),
	}

	for name, net := range raw.Networks {
		chain, err := buildChain(name, net)
		if err != nil {
			return nil, err
		}
		topo.Chains[name] = chain
	}

	for name, home := range raw.Homes {
		if _, ok := topo.Chains[name]; !ok {
			return nil, fmt.Errorf("%w: home %q has no matching network entry", ErrInvalidTopology, name)
		}
		h := &Home{
			Chain:     name,
			Replicas:  append([]string(nil), home.Replicas...),
			Addresses: make(map[string]common.Address, len(home.Addresses)),
		}
		for _, replica := range home.Replicas {
			if _, ok := topo.Chains[replica]; !ok {
				return nil, fmt.Errorf("%w: replica %q of home %q has no matching network entry", ErrInvalidTopology, replica, name)
			}
		}
		for role, addr := range home.Addresses {
			if !common.IsHexAddress(addr) {
				return nil, fmt.Errorf("%w: address %q for role %q on home %q is not a valid address", ErrInvalidTopology, addr, role, name)
			}
			h.Addresses[role] = common.HexToAddress(addr)
		}
		topo.Homes[name] = h
	}

	if raw.Lock != nil {
		if raw.Lock.RedisAddr == "" {
			return nil, fmt.Errorf("%w: lock section requires redis_addr", ErrInvalidTopology)
		}
		ttl := time.Duration(raw.Lock.TTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = 15 * time.Minute
		}
		topo.Lock = &Lock{
			RedisAddr: raw.Lock.RedisAddr,
			KeyPrefix: raw.Lock.KeyPrefix,
			TTL:       ttl,
		}
	}

	return topo, nil
}

func buildChain(name string, net fileNetwork) (*Chain, error) {
	if net.Endpoint == "" {
		return nil, fmt.Errorf("%w: network %q has no endpoint", ErrInvalidTopology, name)
	}

	upper, err := parseWei(net.Threshold, "")
	if err != nil {
		return nil, fmt.Errorf("%w: network %q threshold: %v", ErrInvalidTopology, name, err)
	}
	lower, err := parseWei(net.LowerBound, DefaultLowerBoundWei)
	if err != nil {
		return nil, fmt.Errorf("%w: network %q lower_bound: %v", ErrInvalidTopology, name, err)
	}
	// The watermark pair must leave room between the bounds, otherwise the
	// computed top-up amount would be negative.
	if upper.Cmp(lower) < 0 {
		return nil, fmt.Errorf("%w: network %q threshold %s is below lower bound %s", ErrInvalidTopology, name, upper, lower)
	}

	gasPrice, err := parseWei(net.GasPriceWei, DefaultGasPriceWei)
	if err != nil {
		return nil, fmt.Errorf("%w: network %q gas_price_wei: %v", ErrInvalidTopology, name, err)
	}

	multiplier := net.GasLimitMultiplier
	if multiplier == 0 {
		multiplier = 1
	}

	if !common.IsHexAddress(net.Bank.Address) {
		return nil, fmt.Errorf("%w: network %q bank address %q is not a valid address", ErrInvalidTopology, name, net.Bank.Address)
	}
	bankAddr := common.HexToAddress(net.Bank.Address)

	key, err := crypto.HexToECDSA(strings.TrimPrefix(net.Bank.Signer, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: network %q bank signer is not a valid private key: %v", ErrInvalidTopology, name, err)
	}
	if derived := crypto.PubkeyToAddress(key.PublicKey); derived != bankAddr {
		return nil, fmt.Errorf("%w: network %q bank signer derives %s but bank address is %s", ErrInvalidTopology, name, derived.Hex(), bankAddr.Hex())
	}

	return &Chain{
		Name:               name,
		Endpoint:           net.Endpoint,
		UpperBound:         upper,
		LowerBound:         lower,
		GasPrice:           gasPrice,
		GasLimitMultiplier: multiplier,
		BankAddress:        bankAddr,
		BankKey:            key,
	}, nil
}

func parseWei(s, fallback string) (*big.Int, error) {
	if s == "" {
		s = fallback
	}
	if s == "" {
		return nil, fmt.Errorf("missing amount")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a decimal wei amount", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%q is negative", s)
	}
	return n, nil
}
