package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Network is a CAIP-2 chain identifier such as "eip155:84532".
type Network string

const (
	NetworkBase        Network = "eip155:8453"
	NetworkBaseSepolia Network = "eip155:84532" // testnet
)

// ChainFamily classifies a network into a blockchain family.
type ChainFamily string

const (
	ChainEVM ChainFamily = "eip155"
)

// Namespace returns the CAIP-2 namespace, the part before the colon.
func (n Network) Namespace() string {
	ns, _, _ := strings.Cut(string(n), ":")
	return ns
}

// Reference returns the CAIP-2 reference, the part after the colon.
func (n Network) Reference() string {
	_, ref, _ := strings.Cut(string(n), ":")
	return ref
}

func (n Network) IsEVM() bool {
	return ChainFamily(n.Namespace()) == ChainEVM && n.Reference() != ""
}

// ChainID returns the numeric EVM chain id.
func (n Network) ChainID() (int64, error) {
	if !n.IsEVM() {
		return 0, fmt.Errorf("network %q is not an eip155 network", n)
	}
	id, err := strconv.ParseInt(n.Reference(), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("network %q has an invalid chain id", n)
	}
	return id, nil
}

func (n Network) IsTestnet() bool {
	return n == NetworkBaseSepolia
}

func (n Network) String() string {
	return string(n)
}
