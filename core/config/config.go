package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/AvaProtocol/sponsored-bundle/core/chainio/signer"
	"github.com/AvaProtocol/sponsored-bundle/pkg/flashbots"
)

const DefaultConfigPath = "config/bundle.yaml"

// Config is the validated process configuration.
type Config struct {
	Executor *signer.Identity
	Sponsor  *signer.Identity
	// RelaySigner only authenticates requests to the relay, it holds no funds
	RelaySigner *signer.Identity

	Recipient common.Address

	EthRpcUrl string
	EthWsUrl  string
	RelayUrl  string

	DryRun         bool
	Environment    sdklogging.LogLevel
	MaxAttempts    int
	MetricsAddress string

	Plan PlanConfig
}

func (c *Config) Production() bool {
	return c.Environment == sdklogging.Production
}

type PlanConfig struct {
	Name            string
	Token           common.Address
	StakingContract common.Address
	StakedAmount    *big.Int
	ExpectedBalance *big.Int
	NFTContracts    []common.Address
}

// These are read from configPath, then overridden from the environment
type ConfigRaw struct {
	ExecutorPrivateKey string              `yaml:"executor_private_key" validate:"required,hexadecimal"`
	SponsorPrivateKey  string              `yaml:"sponsor_private_key" validate:"required,hexadecimal"`
	RelaySigningKey    string              `yaml:"relay_signing_key" validate:"required,hexadecimal"`
	Recipient          string              `yaml:"recipient" validate:"required,eth_addr"`
	EthRpcUrl          string              `yaml:"eth_rpc_url" validate:"required,url"`
	EthWsUrl           string              `yaml:"eth_ws_url" validate:"omitempty,url"`
	RelayUrl           string              `yaml:"relay_url" validate:"omitempty,url"`
	DryRun             bool                `yaml:"dry_run"`
	Environment        sdklogging.LogLevel `yaml:"environment" validate:"omitempty,oneof=production development"`
	MaxAttempts        int                 `yaml:"max_attempts" validate:"gte=0"`
	MetricsAddress     string              `yaml:"metrics_ip_port_address" validate:"omitempty,hostname_port"`
	Plan               PlanRaw             `yaml:"plan"`
}

type PlanRaw struct {
	Name            string   `yaml:"name" validate:"required"`
	Token           string   `yaml:"token" validate:"omitempty,eth_addr"`
	StakingContract string   `yaml:"staking_contract" validate:"omitempty,eth_addr"`
	StakedAmount    string   `yaml:"staked_amount" validate:"omitempty,number"`
	ExpectedBalance string   `yaml:"expected_balance" validate:"omitempty,number"`
	NFTContracts    []string `yaml:"nft_contracts" validate:"dive,eth_addr"`
}

// Environment variables understood on top of the yaml file. They win over the file.
const (
	EnvExecutorKey     = "PRIVATE_KEY_EXECUTOR"
	EnvSponsorKey      = "PRIVATE_KEY_SPONSOR"
	EnvRelaySigningKey = "FLASHBOTS_RELAY_SIGNING_KEY"
	EnvRecipient       = "RECIPIENT"
	EnvEthRpcUrl       = "ETHEREUM_RPC_URL"
	EnvEthWsUrl        = "ETHEREUM_WS_URL"
	EnvRelayUrl        = "FLASHBOTS_RELAY_URL"
	EnvDryRun          = "DRY_RUN"
)

var validate = validator.New()

// NewConfig reads the yaml file at configFilePath when it exists, applies environment
// overrides and validates the result. A missing file is fine as long as the environment
// provides everything required.
func NewConfig(configFilePath string) (*Config, error) {
	var raw ConfigRaw

	if configFilePath != "" {
		data, err := os.ReadFile(configFilePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return nil, fmt.Errorf("cannot parse %s: %w", configFilePath, err)
			}
		case os.IsNotExist(err) && configFilePath == DefaultConfigPath:
		default:
			return nil, fmt.Errorf("cannot read %s: %w", configFilePath, err)
		}
	}

	ApplyEnv(&raw, os.Getenv)
	return raw.Parse()
}

// ApplyEnv overrides raw with every non empty variable getenv returns.
func ApplyEnv(raw *ConfigRaw, getenv func(string) string) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	override(&raw.ExecutorPrivateKey, EnvExecutorKey)
	override(&raw.SponsorPrivateKey, EnvSponsorKey)
	override(&raw.RelaySigningKey, EnvRelaySigningKey)
	override(&raw.Recipient, EnvRecipient)
	override(&raw.EthRpcUrl, EnvEthRpcUrl)
	override(&raw.EthWsUrl, EnvEthWsUrl)
	override(&raw.RelayUrl, EnvRelayUrl)

	if v := strings.TrimSpace(getenv(EnvDryRun)); v != "" {
		raw.DryRun = parseDryRun(v)
	}
}

// any value that is not an explicit boolean switches dry run on
func parseDryRun(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// Parse validates the raw values and turns them into a Config.
func (raw *ConfigRaw) Parse() (*Config, error) {
	raw.ExecutorPrivateKey = strings.TrimPrefix(raw.ExecutorPrivateKey, "0x")
	raw.SponsorPrivateKey = strings.TrimPrefix(raw.SponsorPrivateKey, "0x")
	raw.RelaySigningKey = strings.TrimPrefix(raw.RelaySigningKey, "0x")

	if err := validate.Struct(raw); err != nil {
		return nil, describeValidation(err)
	}

	executor, err := signer.FromPrivateKeyHex(raw.ExecutorPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("executor_private_key: %w", err)
	}
	sponsor, err := signer.FromPrivateKeyHex(raw.SponsorPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sponsor_private_key: %w", err)
	}
	relaySigner, err := signer.FromPrivateKeyHex(raw.RelaySigningKey)
	if err != nil {
		return nil, fmt.Errorf("relay_signing_key: %w", err)
	}
	if executor.Address == sponsor.Address {
		return nil, fmt.Errorf("executor and sponsor must be different accounts")
	}

	environment := raw.Environment
	if environment == "" {
		environment = sdklogging.Development
	}
	relayUrl := raw.RelayUrl
	if relayUrl == "" {
		relayUrl = flashbots.DefaultRelayURL
	}

	stakedAmount, err := parseAmount("plan.staked_amount", raw.Plan.StakedAmount)
	if err != nil {
		return nil, err
	}
	expectedBalance, err := parseAmount("plan.expected_balance", raw.Plan.ExpectedBalance)
	if err != nil {
		return nil, err
	}

	return &Config{
		Executor:       executor,
		Sponsor:        sponsor,
		RelaySigner:    relaySigner,
		Recipient:      common.HexToAddress(raw.Recipient),
		EthRpcUrl:      raw.EthRpcUrl,
		EthWsUrl:       raw.EthWsUrl,
		RelayUrl:       relayUrl,
		DryRun:         raw.DryRun,
		Environment:    environment,
		MaxAttempts:    raw.MaxAttempts,
		MetricsAddress: raw.MetricsAddress,
		Plan: PlanConfig{
			Name:            raw.Plan.Name,
			Token:           optionalAddress(raw.Plan.Token),
			StakingContract: optionalAddress(raw.Plan.StakingContract),
			StakedAmount:    stakedAmount,
			ExpectedBalance: expectedBalance,
			NFTContracts:    convertToAddressSlice(raw.Plan.NFTContracts),
		},
	}, nil
}

func describeValidation(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
}

func parseAmount(field, v string) (*big.Int, error) {
	if v == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, fmt.Errorf("%s: %q is not a base 10 integer", field, v)
	}
	return amount, nil
}
