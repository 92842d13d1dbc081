// Package genesis reads the YAML document that initializes an empty vault:
// owner, fee schedule, staleness bound and oracle bindings.
package genesis

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"medvault/core/state"
	"medvault/types/ids"
)

type FeesConfig struct {
	AccessFeeWei              string `yaml:"accessFeeWei"`
	UploadFeeWei              string `yaml:"uploadFeeWei"`
	UploadFeeUSDCents         uint64 `yaml:"uploadFeeUsdCents"`
	FeeCollector              string `yaml:"feeCollector"`
	MaxOracleStalenessSeconds uint64 `yaml:"maxOracleStalenessSeconds"`
}

type OraclesConfig struct {
	FDC  string `yaml:"fdc"`
	FTSO string `yaml:"ftso"`
}

// Config is the genesis document.
type Config struct {
	VaultID     string        `yaml:"vaultId"`
	GenesisTime time.Time     `yaml:"genesisTime"`
	Owner       string        `yaml:"owner"`
	Fees        FeesConfig    `yaml:"fees"`
	Oracles     OraclesConfig `yaml:"oracles"`
}

// Load reads and validates a genesis file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read genesis config: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse genesis config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.VaultID == "" {
		return fmt.Errorf("genesis: vaultId is required")
	}
	if !common.IsHexAddress(c.Owner) || common.HexToAddress(c.Owner) == (common.Address{}) {
		return fmt.Errorf("genesis: invalid owner %q", c.Owner)
	}
	for name, s := range map[string]string{"fees.feeCollector": c.Fees.FeeCollector, "oracles.fdc": c.Oracles.FDC, "oracles.ftso": c.Oracles.FTSO} {
		if s != "" && !common.IsHexAddress(s) {
			return fmt.Errorf("genesis: invalid %s %q", name, s)
		}
	}
	fees, err := c.FeeConfig()
	if err != nil {
		return err
	}
	if fees.MaxOracleStalenessSeconds > state.MaxStalenessSeconds {
		return fmt.Errorf("genesis: fees.maxOracleStalenessSeconds exceeds %d", state.MaxStalenessSeconds)
	}
	noCollector := fees.FeeCollector == (common.Address{})
	if noCollector && (fees.AccessFeeWei.Sign() > 0 || fees.UploadFeeWei.Sign() > 0) {
		return fmt.Errorf("genesis: fees.feeCollector is required when a fee is set")
	}
	return nil
}

func amount(name, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("genesis: invalid %s %q", name, s)
	}
	return v, nil
}

func (c *Config) OwnerAddress() common.Address { return common.HexToAddress(c.Owner) }

func (c *Config) FeeConfig() (state.FeeConfig, error) {
	access, err := amount("fees.accessFeeWei", c.Fees.AccessFeeWei)
	if err != nil {
		return state.FeeConfig{}, err
	}
	upload, err := amount("fees.uploadFeeWei", c.Fees.UploadFeeWei)
	if err != nil {
		return state.FeeConfig{}, err
	}
	fees := state.FeeConfig{
		AccessFeeWei:              access,
		UploadFeeWei:              upload,
		UploadFeeUSDCents:         c.Fees.UploadFeeUSDCents,
		MaxOracleStalenessSeconds: c.Fees.MaxOracleStalenessSeconds,
	}
	if c.Fees.FeeCollector != "" {
		fees.FeeCollector = common.HexToAddress(c.Fees.FeeCollector)
	}
	return fees, nil
}

func (c *Config) OracleConfig() state.OracleConfig {
	var cfg state.OracleConfig
	if c.Oracles.FDC != "" {
		cfg.FDC = common.HexToAddress(c.Oracles.FDC)
	}
	if c.Oracles.FTSO != "" {
		cfg.FTSO = common.HexToAddress(c.Oracles.FTSO)
	}
	return cfg
}

// Hash identifies the genesis document that initialized a vault.
func (c *Config) Hash() (ids.ID, error) {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return ids.Empty, err
	}
	return ids.NewID(raw), nil
}

// Default returns a development genesis owned by owner with zero fees.
func Default(owner common.Address) *Config {
	return &Config{
		VaultID:     "medvault-dev",
		GenesisTime: time.Unix(0, 0).UTC(),
		Owner:       owner.Hex(),
		Fees:        FeesConfig{MaxOracleStalenessSeconds: 300},
	}
}

// Write stores c as YAML at path, refusing to overwrite.
func (c *Config) Write(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(raw)
	return err
}
