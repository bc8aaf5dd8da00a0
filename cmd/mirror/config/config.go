package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/poolmirror/poolmirror-go/amm"
)

// Config holds the mirror's settings, merged from flags, environment
// variables, and an optional config file.
type Config struct {
	RPCURL            string
	Pools             map[string]string // address -> variant name
	ReorgDepth        int
	SeedBlock         uint64
	SeedBatchSize     int
	LogRangeBatchSize uint64
	SnapshotOut       string
	SnapshotIn        string
	MetricsAddr       string
	MaxRetries        int
	RetryBackoff      time.Duration
	LogLevel          string
}

// Load merges config file, environment variables, and flags.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("reorg-depth", 64)
	v.SetDefault("seed-batch-size", 100)
	v.SetDefault("log-range-batch-size", uint64(2000))
	v.SetDefault("metrics-addr", ":9100")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 200*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		Pools:             getStringMap(v, "pools"),
		ReorgDepth:        v.GetInt("reorg-depth"),
		SeedBlock:         v.GetUint64("seed-block"),
		SeedBatchSize:     v.GetInt("seed-batch-size"),
		LogRangeBatchSize: v.GetUint64("log-range-batch-size"),
		SnapshotOut:       v.GetString("snapshot-out"),
		SnapshotIn:        v.GetString("snapshot-in"),
		MetricsAddr:       v.GetString("metrics-addr"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		LogLevel:          v.GetString("log-level"),
	}
	return cfg, nil
}

// TrackedPools parses the configured address->variant map into typed form.
func (c Config) TrackedPools() (map[common.Address]amm.Variant, error) {
	tracked := make(map[common.Address]amm.Variant, len(c.Pools))
	for addr, variantName := range c.Pools {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("pool key %q is not a hex address", addr)
		}
		variant, err := amm.ParseVariant(variantName)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", addr, err)
		}
		tracked[common.HexToAddress(addr)] = variant
	}
	return tracked, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, item := range typed {
			out[k] = fmt.Sprintf("%v", item)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	for _, pair := range strings.Split(input, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
