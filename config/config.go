package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Venue   VenueConfig
	Solana  SolanaConfig
	Sponsor SponsorConfig
	Oracle  OracleConfig
	Wallet  WalletConfig
	History HistoryConfig
	EVM     EVMConfig
}

// VenueConfig selects and configures the swap venue.
type VenueConfig struct {
	// Provider is "intents" (one-click SDK) or "rest" (generic JSON venue).
	Provider    string
	BaseURL     string
	APIKey      string
	JWTToken    string
	SlippageBps uint16
}

// SolanaConfig configures the origin-chain RPC connection.
type SolanaConfig struct {
	RPCURL                   string
	SkipPreflight            bool
	MaxRetries               uint
	PriorityFeeMicroLamports uint64
}

// SponsorConfig covers both sides of the signing service: the client
// fields the pipeline uses and the server fields the sponsor command uses.
type SponsorConfig struct {
	BaseURL string
	APIKey  string

	ListenAddr      string
	SecretKey       string
	MaxInstructions int
	RateLimit       float64
	RateBurst       int
	FeeTokens       []string
	BufferBps       uint32
}

// OracleConfig points at the price API.
type OracleConfig struct {
	BaseURL string
	APIKey  string
}

// WalletConfig locates the user keypair. SecretKey wins over KeypairPath.
type WalletConfig struct {
	SecretKey   string
	KeypairPath string
}

// HistoryConfig locates the local swap database.
type HistoryConfig struct {
	Path string
}

// EVMConfig maps destination chain ids to RPC URLs for payout checks.
type EVMConfig struct {
	Networks map[string]string
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".gasless-swap")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	viper.SetDefault("venue.provider", "intents")
	viper.SetDefault("venue.slippage_bps", 100)
	viper.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("oracle.base_url", "https://lite-api.jup.ag")
	viper.SetDefault("sponsor.base_url", "http://localhost:8090")
	viper.SetDefault("sponsor.listen_addr", ":8090")
	viper.SetDefault("sponsor.max_instructions", 10)
	viper.SetDefault("sponsor.rate_limit", 10)
	viper.SetDefault("sponsor.rate_burst", 20)
	viper.SetDefault("sponsor.buffer_bps", 1000)
	viper.SetDefault("history.path", defaultHistoryPath())

	// Read from environment variables
	viper.SetEnvPrefix("GASLESS_SWAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Venue: VenueConfig{
			Provider:    viper.GetString("venue.provider"),
			BaseURL:     viper.GetString("venue.base_url"),
			APIKey:      viper.GetString("venue.api_key"),
			JWTToken:    viper.GetString("venue.jwt_token"),
			SlippageBps: uint16(viper.GetUint32("venue.slippage_bps")),
		},
		Solana: SolanaConfig{
			RPCURL:                   viper.GetString("solana.rpc_url"),
			SkipPreflight:            viper.GetBool("solana.skip_preflight"),
			MaxRetries:               viper.GetUint("solana.max_retries"),
			PriorityFeeMicroLamports: viper.GetUint64("solana.priority_fee_micro_lamports"),
		},
		Sponsor: SponsorConfig{
			BaseURL:         viper.GetString("sponsor.base_url"),
			APIKey:          viper.GetString("sponsor.api_key"),
			ListenAddr:      viper.GetString("sponsor.listen_addr"),
			SecretKey:       viper.GetString("sponsor.secret_key"),
			MaxInstructions: viper.GetInt("sponsor.max_instructions"),
			RateLimit:       viper.GetFloat64("sponsor.rate_limit"),
			RateBurst:       viper.GetInt("sponsor.rate_burst"),
			FeeTokens:       viper.GetStringSlice("sponsor.fee_tokens"),
			BufferBps:       viper.GetUint32("sponsor.buffer_bps"),
		},
		Oracle: OracleConfig{
			BaseURL: viper.GetString("oracle.base_url"),
			APIKey:  viper.GetString("oracle.api_key"),
		},
		Wallet: WalletConfig{
			SecretKey:   viper.GetString("wallet.secret_key"),
			KeypairPath: viper.GetString("wallet.keypair_path"),
		},
		History: HistoryConfig{
			Path: viper.GetString("history.path"),
		},
		EVM: EVMConfig{
			Networks: viper.GetStringMapString("evm.networks"),
		},
	}

	if cfg.Venue.Provider != "intents" && cfg.Venue.Provider != "rest" {
		return nil, fmt.Errorf("unknown venue provider %q, expected intents or rest", cfg.Venue.Provider)
	}

	globalConfig = cfg
	return cfg, nil
}

// RequireVenueAuth checks the credentials the selected venue needs.
func (c *Config) RequireVenueAuth() error {
	switch c.Venue.Provider {
	case "intents":
		if c.Venue.JWTToken == "" {
			return fmt.Errorf("venue JWT token not found. Please set GASLESS_SWAP_VENUE_JWT_TOKEN or add venue.jwt_token to .gasless-swap.yaml")
		}
	case "rest":
		if c.Venue.BaseURL == "" {
			return fmt.Errorf("venue base URL not found. Please set GASLESS_SWAP_VENUE_BASE_URL or add venue.base_url to .gasless-swap.yaml")
		}
	}
	return nil
}

// RequireWallet checks that a user keypair is configured.
func (c *Config) RequireWallet() error {
	if c.Wallet.SecretKey == "" && c.Wallet.KeypairPath == "" {
		return fmt.Errorf("wallet not found. Please set GASLESS_SWAP_WALLET_SECRET_KEY or wallet.keypair_path in .gasless-swap.yaml")
	}
	return nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "gasless-swap.db"
	}
	return filepath.Join(home, ".gasless-swap.db")
}
