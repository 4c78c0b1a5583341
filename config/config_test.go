package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points $HOME and the working directory at an empty temp dir so
// a developer's real config file cannot leak into the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "intents", cfg.Venue.Provider)
	assert.Equal(t, uint16(100), cfg.Venue.SlippageBps)
	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.Solana.RPCURL)
	assert.Equal(t, "https://lite-api.jup.ag", cfg.Oracle.BaseURL)
	assert.Equal(t, "http://localhost:8090", cfg.Sponsor.BaseURL)
	assert.Equal(t, ":8090", cfg.Sponsor.ListenAddr)
	assert.Equal(t, 10, cfg.Sponsor.MaxInstructions)
	assert.Equal(t, float64(10), cfg.Sponsor.RateLimit)
	assert.Equal(t, 20, cfg.Sponsor.RateBurst)
	assert.Equal(t, uint32(1000), cfg.Sponsor.BufferBps)
	assert.NotEmpty(t, cfg.History.Path)
}

func TestLoadReadsEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("GASLESS_SWAP_VENUE_PROVIDER", "rest")
	t.Setenv("GASLESS_SWAP_VENUE_BASE_URL", "https://venue.example")
	t.Setenv("GASLESS_SWAP_VENUE_API_KEY", "venue-key")
	t.Setenv("GASLESS_SWAP_SPONSOR_RATE_BURST", "40")
	t.Setenv("GASLESS_SWAP_WALLET_SECRET_KEY", "secret")
	t.Setenv("GASLESS_SWAP_SOLANA_PRIORITY_FEE_MICRO_LAMPORTS", "2500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "rest", cfg.Venue.Provider)
	assert.Equal(t, "https://venue.example", cfg.Venue.BaseURL)
	assert.Equal(t, "venue-key", cfg.Venue.APIKey)
	assert.Equal(t, 40, cfg.Sponsor.RateBurst)
	assert.Equal(t, "secret", cfg.Wallet.SecretKey)
	assert.Equal(t, uint64(2500), cfg.Solana.PriorityFeeMicroLamports)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := isolate(t)
	contents := `venue:
  provider: rest
  base_url: https://venue.example
  slippage_bps: 250
sponsor:
  fee_tokens:
    - EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v
history:
  path: /tmp/swaps.db
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gasless-swap.yaml"), []byte(contents), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "rest", cfg.Venue.Provider)
	assert.Equal(t, "https://venue.example", cfg.Venue.BaseURL)
	assert.Equal(t, uint16(250), cfg.Venue.SlippageBps)
	assert.Equal(t, []string{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"}, cfg.Sponsor.FeeTokens)
	assert.Equal(t, "/tmp/swaps.db", cfg.History.Path)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	isolate(t)
	t.Setenv("GASLESS_SWAP_VENUE_PROVIDER", "dex")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown venue provider "dex"`)
}

func TestRequireVenueAuth(t *testing.T) {
	intents := &Config{Venue: VenueConfig{Provider: "intents"}}
	require.Error(t, intents.RequireVenueAuth())
	intents.Venue.JWTToken = "jwt"
	require.NoError(t, intents.RequireVenueAuth())

	rest := &Config{Venue: VenueConfig{Provider: "rest"}}
	require.Error(t, rest.RequireVenueAuth())
	rest.Venue.BaseURL = "https://venue.example"
	require.NoError(t, rest.RequireVenueAuth())
}

func TestRequireWallet(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.RequireWallet())

	cfg.Wallet.SecretKey = "secret"
	require.NoError(t, cfg.RequireWallet())

	cfg.Wallet.SecretKey = ""
	cfg.Wallet.KeypairPath = "/tmp/id.json"
	require.NoError(t, cfg.RequireWallet())
}

func TestSetAndGet(t *testing.T) {
	cfg := &Config{Venue: VenueConfig{Provider: "rest"}}
	Set(cfg)
	assert.Same(t, cfg, Get())
}
