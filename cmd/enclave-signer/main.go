// Package main provides the CLI entry point for the enclave signer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ecadlabs/enclave-signer/internal/acceptor"
	"github.com/ecadlabs/enclave-signer/internal/kms"
	"github.com/ecadlabs/enclave-signer/internal/secmodule"
)

const (
	flagListenPort   = "listen-port"
	flagProxyCID     = "proxy-cid"
	flagProxyPort    = "proxy-port"
	flagKMSEndpoint  = "kms-endpoint"
	flagEntropyBytes = "entropy-bytes"
	flagLogLevel     = "log-level"
)

const defaultListenPort = 2000

var rootCmd = &cobra.Command{
	Use:   "enclave-signer",
	Short: "Enclave-resident multi-algorithm signing service",
	Long: `enclave-signer runs inside a hardware-attested secure enclave and
exposes a length-framed CBOR RPC protocol over vsock for generating,
importing, and signing with secp256k1, NIST P-256, Ed25519, and BLS12-381
keys, with private key material wrapped at rest by AWS KMS.`,
	RunE: runServe,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Flags().Uint32(flagListenPort, defaultListenPort, "vsock port to listen on")
	rootCmd.Flags().Uint32(flagProxyCID, 0, "vsock CID of the KMS network proxy (0 disables proxying)")
	rootCmd.Flags().Uint32(flagProxyPort, 0, "vsock port of the KMS network proxy")
	rootCmd.Flags().String(flagKMSEndpoint, "", "override AWS KMS endpoint")
	rootCmd.Flags().Int(flagEntropyBytes, secmodule.DefaultEntropyBytes, "bytes of gateway entropy to seed into the kernel CSPRNG at startup")
	rootCmd.Flags().String(flagLogLevel, "info", "log level (debug, info, warn, error)")

	_ = viper.BindPFlags(rootCmd.Flags())
}

func initConfig() {
	viper.SetEnvPrefix("ENCLAVE_SIGNER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func runServe(cmd *cobra.Command, args []string) error {
	level, err := zerolog.ParseLevel(viper.GetString(flagLogLevel))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger := zerolog.New(zerolog.NewConsoleWriter()).Level(level).With().Timestamp().Logger()

	gateway, err := secmodule.Open()
	if err != nil {
		return fmt.Errorf("open secure-module gateway: %w", err)
	}
	defer gateway.Close()

	var proxy *kms.ProxyConfig
	if cid := viper.GetUint32(flagProxyCID); cid != 0 {
		proxy = &kms.ProxyConfig{CID: cid, Port: viper.GetUint32(flagProxyPort)}
	}
	factory := &kms.Factory{
		Gateway:  gateway,
		Proxy:    proxy,
		Endpoint: viper.GetString(flagKMSEndpoint),
	}

	cfg := acceptor.Config{
		ListenPort:   viper.GetUint32(flagListenPort),
		EntropyBytes: viper.GetInt(flagEntropyBytes),
	}
	a := acceptor.New(gateway, factory, logger, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutting down")
		cancel()
	}()

	return a.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
