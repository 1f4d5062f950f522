// Command diodbd runs the diodb storage engine behind an HTTP server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mnohosten/diodb/pkg/server"
)

func main() {
	host := flag.String("host", "localhost", "server host address")
	port := flag.Int("port", 8080, "server port")
	dataDir := flag.String("data-dir", "./data", "directory where SSTable files are stored")
	minGap := flag.Duration("roll-min-gap", time.Second, "minimum gap between background roll cycles")
	workers := flag.Int("workers", 0, "worker pool size, 0 selects hardware concurrency")
	indexOffset := flag.Int("index-offset-bytes", 0, "SSTable sparse-index density in bytes, 0 selects the default")
	apiKey := flag.String("api-key", "", "if set, require this key as a bearer token on every request")
	corsOrigin := flag.String("cors-origin", "*", "CORS allowed origin")
	enableTLS := flag.Bool("tls", false, "enable TLS/SSL")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	enableGraphQL := flag.Bool("graphql", false, "enable the GraphQL API endpoint (/graphql) and GraphiQL playground (/graphiql)")
	devTLS := flag.Bool("dev-self-signed-tls", false, "generate a self-signed certificate for -tls instead of requiring -tls-cert/-tls-key")
	jsonLogs := flag.Bool("json-logs", false, "emit structured logs as JSON instead of console text")
	flag.Parse()

	log, err := newLogger(*jsonLogs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	config := server.DefaultConfig()
	config.Host = *host
	config.Port = *port
	config.DataDir = *dataDir
	config.BackgroundTaskMinGap = *minGap
	config.NumWorkerThreads = *workers
	config.IndexOffsetBytes = *indexOffset
	config.APIKey = *apiKey
	config.AllowedOrigins = []string{*corsOrigin}
	config.EnableTLS = *enableTLS
	config.TLSCertFile = *tlsCert
	config.TLSKeyFile = *tlsKey
	config.EnableGraphQL = *enableGraphQL

	if *enableTLS && *devTLS {
		if config.TLSCertFile == "" {
			config.TLSCertFile = "diodbd-dev-cert.pem"
		}
		if config.TLSKeyFile == "" {
			config.TLSKeyFile = "diodbd-dev-key.pem"
		}
		if err := server.GenerateSelfSignedCert(config.TLSCertFile, config.TLSKeyFile, config.Host); err != nil {
			log.Fatalw("failed to generate self-signed certificate", "error", err)
		}
	}

	srv, err := server.New(config, log)
	if err != nil {
		log.Fatalw("failed to create server", "error", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalw("server error", "error", err)
	}
}

func newLogger(asJSON bool) (*zap.SugaredLogger, error) {
	var base *zap.Logger
	var err error
	if asJSON {
		base, err = zap.NewProduction()
	} else {
		base, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return base.Sugar(), nil
}
