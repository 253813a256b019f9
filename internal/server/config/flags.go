package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string    gRPC bind address (e.g., ":50051")
//	-l string    HTTP bind address (e.g., ":8080")
//	-D string    database driver ("pgx" or "sqlite")
//	-d string    database DSN
//	-s string    JWT HMAC secret key
//	-t int       access token validity for issued tokens, minutes
//	-C string    catalog file path
//	-S string    catalog source ("file" or "postgres")
//	-T duration  catalog TTL (e.g., "5m")
//	-w           watch the catalog file for changes
//	-o duration  per-request timeout
//	-k int       upsert chunk size
//	-m int       maximum rows per upsert batch
//	-B string    blob backend ("s3" or "db")
//	-u string    S3 root user
//	-p string    S3 root password
//	-b string    S3 bucket name
//	-g string    S3 region
//	-e string    S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-K int       current master key version
//	-j string    job platform URL
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-l", "-D", "-d", "-s", "-t", "-C", "-S", "-T", "-o", "-k", "-m", "-B", "-u", "-p", "-b", "-g", "-e", "-K", "-j"},
		"-w")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&config.EndpointAddrHTTP, "l", config.EndpointAddrHTTP, "address and port to run HTTP server")
	fs.StringVar(&config.DatabaseDriver, "D", config.DatabaseDriver, "database driver")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")

	fs.StringVar(&config.CatalogPath, "C", config.CatalogPath, "catalog file")
	fs.StringVar(&config.CatalogSource, "S", config.CatalogSource, "catalog source (file|postgres)")
	fs.DurationVar(&config.CatalogTTL, "T", config.CatalogTTL, "catalog TTL")
	fs.BoolVar(&config.WatchCatalog, "w", config.WatchCatalog, "watch catalog file")
	fs.DurationVar(&config.RequestTimeout, "o", config.RequestTimeout, "request timeout")
	fs.IntVar(&config.ChunkSize, "k", config.ChunkSize, "upsert chunk size")
	fs.IntVar(&config.MaxBatchRows, "m", config.MaxBatchRows, "max rows per upsert batch")
	fs.StringVar(&config.BlobBackend, "B", config.BlobBackend, "blob backend (s3|db)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.IntVar(&config.CurrentKeyVersion, "K", config.CurrentKeyVersion, "current master key version")
	fs.StringVar(&config.JobDispatchURL, "j", config.JobDispatchURL, "job platform URL")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
}
