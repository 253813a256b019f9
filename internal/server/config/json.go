package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/flagx"
	"github.com/dmitrijs2005/datakeeper/internal/server/keyring"
	"github.com/dmitrijs2005/datakeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// Durations use timex.Duration so both "30s" and integer nanoseconds parse.
//
// Pointer and slice fields distinguish "absent" from a zero value: only keys
// present in the file override the defaults.
type JsonConfig struct {
	EndpointAddrHTTP            *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC            *string         `json:"endpoint_addr_grpc"`
	DatabaseDriver              *string         `json:"database_driver"`
	DatabaseDSN                 *string         `json:"database_dsn"`
	SecretKey                   *string         `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	CatalogPath                 *string         `json:"catalog_path"`
	CatalogSource               *string         `json:"catalog_source"`
	CatalogTTL                  *timex.Duration `json:"catalog_ttl"`
	WatchCatalog                *bool           `json:"watch_catalog"`
	RequestTimeout              *timex.Duration `json:"request_timeout"`
	ChunkSize                   *int            `json:"chunk_size"`
	MaxBatchRows                *int            `json:"max_batch_rows"`
	DecryptConcurrency          *int            `json:"decrypt_concurrency"`
	BlobBackend                 *string         `json:"blob_backend"`
	S3RootUser                  *string         `json:"s3_root_user"`
	S3RootPassword              *string         `json:"s3_root_password"`
	S3Bucket                    *string         `json:"s3_bucket"`
	S3Region                    *string         `json:"s3_region"`
	S3BaseEndpoint              *string         `json:"s3_base_endpoint"`
	KeyRing                     []keyring.Spec  `json:"key_ring"`
	CurrentKeyVersion           *int            `json:"current_key_version"`
	JobDispatchURL              *string         `json:"job_dispatch_url"`
	JobDispatchRPS              *float64        `json:"job_dispatch_rps"`
	JobDispatchRetries          *int            `json:"job_dispatch_retries"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from -c/-config, falling back to $DATAKEEPER_CONFIG.
// If neither is set nothing is loaded. An unreadable file or invalid JSON
// panics, since the server cannot start with a half-applied configuration.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	set(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	set(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	set(&config.DatabaseDriver, c.DatabaseDriver)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	set(&config.CatalogPath, c.CatalogPath)
	set(&config.CatalogSource, c.CatalogSource)
	setDuration(&config.CatalogTTL, c.CatalogTTL)
	set(&config.WatchCatalog, c.WatchCatalog)
	setDuration(&config.RequestTimeout, c.RequestTimeout)
	set(&config.ChunkSize, c.ChunkSize)
	set(&config.MaxBatchRows, c.MaxBatchRows)
	set(&config.DecryptConcurrency, c.DecryptConcurrency)
	set(&config.BlobBackend, c.BlobBackend)
	set(&config.S3RootUser, c.S3RootUser)
	set(&config.S3RootPassword, c.S3RootPassword)
	set(&config.S3Bucket, c.S3Bucket)
	set(&config.S3Region, c.S3Region)
	set(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.KeyRing != nil {
		config.KeyRing = c.KeyRing
	}
	set(&config.CurrentKeyVersion, c.CurrentKeyVersion)
	set(&config.JobDispatchURL, c.JobDispatchURL)
	set(&config.JobDispatchRPS, c.JobDispatchRPS)
	set(&config.JobDispatchRetries, c.JobDispatchRetries)
}
