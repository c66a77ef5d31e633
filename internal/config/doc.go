/*
Package config loads routefs configuration from YAML files and ROUTEFS_*
environment variables.

Sources are applied in order, later ones winning:

 1. compiled-in defaults (NewDefault)
 2. a YAML file (LoadFromFile)
 3. environment variables (LoadFromEnv)
 4. command line flags, applied by cmd/routefs

Example file:

	global:
	  log_level: debug
	  log_format: json
	mount:
	  allow_other: true
	  attr_timeout: 1s
	monitoring:
	  metrics:
	    enabled: true
	    port: 9100
	sources:
	  local:
	    encoding: utf-8
	  s3:
	    region: eu-west-1
	    max_object_size: 64MiB
	    retry:
	      max_attempts: 5

Environment variables:

	ROUTEFS_LOG_LEVEL, ROUTEFS_LOG_FILE, ROUTEFS_LOG_FORMAT
	ROUTEFS_MOUNT_POINT, ROUTEFS_ALLOW_OTHER, ROUTEFS_FUSE_DEBUG
	ROUTEFS_ATTR_TIMEOUT, ROUTEFS_ENTRY_TIMEOUT
	ROUTEFS_METRICS_ENABLED, ROUTEFS_METRICS_PORT, ROUTEFS_METRICS_PATH
	ROUTEFS_LOCAL_READ_ONLY, ROUTEFS_LOCAL_ENCODING
	ROUTEFS_S3_REGION, ROUTEFS_S3_ENDPOINT, ROUTEFS_S3_PROFILE
	ROUTEFS_S3_ACCESS_KEY_ID, ROUTEFS_S3_SECRET_ACCESS_KEY, ROUTEFS_S3_SESSION_TOKEN
	ROUTEFS_S3_USE_PATH_STYLE, ROUTEFS_S3_READ_ONLY
	ROUTEFS_S3_MAX_OBJECT_SIZE, ROUTEFS_S3_RETRY_ATTEMPTS

Without explicit keys the S3 source uses the SDK's default credential chain.

Validate reports problems as CONFIG_VALIDATION errors; unreadable files and
malformed environment values are CONFIG_LOAD errors.
*/
package config
