// Package config loads, normalizes, and validates medwarehouse configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads .env files and honours environment
// fallbacks such as TELEGRAM_API_ID and WAREHOUSE_DSN. The Config type is
// constructed once by the CLI and passed by pointer to every component; nothing
// downstream reads the environment after Load returns.
package config
