// Package config loads application configuration from SHUTTERTAG_*
// environment variables and validates it at startup.
package config
