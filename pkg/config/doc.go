// Package config handles loading and validation of the test harness
// configuration from environment variables, an optional config file and
// optional dotenv files. Environment variables take precedence.
package config
