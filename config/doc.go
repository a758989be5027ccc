// Package config loads svckit configuration from files and the environment
// and validates it.
//
// Files are found by service name in a few standard directories (or given
// explicitly), read with Viper, and overlaid by environment variables and an
// optional .env file:
//
//	var cfg framework.Config
//	err := config.LoadConfig("orders", &cfg)
//
// Struct tags drive validation through go-playground/validator; see
// Validate.
package config
