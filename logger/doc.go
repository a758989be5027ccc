// Package logger provides structured logging for svckit using zerolog.
//
// It supports JSON and console output, level configuration and
// component-scoped loggers. The registry, trackers and the module manager
// each log through their own component logger.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.WithComponent("registry")
//	log.Info("service registered", logger.Fields("service_id", 7))
package logger
