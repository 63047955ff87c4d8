// Package config provides configuration management for podgen.
//
// Configuration is loaded from environment variables using the env package.
// All configuration values except the LLM API key have defaults suitable
// for local use; memory backends need no external services.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
