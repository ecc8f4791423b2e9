// Package config loads run settings from YAML or JSON files.
//
// # File Format
//
//	run:
//	  workers: 4
//	  shutdown_stagger: 100ms
//	  mode: process        # or goroutine
//	  log_level: info
//	  quiet: false
//	  status_addr: ":8080"
//	  params:
//	    dir: ./testdata
//
// The format is chosen by file extension (.yaml, .yml or .json). Omitted
// fields keep the values from DefaultSettings. Command line flags are
// expected to be applied on top of the loaded Settings.
package config
