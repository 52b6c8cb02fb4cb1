/*
Package config loads escrowflow configuration.

# Overview

Config wraps a map[string]any and provides typed accessors that return a
default on missing keys or type mismatches. Keys may be dotted paths into
nested sections:

	cfg, err := config.FromFile("escrowflow.yaml")
	ttl := cfg.Duration("redis.lock_ttl", time.Minute)
	proceed := cfg.Int64("escrow.proceed_amount", 2_000_000)

# Settings

LoadSettings decodes a Config into Settings over DefaultSettings and
validates it. Unknown keys are errors:

	network:
	  id: 0
	  script_address: addr_test1wz...
	escrow:
	  proceed_amount: 2000000
	  price_policy: offered
	  workflows: [purchase.bpmn]
	store:
	  driver: sqlite
	  path: ./escrows.db
	redis:
	  addr: localhost:6379
	  lock_ttl: 2m
	server:
	  addr: :8080
	log:
	  level: debug
	  format: json
	retry:
	  policy: aggressive

# Environment

Load layers ESCROWFLOW_* variables over the file. A double underscore
separates sections: ESCROWFLOW_STORE__DRIVER=sqlite sets store.driver.

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
