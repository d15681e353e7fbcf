// Package config loads the pool and loop configuration of spawnpool.
//
// # Usage
//
//	cfg, err := config.LoadFile("pools.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Files ending in .toml are decoded as TOML, everything else as YAML.
// ${VAR_NAME} references are replaced with environment variables before
// decoding.
//
// # Structure
//
//	name: ld50
//	defaults:
//	  growth_batch: 5
//	  target: 20
//	pools:
//	  good:
//	    scope: GoodParent
//	    base_name: Good
//	    templates:
//	      - {name: coin, kind: pickup, width: 0.5, height: 0.5}
//	  bad: ...
//	  platform: ...
//	  misc:
//	    growth_batch: 1
//	    target: 1
//	    templates:
//	      - {name: start, kind: marker}
//	      - {name: exit, kind: marker}
//	loop:
//	  tick_interval: 16ms
//	  max_precreate_ticks: 100
//	  play_ticks: 600
//	  seed: 50
//	  spawn:
//	    good: {every: 10, lifetime: 120}
//	logging:
//	  level: ${LOG_LEVEL}
//
// All four categories (good, bad, platform, misc) are required; the misc pool
// lists the start marker first and the exit marker second.
package config
