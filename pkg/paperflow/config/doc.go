/*
Package config loads paperflow configuration.

Config wraps a decoded YAML or JSON document and answers typed lookups with
a default for missing or mistyped values. Keys may be dotted paths into
nested sections:

	cfg, err := config.ReadFile("paperflow.yaml")
	if err != nil {
	    return err
	}
	workers := cfg.Int("pipeline.read_concurrency", 4)
	llm := cfg.Sub("llm")
	model := llm.String("model", "")

Settings is the typed application configuration built from a Config with
Load. It fills defaults, applies PAPERFLOW_* environment overrides and
validates the result. Top-level keys outside the known sections (llm,
arxiv, pipeline, store, log, telemetry) are rejected.

Config is safe for concurrent reads. The underlying map is never modified.
*/
package config
