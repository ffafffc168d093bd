package config

import "strings"

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redactURI(&out.Mongo.URI)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Notify.TelegramBotToken)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	out.Analysis.RiskThresholds = append([]float64(nil), cfg.Analysis.RiskThresholds...)
	out.Strategies.Rules = append([]RuleConfig(nil), cfg.Strategies.Rules...)
	out.Strategies.Labels = append([]LabelConfig(nil), cfg.Strategies.Labels...)
	out.Strategies.Baselines = append([]string(nil), cfg.Strategies.Baselines...)
	out.Strategies.ExcludePatterns = append([]string(nil), cfg.Strategies.ExcludePatterns...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Report.Formats = append([]string(nil), cfg.Report.Formats...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	if cfg.Experiments != nil {
		out.Experiments = make(map[string]ExperimentConfig, len(cfg.Experiments))
		for k, v := range cfg.Experiments {
			out.Experiments[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactURI masks only URIs that carry credentials, so the host stays
// visible in logs.
func redactURI(s *string) {
	i := strings.Index(*s, "://")
	if i < 0 {
		return
	}
	rest := (*s)[i+3:]
	end := strings.IndexByte(rest, '/')
	if end < 0 {
		end = len(rest)
	}
	at := strings.LastIndexByte(rest[:end], '@')
	if at < 0 {
		return
	}
	*s = (*s)[:i+3] + redacted + rest[at:]
}
