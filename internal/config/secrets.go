package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Server
	redact(&out.Server.APIKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Scanner.Symbols = copyStrings(cfg.Scanner.Symbols)
	out.Scanner.CEXExchanges = copyStrings(cfg.Scanner.CEXExchanges)
	out.Scanner.DEXQuoteAssets = copyStrings(cfg.Scanner.DEXQuoteAssets)
	out.Scanner.P2PSymbols = copyStrings(cfg.Scanner.P2PSymbols)
	out.Validator.BlockedSources = copyStrings(cfg.Validator.BlockedSources)
	out.Kafka.Brokers = copyStrings(cfg.Kafka.Brokers)
	out.Notify.Events = copyStrings(cfg.Notify.Events)
	out.Server.CORSOrigins = copyStrings(cfg.Server.CORSOrigins)

	// Copy maps so mutations to the redacted copy do not affect the original.
	out.Engine.FXRates = copyFloats(cfg.Engine.FXRates)
	out.Validator.MinVolumeBySource = copyFloats(cfg.Validator.MinVolumeBySource)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyFloats(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
