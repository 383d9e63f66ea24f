package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("commands-dir", "c", "", "Directory containing command Markdown files")
	flags.StringP("reports-dir", "r", "", "Directory containing analysis reports")
	flags.StringP("log-level", "l", "", "Log level: debug, info, warn, or error")

	flags.Bool("cache-enabled", true, "Cache command metadata")
	flags.Duration("cache-ttl", 0, "Command metadata cache TTL (e.g. 1h)")
	flags.Int("max-results", 0, "Default maximum number of search results")
	flags.Duration("search-timeout", 0, "Search timeout (e.g. 5s)")
	flags.String("sync-domain", "", "Base URL of the report database sync API")
	flags.Bool("watch", true, "Watch the commands directory for changes")
	flags.Bool("index-enabled", true, "Build the full-text command content index")
}
