// Package config provides unified configuration loading for the demo
// CLI from files, environment variables, and flags, using viper and
// pflag — the same stack the teacher uses for its own server/agent
// configuration.
//
// Resolution order (highest wins):
//  1. CLI flags
//  2. Environment variables (prefix KUBEDYN_)
//  3. Config file (kubedyn.yaml in . or /etc/kubedyn/)
//  4. Compiled defaults
package config

import "strings"

// Viper keys for connection configuration.
const (
	keyMasterURL  = "connection.master_url"
	keyToken      = "connection.token"
	keyUsername   = "connection.username"
	keyPassword   = "connection.password"
	keyKubeconfig = "connection.kubeconfig"
	keyNamespace  = "connection.namespace"
)

// Viper key for observability configuration.
const keyMetricsAddr = "observability.metrics_addr"

// Option describes a single configuration entry: its viper key, the
// corresponding CLI flag name, the compiled default, and a
// human-readable description shown in --help output.
type Option struct {
	Key         string
	Flag        string
	Default     any
	Description string
}

// ConnectionOptions defines every configuration entry the demo CLI
// accepts, matching the construction inputs of the root package's
// Client: bearer token, basic auth, or kubeconfig.
var ConnectionOptions = []Option{
	{Key: keyMasterURL, Flag: toFlag(keyMasterURL), Default: "", Description: "API server base URL"},
	{Key: keyToken, Flag: toFlag(keyToken), Default: "", Description: "Bearer token"},
	{Key: keyUsername, Flag: toFlag(keyUsername), Default: "", Description: "Basic auth username"},
	{Key: keyPassword, Flag: toFlag(keyPassword), Default: "", Description: "Basic auth password"},
	{Key: keyKubeconfig, Flag: toFlag(keyKubeconfig), Default: "", Description: "Path to a kubeconfig file"},
	{Key: keyNamespace, Flag: toFlag(keyNamespace), Default: "default", Description: "Default namespace for resource operations"},
}

// ObservabilityOptions defines configuration entries for the demo
// CLI's metrics side listener.
var ObservabilityOptions = []Option{
	{Key: keyMetricsAddr, Flag: "metrics-addr", Default: "", Description: "Address to serve Prometheus metrics on (empty disables metrics)"},
}

// toFlag converts a viper key like "connection.master_url" into a CLI
// flag like "master-url" by lower-casing, replacing dots and
// underscores with hyphens, and stripping the "connection-" prefix.
func toFlag(key string) string {
	flag := strings.ToLower(key)
	flag = strings.ReplaceAll(flag, ".", "-")
	flag = strings.ReplaceAll(flag, "_", "-")
	flag = strings.TrimPrefix(flag, "connection-")
	return flag
}
