package op_service

import (
	"strings"
)

// FormatVersion joins the non-empty build details to version, shortening the commit to 8 characters.
func FormatVersion(version string, gitCommit string, gitDate string, meta string) string {
	if len(gitCommit) > 8 {
		gitCommit = gitCommit[:8]
	}
	parts := []string{version}
	for _, p := range []string{gitCommit, gitDate, meta} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "-")
}

// PrefixEnvVar returns the env var name for a flag, e.g. ("OP_BRIDGE", "L1_ETH_RPC") -> ["OP_BRIDGE_L1_ETH_RPC"].
func PrefixEnvVar(prefix, suffix string) []string {
	return []string{strings.ToUpper(prefix) + "_" + suffix}
}
