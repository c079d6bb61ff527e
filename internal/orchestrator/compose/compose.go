// Package compose holds the Create-Project Saga's pure, no-compensator
// steps: container port derivation, clone-URL transformation, and base
// environment variable composition. Kept separate from the workflow
// package so the orchestrator service's direct lifecycle calls can reuse
// the same logic without importing the Temporal SDK.
package compose

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
)

// DerivePort is a deterministic function of repoID within [start, end).
// Same repo id always derives the same port, so re-running the saga after
// a transient failure (before any forward progress) is idempotent in the
// port it would pick.
func DerivePort(repoID string, start, end int) int {
	if end <= start {
		return start
	}
	sum := sha256.Sum256([]byte(repoID))
	n := binary.BigEndian.Uint32(sum[:4])
	span := uint32(end - start)
	return start + int(n%span)
}

// PublicCloneURL converts the forge-internal clone URL to its public HTTPS
// form using publicBaseURL when configured; otherwise it strips an explicit
// port from the URL's own HTTPS form.
func PublicCloneURL(internalCloneURL, publicBaseURL string) (string, error) {
	u, err := url.Parse(internalCloneURL)
	if err != nil {
		return "", fmt.Errorf("parsing clone URL: %w", err)
	}

	if publicBaseURL != "" {
		base, err := url.Parse(publicBaseURL)
		if err != nil {
			return "", fmt.Errorf("parsing public base URL: %w", err)
		}
		u.Scheme = base.Scheme
		u.Host = base.Host
		return u.String(), nil
	}

	u.Scheme = "https"
	u.Host = u.Hostname()
	return u.String(), nil
}

// BaseEnvVars returns the deterministic env vars the Create-Project Saga
// always sets, independent of the chosen LLM provider. These take
// precedence over credential-supplied vars on key collision.
func BaseEnvVars(port int, host, repoURL, forgeUser, forgeToken, gitEmail, gitName, projectName string) map[string]string {
	return map[string]string{
		"OPENCODE_PORT":   fmt.Sprintf("%d", port),
		"OPENCODE_HOST":   host,
		"FORGEJO_REPO_URL": repoURL,
		"FORGEJO_USER":     forgeUser,
		"FORGEJO_TOKEN":    forgeToken,
		"GIT_USER_EMAIL":   gitEmail,
		"GIT_USER_NAME":    gitName,
		"PROJECT_NAME":     projectName,
	}
}

// MergeEnv applies base-overrides-credential precedence: base wins on key
// collision, so a runtime setting can never be clobbered by a
// credential-sourced value.
func MergeEnv(credential, base map[string]string) map[string]string {
	out := make(map[string]string, len(credential)+len(base))
	for k, v := range credential {
		out[k] = v
	}
	for k, v := range base {
		out[k] = v
	}
	return out
}

// PortsExposesString renders exposed ports in the platform's comma-joined form.
func PortsExposesString(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ",")
}
