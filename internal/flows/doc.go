// Package flows contains the refresh coordinator state machine. The runner
// takes every collaborator as an injected function so the ordering rules can
// be tested without redis, a signer, or the root package.
package flows
