// Package policy implements the deny-by-default capability policy that
// gates every security-sensitive operation: memory growth, CPU budget,
// filesystem scope, network destinations, and environment access.
//
// A zero Policy denies everything and budgets nothing. All checks are
// advisory gates invoked by call sites; the policy performs no enforcement
// loop of its own. Policies may be shared read-only across instances of the
// same trust level.
package policy
