// Package mapper proposes and reviews links between legislative
// provisions and codified rules.
//
// # Proposal
//
// A proposal scores the candidate link two ways: a structural citation
// match between the provision's statutory citation and the rule's
// source citation, and a semantic similarity score from an AI text
// comparison. The combined confidence weights citation at 0.4 and
// semantic at 0.6. When the semantic collaborator is unavailable or
// fails, the proposal degrades to citation-only scoring rather than
// failing; the degradation is visible in the match method.
//
// # Review
//
// Mappings start pending and move exactly once to approved or
// rejected. Rejection requires a non-empty reason. Approval enqueues
// re-verification obligations for the mapped rule and every rule that
// transitively depends on it; the obligations are discharged by the
// harness's re-verification sweep.
package mapper
