// Package policy defines the domain model shared by the rules engine,
// the evaluation harness, and the provision mapper.
//
// The model is split along ownership lines:
//
//   - Rule and its typed parameter variants: owned by the rule store.
//     Each RuleType has exactly one parameter shape, validated when a
//     rule is written, never at evaluation time.
//   - HouseholdProfile: caller-supplied input, treated as an immutable
//     value object per evaluation.
//   - Determination: engine output, including the intermediate values
//     kept for audit and the list of rule IDs that were applied.
//   - EvaluationTestCase / EvaluationRun / EvaluationResult: owned by
//     the harness. Test cases are curated by humans and referenced,
//     never mutated, by results.
//   - LegislativeProvision / ProvisionMapping / ReverificationObligation:
//     owned by the provision mapper. Provisions are immutable source
//     text; mappings move pending -> approved | rejected and never
//     leave a terminal state.
//
// Monetary amounts use shopspring decimals throughout. Benefit amounts
// round to whole currency units (round half up); percentages keep two
// decimal places.
//
// Determinations have content-addressed identity: DeterminationHash is
// computed over canonical JSON (sorted keys, NFC-normalized strings,
// fixed-scale decimal rendering) so that evaluating the same inputs
// twice yields byte-identical hashes.
package policy
