// Package rulepack compiles CUE rule pack files into draft rules.
//
// A pack is a CUE file declaring a pack header and a set of rules:
//
//	pack: {
//		name:         "snap-fy2025"
//		jurisdiction: "US"
//	}
//
//	rules: {
//		"snap-gross-income-limit-2025": {
//			program:   "snap"
//			rule_type: "income_limit"
//			effective: "2024-10-01"
//			citation:  "7 U.S.C. 2014(c)"
//			parameters: {
//				type: "income_limit"
//				gross_limits: {"1": "1580", "2": "2137"}
//			}
//		}
//	}
//
// Monetary values are strings so they survive as exact decimals.
// Compilation validates each rule's parameters against its rule type
// and rejects dependency cycles within the pack before anything
// reaches the store.
package rulepack
