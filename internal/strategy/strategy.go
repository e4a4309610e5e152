package strategy

import "aura/internal/types"

var (
	_ types.Strategy = (*RuleEngine)(nil)
	_ types.Strategy = (*GeminiEngine)(nil)
)
