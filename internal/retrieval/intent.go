package retrieval

import (
	"strings"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

var intentVocabulary = map[domain.QueryIntent][]string{
	domain.IntentBusiness: {
		"revenue", "profit", "ebitda", "financial", "performance",
		"earnings", "sales", "market", "strategy", "growth",
		"chiffre d'affaires", "bénéfice", "résultat", "croissance",
	},
	domain.IntentAcademic: {
		"research", "study", "analysis", "methodology", "experiment",
		"dataset", "algorithm", "model", "theory", "hypothesis",
		"recherche", "étude", "analyse", "expérience", "théorie",
	},
	domain.IntentLegal: {
		"legal", "law", "regulation", "compliance", "procedure",
		"contract", "agreement", "policy", "governance",
		"légal", "loi", "règlement", "procédure", "contrat",
	},
	domain.IntentTechnical: {
		"technical", "engineering", "implementation", "system",
		"architecture", "design", "specification", "protocol",
		"technique", "ingénierie", "implémentation", "système",
	},
}

// intentPriority breaks count ties: Business > Academic > Legal > Technical.
var intentPriority = []domain.QueryIntent{
	domain.IntentBusiness, domain.IntentAcademic, domain.IntentLegal, domain.IntentTechnical,
}

// DetectIntent classifies a query's domain by keyword-hit count, tie-broken
// by intentPriority. A query with zero hits in any vocabulary is General.
func DetectIntent(query string) domain.QueryIntent {
	lower := strings.ToLower(query)

	counts := make(map[domain.QueryIntent]int, len(intentVocabulary))
	for intent, terms := range intentVocabulary {
		for _, term := range terms {
			if strings.Contains(lower, term) {
				counts[intent]++
			}
		}
	}

	best := domain.IntentGeneral
	bestCount := 0
	for _, intent := range intentPriority {
		if counts[intent] > bestCount {
			bestCount = counts[intent]
			best = intent
		}
	}
	return best
}
