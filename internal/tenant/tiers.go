package tenant

import "github.com/opsforge/tenantcore/internal/db"

type Quotas struct {
	MaxUsers    int
	MaxEntities int
}

// TierQuotas returns the user/entity ceilings for a subscription tier.
func TierQuotas(tier db.SubscriptionTier) Quotas {
	switch tier {
	case db.TierEnterprise:
		return Quotas{MaxUsers: 250, MaxEntities: 25000}
	case db.TierProfessional:
		return Quotas{MaxUsers: 25, MaxEntities: 2500}
	default:
		return Quotas{MaxUsers: 5, MaxEntities: 250}
	}
}

// TierFeatures returns the capability flags a tier starts with.
func TierFeatures(tier db.SubscriptionTier) db.FeatureMap {
	switch tier {
	case db.TierEnterprise:
		return db.FeatureMap{
			"api_access":       true,
			"integrations":     true,
			"advanced_reports": true,
			"sso":              true,
		}
	case db.TierProfessional:
		return db.FeatureMap{
			"api_access":       true,
			"integrations":     true,
			"advanced_reports": true,
			"sso":              false,
		}
	default:
		return db.FeatureMap{
			"api_access":       true,
			"integrations":     false,
			"advanced_reports": false,
			"sso":              false,
		}
	}
}
