package domain

import "time"

// OverrideType names one precedence tier an override entry belongs to.
type OverrideType string

const (
	OverrideUser   OverrideType = "user"
	OverrideGroup  OverrideType = "group"
	OverrideRegion OverrideType = "region"
)

// ValidOverrideType reports whether t is one of the three supported tiers.
func ValidOverrideType(t OverrideType) bool {
	switch t {
	case OverrideUser, OverrideGroup, OverrideRegion:
		return true
	}
	return false
}

type FeatureFlag struct {
	ID          uint           `gorm:"primaryKey" json:"-"`
	Key         string         `gorm:"uniqueIndex;size:100;not null" json:"key"`
	Description string         `gorm:"size:500" json:"description,omitempty"`
	Enabled     bool           `gorm:"not null;default:false" json:"enabled"`
	Overrides   []FlagOverride `gorm:"foreignKey:FlagID;constraint:OnDelete:CASCADE" json:"overrides,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type FlagOverride struct {
	ID        uint         `gorm:"primaryKey" json:"-"`
	FlagID    uint         `gorm:"not null;uniqueIndex:idx_flag_tier_entity" json:"-"`
	Type      OverrideType `gorm:"size:16;not null;uniqueIndex:idx_flag_tier_entity" json:"type"`
	EntityID  string       `gorm:"size:100;not null;uniqueIndex:idx_flag_tier_entity" json:"entityId"`
	Enabled   bool         `gorm:"not null;default:false" json:"enabled"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// OverrideMap collapses the flag's override rows for one tier into entity→enabled
// mapping form. An entity absent from the map means "fall through"; present with
// false means "explicitly disabled at this tier".
func (f *FeatureFlag) OverrideMap(t OverrideType) map[string]bool {
	out := map[string]bool{}
	for _, o := range f.Overrides {
		if o.Type == t {
			out[o.EntityID] = o.Enabled
		}
	}
	return out
}
