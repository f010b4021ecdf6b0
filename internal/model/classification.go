package model

// Category classifies the payload of a transfer.
type Category string

const (
	CategoryVFXAssets   Category = "vfx_assets"
	CategoryAnimation   Category = "animation"
	CategoryTextures    Category = "textures"
	CategoryLighting    Category = "lighting"
	CategoryCompositing Category = "compositing"
	CategoryAudio       Category = "audio"
	CategoryEditorial   Category = "editorial"
	CategoryMatchmove   Category = "matchmove"
	CategoryFX          Category = "fx"
	CategoryOther       Category = "other"
)

// Categories lists the closed category set.
var Categories = []Category{
	CategoryVFXAssets,
	CategoryAnimation,
	CategoryTextures,
	CategoryLighting,
	CategoryCompositing,
	CategoryAudio,
	CategoryEditorial,
	CategoryMatchmove,
	CategoryFX,
	CategoryOther,
}

// Valid reports whether c is a declared category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// Priority orders transfers for reviewers.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists the closed priority set.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// Valid reports whether p is a declared priority.
func (p Priority) Valid() bool {
	for _, known := range Priorities {
		if known == p {
			return true
		}
	}
	return false
}
