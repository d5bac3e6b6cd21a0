package models

// Brand is a perfume house.
type Brand struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"size:128;uniqueIndex;not null" json:"name"`
}

// Density is the concentration class (EDT, EDP, parfum, ...).
type Density struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"size:64;uniqueIndex;not null" json:"name"`
}

// Gender is the target audience of a perfume.
type Gender struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Gender string `gorm:"size:32;uniqueIndex;not null" json:"gender"`
}
