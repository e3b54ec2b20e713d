package entities

import "time"

// URL maps a short code to the long URL it redirects to. Rows are never
// updated or deleted once written.
type URL struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	LongURL   string `gorm:"column:long_url;type:text;not null"`
	ShortCode string `gorm:"column:short_code;type:varchar(10);size:10;not null;uniqueIndex:idx_urls_short_code"`
	// LongURLHash is nullable so tables created before the column existed
	// can be migrated in place; InitSchema backfills it.
	LongURLHash *string   `gorm:"column:long_url_hash;size:64;uniqueIndex:idx_urls_long_url_hash"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (URL) TableName() string {
	return "urls"
}
