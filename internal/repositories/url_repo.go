package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PFlorov/k3s-url-shortener-app/internal/entities"
	"github.com/PFlorov/k3s-url-shortener-app/internal/utils"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("url mapping not found")

type URLRepo struct {
	db *gorm.DB
}

func NewURLRepo(db *gorm.DB) *URLRepo {
	return &URLRepo{db: db}
}

func (r *URLRepo) GetByCode(ctx context.Context, code string) (*entities.URL, error) {
	var u entities.URL
	err := r.db.WithContext(ctx).Where("short_code = ?", code).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByLongURL finds the mapping for an exact long URL.
func (r *URLRepo) GetByLongURL(ctx context.Context, longURL string) (*entities.URL, error) {
	return getByLongURL(r.db.WithContext(ctx), longURL)
}

func (r *URLRepo) ExistsCode(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entities.URL{}).Where("short_code = ?", code).Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertOrGet stores u unless a row already holds its long URL or short
// code. When the long URL is taken, the existing row is returned with
// created=false. When only the short code is taken, it returns (nil, false,
// nil) and the caller should retry with another code.
func (r *URLRepo) InsertOrGet(ctx context.Context, u *entities.URL) (stored *entities.URL, created bool, err error) {
	if u.LongURLHash == nil {
		h := utils.HashURL(u.LongURL)
		u.LongURLHash = &h
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(u)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			stored, created = u, true
			return nil
		}

		existing, err := getByLongURL(tx, u.LongURL)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		stored = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func getByLongURL(db *gorm.DB, longURL string) (*entities.URL, error) {
	var u entities.URL
	err := db.
		Where("long_url_hash = ? AND long_url = ?", utils.HashURL(longURL), longURL).
		Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
