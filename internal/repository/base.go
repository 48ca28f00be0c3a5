package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 查询不到记录时返回 (nil, nil)，由调用方决定是否为 NotFound
func notFoundAsNil[T any](v *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
