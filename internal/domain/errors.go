package domain

import (
	"errors"
	"fmt"
)

// ErrRegistryConflict 注册表拒绝了一次修改，注册表保持不变
var ErrRegistryConflict = errors.New("registry conflict")

var (
	ErrDuplicateAsset  = fmt.Errorf("%w: asset already held", ErrRegistryConflict)
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", ErrRegistryConflict)
	ErrInvalidAsset    = fmt.Errorf("%w: asset id empty", ErrRegistryConflict)
)
